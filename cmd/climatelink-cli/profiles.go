package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/joshp123/climatelink/internal/firmware"
	"github.com/joshp123/climatelink/internal/rpc"
	"github.com/joshp123/climatelink/plugins/ircodes"
	"github.com/joshp123/climatelink/plugins/provisioning"
)

// profilesCmd talks to the provisioning service on a running server.
func profilesCmd(env *cliEnv) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profiles",
		Short: "Query and render profiles on the server",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List profiles with their readiness",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, conn, done, err := env.dial(cmd.Context())
			if err != nil {
				return err
			}
			defer done()

			var list provisioning.ProfileList
			if err := invokeStruct(ctx, conn, provisioning.API, "ListProfiles", &emptypb.Empty{}, &list); err != nil {
				return fmt.Errorf("list profiles: %w", err)
			}
			return env.output().emit(list, func() [][]string {
				rows := [][]string{{"PROFILE", "READY", "TEMPLATE", "PROBLEMS", "ERROR"}}
				for _, p := range list.Profiles {
					rows = append(rows, []string{p.Name, yesNo(p.Ready), yesNo(p.Template), strconv.Itoa(p.Problems), p.Error})
				}
				return rows
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "get <profile>",
		Short: "Show a profile with secrets redacted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, conn, done, err := env.dial(cmd.Context())
			if err != nil {
				return err
			}
			defer done()

			var view provisioning.ProfileView
			if err := invokeStruct(ctx, conn, provisioning.API, "GetProfile", wrapperspb.String(args[0]), &view); err != nil {
				return fmt.Errorf("get profile: %w", err)
			}
			out := env.output()
			if out.json {
				return out.printJSON(view)
			}
			rows := [][]string{
				{"name", view.Name},
				{"ready", yesNo(view.Ready)},
				{"template", yesNo(view.Template)},
				{"template id", view.Credentials.TemplateID},
				{"template name", view.Credentials.TemplateName},
				{"auth token", view.Credentials.AuthToken},
				{"wifi ssid", view.Credentials.WiFiSSID},
				{"wifi password", view.Credentials.WiFiPassword},
				{"central mac", view.CentralMAC},
				{"tx mac", view.TxMAC},
				{"carrier khz", strconv.Itoa(view.CarrierKHz)},
			}
			for _, t := range view.Tables {
				rows = append(rows, []string{"unit " + t.Unit, fmt.Sprintf("len %d, %s", t.EffectiveLength, sequenceCounts(t.Sequences))})
			}
			if view.LastRender != nil {
				rows = append(rows, []string{"last render", view.LastRender.ID + " " + view.LastRender.RenderedAt.Format("2006-01-02 15:04:05")})
			}
			return out.table(rows)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "check <profile>",
		Short: "Run readiness checks on the server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, conn, done, err := env.dial(cmd.Context())
			if err != nil {
				return err
			}
			defer done()

			var report firmware.Report
			if err := invokeStruct(ctx, conn, provisioning.API, "CheckProfile", wrapperspb.String(args[0]), &report); err != nil {
				return fmt.Errorf("check profile: %w", err)
			}
			return printReport(env.output(), report)
		},
	})

	var allowTemplate bool
	render := &cobra.Command{
		Use:   "render <profile>",
		Short: "Render headers on the server and record the render",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, conn, done, err := env.dial(cmd.Context())
			if err != nil {
				return err
			}
			defer done()

			req, err := rpc.ToStruct(provisioning.RenderRequest{Profile: args[0], AllowTemplate: allowTemplate})
			if err != nil {
				return err
			}
			var result provisioning.RenderResult
			if err := invokeStruct(ctx, conn, provisioning.API, "RenderProfile", req, &result); err != nil {
				return fmt.Errorf("render profile: %w", err)
			}
			return env.output().emit(result, func() [][]string {
				rows := [][]string{{"FILE", "BYTES", "SHA256", "PATH"}}
				for _, f := range result.Files {
					rows = append(rows, []string{f.Name, strconv.Itoa(f.Bytes), f.SHA256, f.Path})
				}
				return rows
			})
		},
	}
	render.Flags().BoolVar(&allowTemplate, "allow-template", false, "render even if the profile is not ready")
	cmd.AddCommand(render)

	return cmd
}

// tablesCmd talks to the ircodes service on a running server.
func tablesCmd(env *cliEnv) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tables",
		Short: "Inspect IR code tables on the server",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list <profile>",
		Short: "List a profile's code tables",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, conn, done, err := env.dial(cmd.Context())
			if err != nil {
				return err
			}
			defer done()

			var list ircodes.TableList
			if err := invokeStruct(ctx, conn, ircodes.API, "ListTables", wrapperspb.String(args[0]), &list); err != nil {
				return fmt.Errorf("list tables: %w", err)
			}
			return env.output().emit(list, func() [][]string {
				rows := [][]string{{"UNIT", "LENGTH", "SEQUENCES", "VALID", "ERROR"}}
				for _, t := range list.Tables {
					rows = append(rows, []string{t.Unit, strconv.Itoa(t.EffectiveLength), sequenceCounts(t.Sequences), yesNo(t.Valid), t.Error})
				}
				return rows
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "get <profile> <unit>",
		Short: "Print one unit's timings",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, conn, done, err := env.dial(cmd.Context())
			if err != nil {
				return err
			}
			defer done()

			req, err := rpc.ToStruct(ircodes.TableRequest{Profile: args[0], Unit: strings.ToUpper(args[1])})
			if err != nil {
				return err
			}
			var table ircodes.Table
			if err := invokeStruct(ctx, conn, ircodes.API, "GetTable", req, &table); err != nil {
				return fmt.Errorf("get table: %w", err)
			}
			return env.output().emit(table, func() [][]string {
				rows := [][]string{{"COMMAND", "COUNT", "TIMINGS"}}
				for _, c := range firmware.Commands() {
					seq := table.Sequences[strings.ToLower(c.String())]
					rows = append(rows, []string{c.String(), strconv.Itoa(len(seq)), joinTimings(seq)})
				}
				return rows
			})
		},
	})

	return cmd
}

func sequenceCounts(counts map[string]int) string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, counts[k]))
	}
	return strings.Join(parts, " ")
}

func joinTimings(seq []uint16) string {
	parts := make([]string, len(seq))
	for i, v := range seq {
		parts[i] = strconv.Itoa(int(v))
	}
	return strings.Join(parts, ",")
}
