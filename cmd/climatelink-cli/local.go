package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/joshp123/climatelink/internal/firmware"
	"github.com/joshp123/climatelink/internal/headers"
	"github.com/joshp123/climatelink/internal/irimport"
	"github.com/joshp123/climatelink/internal/profiles"
)

var errNotReady = errors.New("not ready")

func templateCmd(env *cliEnv) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "template <profile>",
		Short: "Create a profile document from the shipped template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entry := profiles.Entry{Profile: firmware.TemplateProfile(args[0])}
			path, err := putEntry(cmd.Context(), env.store(), entry, force)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing profile")
	return cmd
}

func checkCmd(env *cliEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "check [profile...]",
		Short: "Run readiness checks against local profile documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store := env.store()
			out := env.output()

			if len(args) == 1 {
				entry, err := store.Get(ctx, args[0])
				if err != nil {
					return err
				}
				return printReport(out, entry.Profile.Readiness())
			}

			scanned, err := profiles.Scan(ctx, store)
			if err != nil {
				return err
			}
			wanted := make(map[string]bool, len(args))
			for _, name := range args {
				wanted[name] = true
			}

			var reports []firmware.Report
			rows := [][]string{{"PROFILE", "READY", "PROBLEMS"}}
			failed := 0
			for _, s := range scanned {
				if len(wanted) > 0 && !wanted[s.Name] {
					continue
				}
				if s.Err != nil {
					failed++
					rows = append(rows, []string{s.Name, "no", s.Err.Error()})
					reports = append(reports, firmware.Report{Profile: s.Name, Problems: []firmware.Problem{{Code: firmware.CodeInvalidValue, Field: "document", Message: s.Err.Error()}}})
					continue
				}
				report := s.Entry.Profile.Readiness()
				if !report.Ready() {
					failed++
				}
				reports = append(reports, report)
				rows = append(rows, []string{s.Name, yesNo(report.Ready()), strconv.Itoa(len(report.Problems))})
			}

			if out.json {
				if err := out.printJSON(reports); err != nil {
					return err
				}
			} else if err := out.table(rows); err != nil {
				return err
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d profiles: %w", failed, len(reports), errNotReady)
			}
			return nil
		},
	}
}

// printReport prints every problem and fails when the report is not ready.
func printReport(out outputMode, report firmware.Report) error {
	if out.json {
		if err := out.printJSON(report); err != nil {
			return err
		}
	} else if report.Ready() {
		fmt.Fprintf(out.w, "%s: ready\n", report.Profile)
	} else {
		rows := [][]string{{"CODE", "FIELD", "MESSAGE"}}
		for _, p := range report.Problems {
			rows = append(rows, []string{p.Code, p.Field, p.Message})
		}
		if err := out.table(rows); err != nil {
			return err
		}
	}
	if !report.Ready() {
		return fmt.Errorf("%s: %d problems: %w", report.Profile, len(report.Problems), errNotReady)
	}
	return nil
}

func renderCmd(env *cliEnv) *cobra.Command {
	var (
		outDir        string
		allowTemplate bool
	)
	cmd := &cobra.Command{
		Use:   "render <profile>",
		Short: "Render config.h and ir_codes.h from a local profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entry, err := env.store().Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			files, err := headers.Render(entry.Profile, headers.Options{AllowTemplate: allowTemplate})
			if err != nil {
				return err
			}
			written, err := writeHeaders(outDir, files)
			if err != nil {
				return err
			}
			sums := files.Checksums()
			rows := [][]string{{"FILE", "SHA256"}}
			for _, path := range written {
				rows = append(rows, []string{path, sums[filepath.Base(path)]})
			}
			return env.output().emit(sums, func() [][]string { return rows })
		},
	}
	cmd.Flags().StringVarP(&outDir, "out", "o", ".", "directory to write headers into")
	cmd.Flags().BoolVar(&allowTemplate, "allow-template", false, "render even if the profile is not ready")
	return cmd
}

// writeHeaders writes files into dir with owner-only permissions since
// config.h carries credentials.
func writeHeaders(dir string, files headers.Files) ([]string, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create %s: %w", dir, err)
	}
	paths := make([]string, 0, len(files))
	for _, name := range files.Names() {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, files[name], 0o600); err != nil {
			return nil, fmt.Errorf("write %s: %w", path, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func importHeadersCmd(env *cliEnv) *cobra.Command {
	var (
		configPath string
		irPath     string
		force      bool
	)
	cmd := &cobra.Command{
		Use:   "import-headers <profile>",
		Short: "Create a profile document from an existing config.h and ir_codes.h",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			configHeader, err := os.ReadFile(configPath)
			if err != nil {
				return fmt.Errorf("read %s: %w", configPath, err)
			}
			irHeader, err := os.ReadFile(irPath)
			if err != nil {
				return fmt.Errorf("read %s: %w", irPath, err)
			}
			profile, err := headers.Import(args[0], configHeader, irHeader)
			if err != nil {
				return err
			}
			path, err := putEntry(cmd.Context(), env.store(), profiles.Entry{Profile: profile}, force)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return printReport(env.output(), profile.Readiness())
		},
	}
	cmd.Flags().StringVar(&configPath, "config-h", firmware.ConfigHeader, "path to config.h")
	cmd.Flags().StringVar(&irPath, "ir-h", firmware.IRHeader, "path to ir_codes.h")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing profile")
	return cmd
}

func importIRCmd(env *cliEnv) *cobra.Command {
	var (
		reference bool
		create    bool
	)
	cmd := &cobra.Command{
		Use:   "import-ir <profile> <unit> <command> <capture-file>",
		Short: "Load one captured IR sequence into a profile",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store := env.store()
			entry, err := store.Get(ctx, args[0])
			if err != nil {
				return err
			}

			cmdID, err := resolveCommand(args[2])
			if err != nil {
				return err
			}
			unitIdx, err := resolveUnit(&entry.Profile, args[1], create)
			if err != nil {
				return err
			}

			seq, err := irimport.ParseFile(args[3])
			if err != nil {
				return err
			}
			table := &entry.Profile.Tables[unitIdx]
			table.SetSequence(cmdID, seq)

			key := profiles.CaptureKey(table.Unit, cmdID)
			if reference {
				if entry.Refs.Captures == nil {
					entry.Refs.Captures = make(map[string]string)
				}
				// Stored paths resolve against the profiles dir, not the caller's cwd.
				abs, err := filepath.Abs(args[3])
				if err != nil {
					return err
				}
				entry.Refs.Captures[key] = abs
			} else {
				delete(entry.Refs.Captures, key)
			}

			if err := store.Put(ctx, entry); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s %s = %d timings\n", entry.Profile.Name, table.Unit, cmdID, len(seq))
			if err := table.Validate(); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&reference, "reference", false, "store the capture file path instead of inlining the timings")
	cmd.Flags().BoolVar(&create, "create", false, "add the unit if the profile does not have it")
	return cmd
}

func resolveCommand(input string) (firmware.Command, error) {
	options := make(map[string]string)
	for _, c := range firmware.Commands() {
		options[c.String()] = c.String()
	}
	id, err := resolveNamedID("command", input, options)
	if err != nil {
		return 0, err
	}
	return firmware.ParseCommand(id)
}

// resolveUnit returns the index of the named table, adding it when create
// is set.
func resolveUnit(p *firmware.Profile, input string, create bool) (int, error) {
	options := make(map[string]string, len(p.Tables))
	for i, t := range p.Tables {
		options[t.Unit] = strconv.Itoa(i)
	}
	id, err := resolveNamedID("unit", input, options)
	if err == nil {
		return strconv.Atoi(id)
	}
	if !create {
		return 0, err
	}
	unit := normalizeUnit(input)
	if verr := firmware.ValidateUnit(unit); verr != nil {
		return 0, verr
	}
	p.Tables = append(p.Tables, firmware.NewCodeTable(unit))
	return len(p.Tables) - 1, nil
}

func macCmd(env *cliEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "mac <address>",
		Short: "Normalise an ESP-NOW peer address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mac, err := firmware.ParseMAC(args[0])
			if err != nil {
				return err
			}
			info := struct {
				Address     string `json:"address"`
				Initializer string `json:"initializer"`
				Zero        bool   `json:"zero"`
				Multicast   bool   `json:"multicast"`
				Broadcast   bool   `json:"broadcast"`
			}{
				Address:     mac.String(),
				Initializer: mac.CInitializer(),
				Zero:        mac.IsZero(),
				Multicast:   mac.IsMulticast(),
				Broadcast:   mac.IsBroadcast(),
			}
			return env.output().emit(info, func() [][]string {
				return [][]string{
					{"address", info.Address},
					{"initializer", info.Initializer},
					{"zero", yesNo(info.Zero)},
					{"multicast", yesNo(info.Multicast)},
					{"broadcast", yesNo(info.Broadcast)},
				}
			})
		},
	}
}

// putEntry stores entry unless the profile exists and force is unset.
func putEntry(ctx context.Context, store *profiles.DirStore, entry profiles.Entry, force bool) (string, error) {
	name := entry.Profile.Name
	if err := firmware.ValidateName(name); err != nil {
		return "", err
	}
	if !force {
		_, err := store.Get(ctx, name)
		switch {
		case err == nil:
			return "", fmt.Errorf("profile %s already exists (use --force)", name)
		case !errors.Is(err, profiles.ErrNotFound):
			return "", err
		}
	}
	if err := store.Put(ctx, entry); err != nil {
		return "", err
	}
	return filepath.Join(store.Dir(), name+".yaml"), nil
}
