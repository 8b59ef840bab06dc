package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fullstorydev/grpcurl"
	"github.com/jhump/protoreflect/grpcreflect"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/joshp123/climatelink/internal/core"
	"github.com/joshp123/climatelink/internal/rpc"
)

func pluginsCmd(env *cliEnv) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plugins",
		Short: "Inspect plugins registered on the server",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List plugins and their health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, conn, done, err := env.dial(cmd.Context())
			if err != nil {
				return err
			}
			defer done()

			var list core.PluginList
			if err := invokeStruct(ctx, conn, core.RegistryAPI, "ListPlugins", &emptypb.Empty{}, &list); err != nil {
				return fmt.Errorf("list plugins: %w", err)
			}
			return env.output().emit(list, func() [][]string {
				rows := [][]string{{"PLUGIN", "NAME", "VERSION", "STATUS"}}
				for _, p := range list.Plugins {
					rows = append(rows, []string{p.PluginID, p.DisplayName, p.Version, p.Status})
				}
				return rows
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "describe <plugin-id>",
		Short: "Show a plugin's services, dashboards and agent notes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, conn, done, err := env.dial(cmd.Context())
			if err != nil {
				return err
			}
			defer done()

			var desc core.PluginDescriptor
			if err := invokeStruct(ctx, conn, core.RegistryAPI, "DescribePlugin", wrapperspb.String(args[0]), &desc); err != nil {
				return fmt.Errorf("describe plugin: %w", err)
			}
			out := env.output()
			if out.json {
				return out.printJSON(desc)
			}
			fmt.Fprintf(out.w, "%s (%s) %s\n", desc.DisplayName, desc.PluginID, desc.Version)
			fmt.Fprintf(out.w, "status: %s", desc.Status)
			if desc.HealthMessage != "" {
				fmt.Fprintf(out.w, " (%s)", desc.HealthMessage)
			}
			fmt.Fprintln(out.w)
			fmt.Fprintf(out.w, "services: %s\n", strings.Join(desc.Services, ", "))
			for _, d := range desc.Dashboards {
				fmt.Fprintf(out.w, "dashboard: %s %s\n", d.Name, d.Path)
			}
			if desc.AgentsMD != "" {
				fmt.Fprintf(out.w, "\n%s\n", strings.TrimSpace(desc.AgentsMD))
			}
			return nil
		},
	})
	return cmd
}

func servicesCmd(env *cliEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "services",
		Short: "List gRPC services exposed through reflection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, conn, done, err := env.dial(cmd.Context())
			if err != nil {
				return err
			}
			defer done()

			services, err := grpcurl.ListServices(reflectionSource(ctx, conn))
			if err != nil {
				return fmt.Errorf("list services: %w", err)
			}
			for _, service := range services {
				fmt.Fprintln(cmd.OutOrStdout(), service)
			}
			return nil
		},
	}
}

func methodsCmd(env *cliEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "methods <service>",
		Short: "List methods of a gRPC service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, conn, done, err := env.dial(cmd.Context())
			if err != nil {
				return err
			}
			defer done()

			methods, err := grpcurl.ListMethods(reflectionSource(ctx, conn), args[0])
			if err != nil {
				return fmt.Errorf("list methods: %w", err)
			}
			for _, method := range methods {
				fmt.Fprintln(cmd.OutOrStdout(), method)
			}
			return nil
		},
	}
}

func callCmd(env *cliEnv) *cobra.Command {
	var data string
	cmd := &cobra.Command{
		Use:   "call <service/method>",
		Short: "Invoke any method with a JSON request body",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, conn, done, err := env.dial(cmd.Context())
			if err != nil {
				return err
			}
			defer done()

			descSource := reflectionSource(ctx, conn)

			var reader io.Reader
			switch {
			case data != "":
				reader = strings.NewReader(data)
			case isStdinTerminal():
				reader = strings.NewReader("{}")
			default:
				reader = os.Stdin
			}

			parser, formatter, err := grpcurl.RequestParserAndFormatter(grpcurl.FormatJSON, descSource, reader, grpcurl.FormatOptions{})
			if err != nil {
				return fmt.Errorf("parse request: %w", err)
			}

			handler := &grpcurl.DefaultEventHandler{
				Out:       cmd.OutOrStdout(),
				Formatter: formatter,
			}
			if err := grpcurl.InvokeRPC(ctx, descSource, conn, args[0], nil, handler, parser.Next); err != nil {
				return fmt.Errorf("invoke: %w", err)
			}
			if handler.Status != nil && handler.Status.Err() != nil {
				return handler.Status.Err()
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&data, "data", "d", "", "JSON request body (default: stdin, or {})")
	return cmd
}

func reflectionSource(ctx context.Context, conn *grpc.ClientConn) grpcurl.DescriptorSource {
	client := grpcreflect.NewClientAuto(ctx, conn)
	return grpcurl.DescriptorSourceFromServer(ctx, client)
}

// invokeStruct calls a method whose response is a Struct and decodes it
// into out.
func invokeStruct(ctx context.Context, conn grpc.ClientConnInterface, svc rpc.Service, method string, in proto.Message, out any) error {
	resp := &structpb.Struct{}
	if err := rpc.Invoke(ctx, conn, svc, method, in, resp); err != nil {
		return err
	}
	return rpc.FromStruct(resp, out)
}

func isStdinTerminal() bool {
	info, err := os.Stdin.Stat()
	if err != nil {
		return true
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
