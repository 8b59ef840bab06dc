package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(stdout io.Writer) *cobra.Command {
	v := viper.New()
	root := &cobra.Command{
		Use:           "climatelink-cli",
		Short:         "Manage climate relay firmware profiles",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)

	flags := root.PersistentFlags()
	flags.String("addr", "", "climatelink gRPC address (default from config, then localhost:9000)")
	flags.String("config", "", "server config file used to find defaults")
	flags.String("profiles", "", "profiles directory for local commands")
	flags.Bool("json", false, "print JSON instead of tables")
	flags.Duration("timeout", defaultTimeout, "timeout for remote calls")
	for _, key := range []string{"addr", "config", "profiles", "json", "timeout"} {
		_ = v.BindPFlag(key, flags.Lookup(key))
	}
	_ = v.BindEnv("addr", "CLIMATELINK_GRPC_ADDR")
	_ = v.BindEnv("config", "CLIMATELINK_CONFIG")
	_ = v.BindEnv("profiles", "CLIMATELINK_PROFILES_DIR")

	env := &cliEnv{v: v, stdout: stdout}
	root.AddCommand(
		pluginsCmd(env),
		servicesCmd(env),
		methodsCmd(env),
		callCmd(env),
		profilesCmd(env),
		tablesCmd(env),
		templateCmd(env),
		checkCmd(env),
		renderCmd(env),
		importHeadersCmd(env),
		importIRCmd(env),
		macCmd(env),
		historyCmd(env),
		secretsCmd(env),
	)
	return root
}
