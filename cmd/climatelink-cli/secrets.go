package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/joshp123/climatelink/internal/agenix"
	"github.com/joshp123/climatelink/internal/firmware"
	"github.com/joshp123/climatelink/internal/headers"
)

func secretsCmd(env *cliEnv) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secrets",
		Short: "Export rendered credentials into a nix-secrets repo",
	}

	var (
		writer        agenix.Writer
		allowTemplate bool
		includeIR     bool
	)
	store := &cobra.Command{
		Use:   "store <profile>",
		Short: "Render config.h (and optionally ir_codes.h) and encrypt it with agenix",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if writer.RepoPath == "" {
				writer.RepoPath = os.Getenv("CLIMATELINK_SECRETS_REPO")
			}

			entry, err := env.store().Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			files, err := headers.Render(entry.Profile, headers.Options{AllowTemplate: allowTemplate})
			if err != nil {
				return err
			}

			selected := map[string][]byte{firmware.ConfigHeader: files[firmware.ConfigHeader]}
			if includeIR {
				selected[firmware.IRHeader] = files[firmware.IRHeader]
			}
			stored, err := writer.Store(cmd.Context(), entry.Profile.Name, selected)
			for _, s := range stored {
				fmt.Fprintf(cmd.OutOrStdout(), "stored %s\n", s.Path)
			}
			return err
		},
	}
	flags := store.Flags()
	flags.StringVar(&writer.RepoPath, "repo", "", "nix-secrets repo (default $CLIMATELINK_SECRETS_REPO)")
	flags.StringVar(&writer.RulesPath, "rules", "", "secrets.nix path (default <repo>/secrets.nix)")
	flags.StringSliceVar(&writer.Recipients, "recipient", nil, "recipient for a new secrets.nix entry (default: reuse an existing climatelink entry)")
	flags.StringVar(&writer.Exec, "agenix", "agenix", "agenix executable")
	flags.BoolVar(&writer.SkipUpdate, "skip-rules", false, "do not touch secrets.nix")
	flags.BoolVar(&allowTemplate, "allow-template", false, "store even if the profile is not ready")
	flags.BoolVar(&includeIR, "include-ir", false, "also store ir_codes.h")
	cmd.AddCommand(store)

	return cmd
}
