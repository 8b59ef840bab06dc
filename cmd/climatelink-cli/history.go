package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/joshp123/climatelink/internal/ledger"
)

func historyCmd(env *cliEnv) *cobra.Command {
	var (
		path  string
		limit int
	)
	cmd := &cobra.Command{
		Use:   "history <profile>",
		Short: "List recorded renders of a profile, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				if cfg := env.serverConfig(); cfg != nil && cfg.Ledger != nil {
					path = cfg.Ledger.Path
				}
			}
			if path == "" {
				return fmt.Errorf("no ledger configured (use --ledger)")
			}

			l, err := ledger.Open(path)
			if err != nil {
				return err
			}
			defer l.Close()

			renders, err := l.History(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			return env.output().emit(renders, func() [][]string {
				rows := [][]string{{"ID", "RENDERED", "READY", "PROBLEMS", "CONFIG SHA256", "IR SHA256"}}
				for _, r := range renders {
					rows = append(rows, []string{
						r.ID,
						r.RenderedAt.Local().Format("2006-01-02 15:04:05"),
						yesNo(r.Ready),
						strconv.Itoa(r.Problems),
						shortSum(r.ConfigSHA256),
						shortSum(r.IRSHA256),
					})
				}
				return rows
			})
		},
	}
	cmd.Flags().StringVar(&path, "ledger", "", "render ledger database (default from config)")
	cmd.Flags().IntVarP(&limit, "limit", "n", ledger.DefaultHistoryLimit, "maximum renders to list")
	return cmd
}

func shortSum(sum string) string {
	if len(sum) > 12 {
		return sum[:12]
	}
	return sum
}
