package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lavallee/cub-sub002/internal/ledger"
)

var budgetCmd = &cobra.Command{
	Use:   "budget",
	Short: "Show budget limits and recent token usage",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		var last *ledger.Run
		if _, err := os.Stat(cfg.LedgerPath()); err == nil {
			if led, err := ledger.Open(ctx, cfg.LedgerPath()); err == nil {
				if run, ok, err := led.LatestRun(ctx); err == nil && ok {
					last = &run
				}
				led.Close()
			}
		}

		if jsonOutput {
			out := map[string]any{
				"tokenLimit":           cfg.Budget.TokenLimit,
				"warnThresholdPercent": cfg.Budget.WarnThresholdPercent,
				"maxTaskIterations":    cfg.Budget.MaxTaskIterations,
				"maxRunIterations":     cfg.Budget.MaxRunIterations,
			}
			if last != nil {
				out["lastRunTokens"] = last.Tokens
			}
			outputJSON(out)
			return
		}

		limit := "unlimited"
		if cfg.Budget.TokenLimit > 0 {
			limit = fmt.Sprintf("%d tokens", cfg.Budget.TokenLimit)
		}
		fmt.Printf("Token limit:     %s (warn at %d%%)\n", limit, cfg.Budget.WarnThresholdPercent)
		fmt.Printf("Task iterations: %d\n", cfg.Budget.MaxTaskIterations)
		fmt.Printf("Run iterations:  %d\n", cfg.Budget.MaxRunIterations)
		if last != nil {
			pct := ""
			if cfg.Budget.TokenLimit > 0 {
				pct = fmt.Sprintf(" (%d%% of limit)", last.Tokens*100/cfg.Budget.TokenLimit)
			}
			fmt.Printf("Last run usage:  %d tokens%s\n", last.Tokens, pct)
		}
	},
}

func init() {
	rootCmd.AddCommand(budgetCmd)
}
