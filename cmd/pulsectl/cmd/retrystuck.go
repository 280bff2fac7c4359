package cmd

import (
	"net/http"

	"github.com/spf13/cobra"

	"github.com/clinicore/pulsehook/internal/auth"
)

var maxAgeMs int64

var retryStuckCmd = &cobra.Command{
	Use:   "retry-stuck",
	Short: "Repair stuck deliveries",
	Long: `Run one sweep over the deliveries table: pending rows that have
exhausted their attempts are failed, and overdue rows are rescheduled
for immediate retry.

Requires the cron secret unless the engine trusts a platform header.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var payload any
		if maxAgeMs > 0 {
			payload = map[string]int64{"maxAgeMs": maxAgeMs}
		}
		headers := map[string]string{}
		if cronSecret != "" {
			headers[auth.CronSecretHeader] = cronSecret
		}
		return call(http.MethodPost, "/retry-stuck", payload, headers)
	},
}

func init() {
	retryStuckCmd.Flags().Int64Var(&maxAgeMs, "max-age-ms", 0, "override the overdue threshold in milliseconds")
	rootCmd.AddCommand(retryStuckCmd)
}
