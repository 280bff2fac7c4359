package cmd

import (
	"net/http"

	"github.com/spf13/cobra"
)

var deliverCmd = &cobra.Command{
	Use:   "deliver <delivery-id>",
	Short: "Trigger one delivery attempt",
	Long: `Trigger a single delivery attempt for a pending delivery.

The engine claims the delivery, signs the envelope, POSTs it to the
endpoint and records the outcome. Running deliver on an already
delivered row is a no-op.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return call(http.MethodPost, "/deliver", map[string]string{"deliveryId": args[0]}, nil)
	},
}

func init() {
	rootCmd.AddCommand(deliverCmd)
}
