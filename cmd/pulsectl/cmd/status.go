package cmd

import (
	"net/http"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status <delivery-id>",
	Short: "Show the current state of a delivery",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return call(http.MethodGet, "/deliveries/"+args[0], nil, nil)
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
