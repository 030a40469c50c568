// Package status prints a job from a running server.
package status

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/rsamf/mink/internal/apiclient"
)

// Command returns the status command.
func Command() *cobra.Command {
	var serverURL string

	cmd := &cobra.Command{
		Use:   "status <api-key> <job-id>",
		Short: "Print a job with its transcript, on-screen text and notes",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := apiclient.New(serverURL, args[0], nil)
			if err != nil {
				return err
			}
			job, err := client.Job(cmd.Context(), args[1])
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(job)
		},
	}

	cmd.Flags().StringVar(&serverURL, "url", apiclient.DefaultBaseURL, "Server base URL")

	return cmd
}
