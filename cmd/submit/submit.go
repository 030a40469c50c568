// Package submit uploads a meeting recording to a running server.
package submit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rsamf/mink/internal/apiclient"
	"github.com/rsamf/mink/pkg/spinner"
)

// Command returns the submit command.
func Command() *cobra.Command {
	var (
		serverURL string
		wait      bool
		interval  time.Duration
		timeout   time.Duration
		quiet     bool
	)

	cmd := &cobra.Command{
		Use:   "submit <api-key> <video>",
		Short: "Upload a meeting video for extraction",
		Long: `Upload a meeting video to a mink server and print the job handle.

Examples:
  # Queue a recording and return immediately
  mink submit "$MINK_KEY" standup.mp4

  # Queue and wait for the result
  mink submit --wait --url http://mink.internal:8000 "$MINK_KEY" standup.mp4`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := apiclient.New(serverURL, args[0], nil)
			if err != nil {
				return err
			}

			handle, err := client.Submit(cmd.Context(), args[1])
			if err != nil {
				return fmt.Errorf("upload failed: %w", err)
			}
			if !wait {
				return printJSON(cmd, handle)
			}

			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			var spin *spinner.Spinner
			if !quiet {
				spin = spinner.New(cmd.ErrOrStderr())
				spin.SetLabel("job " + handle.JobID + " queued")
				spin.Start(200 * time.Millisecond)
			}
			job, err := client.Wait(ctx, handle.JobID, interval)
			if spin != nil {
				spin.Stop()
			}
			if err != nil {
				return fmt.Errorf("waiting for job %s: %w", handle.JobID, err)
			}
			return printJSON(cmd, job)
		},
	}

	cmd.Flags().StringVar(&serverURL, "url", apiclient.DefaultBaseURL, "Server base URL")
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Poll until the job leaves queued and print it")
	cmd.Flags().DurationVar(&interval, "interval", 5*time.Second, "Polling interval with --wait")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Give up waiting after this long (0 waits forever)")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Do not draw progress while waiting")

	return cmd
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
