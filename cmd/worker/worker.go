package worker

import "github.com/spf13/cobra"

// NewWorkerCmd returns the parent "worker" command.
func NewWorkerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run one scheduler job synchronously, or the event sink",
	}
	// attach subcommands
	cmd.AddCommand(checkCmd, sendCmd, digestCmd, eventsCmd)

	return cmd
}
