package commands

import (
	"github.com/spf13/cobra"
)

// addr is the daemon's HTTP address, shared by every subcommand via
// a persistent flag on the root command.
var addr string

// NewRootCmd builds the modelgatectl root command.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "modelgatectl",
		Short: "Operate a running modelgated gateway",
	}
	root.PersistentFlags().StringVar(&addr, "addr", "http://127.0.0.1:8080", "modelgated HTTP address")

	root.AddCommand(
		newListCmd(),
		newLoadCmd(),
		newUnloadCmd(),
		newGPUCmd(),
		newQueueCmd(),
	)
	return root
}
