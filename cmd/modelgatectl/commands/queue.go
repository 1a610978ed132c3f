package commands

import (
	"github.com/spf13/cobra"
)

func newQueueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "queue",
		Short: "Show task queue depth",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp struct {
				Pending    int `json:"Pending"`
				Processing int `json:"Processing"`
			}
			if err := newClient(addr).do("GET", "/tasks/stats", nil, &resp); err != nil {
				return err
			}
			cmd.Printf("pending %d, processing %d\n", resp.Pending, resp.Processing)
			return nil
		},
	}
}
