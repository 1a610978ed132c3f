package commands

import (
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newGPUCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gpu",
		Short: "Show accelerator memory status",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp struct {
				TotalMB uint64 `json:"TotalMB"`
				UsedMB  uint64 `json:"UsedMB"`
				FreeMB  uint64 `json:"FreeMB"`
			}
			if err := newClient(addr).do("GET", "/models/gpu", nil, &resp); err != nil {
				return err
			}
			cmd.Printf("total %s, used %s, free %s\n",
				humanize.IBytes(resp.TotalMB*1024*1024),
				humanize.IBytes(resp.UsedMB*1024*1024),
				humanize.IBytes(resp.FreeMB*1024*1024))
			return nil
		},
	}
}
