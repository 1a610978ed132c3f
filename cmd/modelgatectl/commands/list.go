package commands

import (
	"bytes"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

type modelView struct {
	ModelID  string `json:"model_id"`
	Type     string `json:"model_type"`
	MemoryMB uint64 `json:"memory_mb"`
	LoadedAt string `json:"loaded_at"`
	LastUsed string `json:"last_used"`
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List resident models",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp struct {
				Models []modelView `json:"models"`
			}
			if err := newClient(addr).do("GET", "/models/", nil, &resp); err != nil {
				return err
			}
			cmd.Print(prettyPrintModels(resp.Models))
			return nil
		},
	}
}

func prettyPrintModels(models []modelView) string {
	if len(models) == 0 {
		fmt.Fprintln(os.Stderr, "no resident models")
		return ""
	}

	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)

	table.SetHeader([]string{"MODEL ID", "TYPE", "MEMORY", "LOADED AT", "LAST USED"})

	table.SetBorder(false)
	table.SetColumnSeparator("")
	table.SetHeaderLine(false)
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)

	table.SetColumnAlignment([]int{
		tablewriter.ALIGN_LEFT, // MODEL ID
		tablewriter.ALIGN_LEFT, // TYPE
		tablewriter.ALIGN_LEFT, // MEMORY
		tablewriter.ALIGN_LEFT, // LOADED AT
		tablewriter.ALIGN_LEFT, // LAST USED
	})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)

	for _, m := range models {
		table.Append([]string{
			m.ModelID,
			m.Type,
			humanize.IBytes(m.MemoryMB * 1024 * 1024),
			m.LoadedAt,
			m.LastUsed,
		})
	}

	table.Render()
	return buf.String()
}
