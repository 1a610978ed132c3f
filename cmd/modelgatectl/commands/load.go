package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newLoadCmd() *cobra.Command {
	var modelType string
	var force bool
	c := &cobra.Command{
		Use:   "load MODEL_ID",
		Short: "Load a model onto the accelerator",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp modelView
			body := map[string]any{"model_id": args[0], "model_type": modelType, "force": force}
			if err := newClient(addr).do("POST", "/models/load", body, &resp); err != nil {
				return err
			}
			cmd.Printf("loaded %s (%s), %s\n", resp.ModelID, resp.Type, resp.LoadedAt)
			return nil
		},
	}
	c.Flags().StringVar(&modelType, "type", "llm", "model type: llm, image, image2image, video")
	c.Flags().BoolVar(&force, "force", false, "reload even if already resident")
	return c
}

func newUnloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unload MODEL_ID",
		Short: "Unload a resident model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp struct {
				FreedMB uint64 `json:"freed_mb"`
			}
			body := map[string]any{"model_id": args[0]}
			if err := newClient(addr).do("POST", "/models/unload", body, &resp); err != nil {
				return err
			}
			cmd.Print(fmt.Sprintf("freed %d MB\n", resp.FreedMB))
			return nil
		},
	}
}
