package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tanq16/arcfetch/internal/cache"
	"github.com/tanq16/arcfetch/internal/output"
	"github.com/tanq16/arcfetch/internal/utils"
)

func newCleanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clean [output-dir]",
		Short: "Remove the gallery cache and partial downloads",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := readConfig(cmd)
			if err != nil {
				return err
			}
			dir := cfg.OutputDir
			if len(args) == 1 {
				dir = args[0]
			}
			if err := cache.Remove(cfg.CacheFile); err != nil {
				return err
			}
			removed, err := utils.CleanPartials(dir)
			if err != nil {
				return err
			}
			output.PrintSuccess(fmt.Sprintf("Removed %s and %d partial download(s)", cfg.CacheFile, removed))
			return nil
		},
	}
}
