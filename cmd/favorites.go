package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tanq16/arcfetch/internal/cache"
	"github.com/tanq16/arcfetch/internal/output"
	"github.com/tanq16/arcfetch/internal/site"
	"github.com/tanq16/arcfetch/internal/utils"
)

func newFavoritesCmd() *cobra.Command {
	var save bool

	cmd := &cobra.Command{
		Use:   "favorites [--favcat N] [--save]",
		Short: "List favorites folders and the galleries in one of them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			client := site.NewClient(utils.NewArcHTTPClient(siteHTTPConfig(cfg)), cfg.BaseURL(), cfg.APIURL)
			if err := client.Probe(ctx); err != nil {
				return err
			}
			enum := site.NewEnumerator(client)

			folders, err := enum.FavoriteFolders(ctx)
			if err != nil {
				return err
			}
			output.PrintHeader("Favorites folders")
			for i, name := range folders {
				output.PrintDetail(fmt.Sprintf("%d  %s", i, name))
			}

			refs, err := enum.Enumerate(ctx, cfg.Favcat)
			if err != nil {
				return err
			}
			output.PrintHeader(fmt.Sprintf("Galleries (favcat=%d)", cfg.Favcat))
			for _, ref := range refs {
				output.PrintStream(ref.URL)
			}
			output.PrintInfo(fmt.Sprintf("%d galleries", len(refs)))
			if save {
				if err := cache.Save(cfg.CacheFile, refs); err != nil {
					return err
				}
				output.PrintSuccess(fmt.Sprintf("Saved to %s", cfg.CacheFile))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&favcat, "favcat", 10, "Favorites folder 0-9, or 10 for all folders")
	cmd.Flags().BoolVar(&save, "save", false, "Write the gallery list to the cache file used by download")
	return cmd
}
