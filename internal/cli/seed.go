package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mmeshcher/impact-portal/internal/catalog"
)

var seedFile string

func init() {
	seedCmd.Flags().StringVarP(&seedFile, "file", "f", "", "TOML catalog file (built-in catalog when empty)")
	rootCmd.AddCommand(seedCmd)
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load achievements and equivalencies into the database",
	Long: `Seed upserts achievements by code and equivalencies by name, so running it
again with an edited file updates the catalog in place. Run "recompute --all"
afterwards to apply new thresholds to existing users.`,
	Args: cobra.NoArgs,
	RunE: runSeed,
}

func loadCatalog(path string) (catalog.Catalog, error) {
	if path == "" {
		return catalog.Default()
	}
	return catalog.Load(path)
}

func runSeed(cmd *cobra.Command, args []string) error {
	c, err := loadCatalog(seedFile)
	if err != nil {
		return err
	}

	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	if err := e.svc.SeedCatalog(cmd.Context(), c.Achievements, c.Equivalencies); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d achievements and %d equivalencies\n",
		len(c.Achievements), len(c.Equivalencies))
	return nil
}
