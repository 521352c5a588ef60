package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"cpgcore/internal/adapters/export"
	"cpgcore/internal/core"
)

func (a *app) catalogCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:     "catalog",
		Short:   "Join EWAS Catalog results with their studies for a probe list",
		Example: `  cpgcore catalog --catalog-results results.txt --catalog-studies studies.txt --cpgs probes.txt --out matches.csv`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			in, err := a.loadCatalog(false)
			if err != nil {
				return err
			}
			res, err := core.NewService(core.WithLogger(a.logger)).JoinCatalog(cmd.Context(), in)
			if err != nil {
				return err
			}
			payload, err := export.Render(export.FormatCSV, export.CatalogTable(res))
			if err != nil {
				return err
			}
			a.logger.Info("catalog joined", zap.Int("targets", len(in.Targets)), zap.Int("matches", len(res.Matches)))
			if out == "" {
				_, err = a.out.Write(payload)
				return err
			}
			if err := os.WriteFile(out, payload, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.String("catalog-results", "", "EWAS Catalog results (tsv)")
	f.String("catalog-studies", "", "EWAS Catalog studies (tsv)")
	f.String("cpgs", "", "probe list, one id per line")
	f.StringVarP(&out, "out", "o", "", "output csv (default stdout)")
	return cmd
}
