package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/aristath/factorlab/internal/modules/factors"
	"github.com/aristath/factorlab/internal/modules/metadata"
	"github.com/aristath/factorlab/internal/modules/returns"
)

// Default download names inside FACTORLAB_RAW_DIR
const (
	defaultFiveFactors = "Developed_5_Factors_Daily_CSV.zip"
	defaultMomentum    = "Developed_Mom_Factor_Daily_CSV.zip"
	defaultQuality     = "Quality-Minus-Junk-Factors-Daily.xlsx"
	defaultBAB         = "Betting-Against-Beta-Equity-Factors-Daily.xlsx"
)

func newImportCmd(a *app) *cobra.Command {
	var metadataPath string

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Copy the factor and stock CSV files into returns.db",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			summary, err := a.container.ReturnsRepo.Import(ctx,
				returns.NewCSVFactorSource(a.cfg.FactorsCSV, a.log),
				returns.NewCSVReturnSource(a.cfg.StocksCSV, a.log),
			)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d factor dates and %d instruments (%d observations)\n",
				summary.FactorDates, summary.Instruments, summary.Observations)
			for _, id := range summary.Skipped {
				fmt.Fprintf(cmd.OutOrStdout(), "skipped %s: no observations\n", id)
			}

			if metadataPath == "" {
				return nil
			}
			f, err := os.Open(metadataPath)
			if err != nil {
				return fmt.Errorf("failed to open metadata file: %w", err)
			}
			defer f.Close()

			entries, err := metadata.ReadJSON(f)
			if err != nil {
				return err
			}
			if err := a.container.MetadataRepo.Upsert(ctx, entries); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d instrument names\n", len(entries))
			return nil
		},
	}

	cmd.Flags().StringVar(&metadataPath, "metadata", "", `instrument names JSON ({"TSLA": {"longName": "Tesla, Inc."}})`)
	return cmd
}

func newBuildFactorsCmd(a *app) *cobra.Command {
	var src factors.Sources
	var out string

	cmd := &cobra.Command{
		Use:   "build-factors",
		Short: "Build factors.csv from local Ken French and AQR downloads",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			orDefault := func(v *string, name string) {
				if *v == "" {
					*v = filepath.Join(a.cfg.RawDir, name)
				}
			}
			orDefault(&src.FiveFactors, defaultFiveFactors)
			orDefault(&src.Momentum, defaultMomentum)
			orDefault(&src.Quality, defaultQuality)
			orDefault(&src.BettingAgainstBeta, defaultBAB)
			if out == "" {
				out = a.cfg.FactorsCSV
			}

			panel, err := a.container.FactorBuilder.BuildTo(cmd.Context(), src, out)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d dates x %d factors to %s\n", len(panel.Dates), len(panel.Factors), out)
			return nil
		},
	}

	cmd.Flags().StringVar(&src.FiveFactors, "ff5", "", "Ken French 5 factors daily, csv or zip")
	cmd.Flags().StringVar(&src.Momentum, "mom", "", "Ken French momentum daily, csv or zip")
	cmd.Flags().StringVar(&src.Quality, "qmj", "", "AQR quality minus junk daily workbook")
	cmd.Flags().StringVar(&src.BettingAgainstBeta, "bab", "", "AQR betting against beta daily workbook")
	cmd.Flags().StringVar(&out, "out", "", "output path (default FACTORLAB_FACTORS_CSV)")
	return cmd
}

func newNamesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "names [TICKER...]",
		Short: "Show instrument display names",
		Long:  "names prints the display name of each ticker; with no arguments it lists every loaded instrument.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			names, err := a.container.MetadataResolver(ctx)
			if err != nil {
				return err
			}

			if len(args) == 0 {
				if err := a.loadStore(ctx); err != nil {
					return err
				}
				args = a.container.Store.Instruments()
			}

			tw := newTable(cmd.OutOrStdout())
			row(tw, "ticker", "name")
			for _, id := range args {
				name, ok := names.DisplayName(id)
				if !ok {
					name = "-"
				}
				row(tw, id, name)
			}
			return tw.Flush()
		},
	}
}
