package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/aristath/factorlab/internal/domain"
	"github.com/aristath/factorlab/internal/modules/artifacts"
	"github.com/aristath/factorlab/internal/modules/metadata"
	"github.com/aristath/factorlab/internal/work"
)

// resolver returns the instrument name resolver, or nil when names are unavailable
func (a *app) resolver(ctx context.Context) *metadata.Resolver {
	r, err := a.container.MetadataResolver(ctx)
	if err != nil {
		a.log.Warn().Err(err).Msg("Instrument names unavailable")
		return nil
	}
	return r
}

// skip reports an expected no-result outcome and swallows it; anything else is returned
func skip(w io.Writer, err error) error {
	if !domain.IsExpected(err) {
		return err
	}
	fmt.Fprintf(w, "skipped (%s): %v\n", domain.KindOf(err), err)
	return nil
}

func newWholeCmd(a *app) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "whole TICKER...",
		Short: "Whole-sample OLS with HAC(1) standard errors",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.loadStore(ctx); err != nil {
				return err
			}
			names := a.resolver(ctx)

			var results []domain.WholeSampleLoadings
			for i, ticker := range work.NormalizeTickers(args) {
				res, err := a.container.Fitter.FitWholeSample(ticker)
				if err != nil {
					if err := skip(cmd.ErrOrStderr(), err); err != nil {
						return err
					}
					continue
				}
				if i > 0 {
					fmt.Fprintln(cmd.OutOrStdout())
				}
				if err := writeWholeSample(cmd.OutOrStdout(), names, res); err != nil {
					return err
				}
				results = append(results, res)
			}

			if out == "" {
				return nil
			}
			return artifacts.WriteFile(out, func(w io.Writer) error {
				return artifacts.WriteWholeSample(w, results)
			})
		},
	}

	cmd.Flags().StringVar(&out, "out", "", "also write "+artifacts.WholeSampleFile+"-style CSV to this path")
	return cmd
}

type rollingFit func(instrument string, window int) (domain.RollingResult, error)

func newRollingFitCmd(a *app, use, short, defaultOut string, fit func(a *app) rollingFit) *cobra.Command {
	var (
		window int
		last   int
		out    string
	)

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.loadStore(ctx); err != nil {
				return err
			}
			names := a.resolver(ctx)

			var results []domain.RollingResult
			for i, ticker := range work.NormalizeTickers(args) {
				res, err := fit(a)(ticker, window)
				if err != nil {
					if err := skip(cmd.ErrOrStderr(), err); err != nil {
						return err
					}
					continue
				}
				if i > 0 {
					fmt.Fprintln(cmd.OutOrStdout())
				}
				if err := writeRolling(cmd.OutOrStdout(), names, res, last); err != nil {
					return err
				}
				results = append(results, res)
			}

			if out == "" {
				return nil
			}
			return artifacts.WriteFile(out, func(w io.Writer) error {
				return artifacts.WriteRolling(w, results)
			})
		},
	}

	cmd.Flags().IntVarP(&window, "window", "w", 60, "window length in observations")
	cmd.Flags().IntVar(&last, "last", 10, "print only the last N windows (0 prints all)")
	cmd.Flags().StringVar(&out, "out", "", "also write "+defaultOut+"-style CSV to this path")
	return cmd
}

func newRollingCmd(a *app) *cobra.Command {
	return newRollingFitCmd(a, "rolling TICKER...", "Rolling-window OLS loadings", artifacts.RollingFile,
		func(a *app) rollingFit { return a.container.Fitter.FitRolling })
}

func newCorrelationsCmd(a *app) *cobra.Command {
	return newRollingFitCmd(a, "correlations TICKER...", "Rolling correlations of excess returns with each factor",
		artifacts.CorrelationsFile,
		func(a *app) rollingFit { return a.container.Fitter.FitRollingCorrelations })
}
