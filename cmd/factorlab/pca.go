package main

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/aristath/factorlab/internal/modules/artifacts"
)

func newPCACmd(a *app) *cobra.Command {
	var (
		components int
		window     int
		last       int
		out        string
	)

	cmd := &cobra.Command{
		Use:   "pca",
		Short: "Rolling variance explained by the leading principal components of the factors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if !cmd.Flags().Changed("components") {
				components = a.cfg.PCAComponents
			}
			if !cmd.Flags().Changed("window") {
				window = a.cfg.PCAWindow
			}

			if err := a.loadStore(ctx); err != nil {
				return err
			}
			panel, err := a.container.Store.FactorPanel()
			if err != nil {
				return err
			}
			res, err := a.container.PCA.Rolling(panel, components, window)
			if err != nil {
				return err
			}

			windows := res.Windows
			if last > 0 && len(windows) > last {
				windows = windows[len(windows)-last:]
			}
			tw := newTable(cmd.OutOrStdout())
			row(tw, append([]string{"date"}, res.Components...)...)
			for _, w := range windows {
				cells := []string{date(w.Date)}
				for _, r := range w.Ratios {
					cells = append(cells, num(r))
				}
				row(tw, cells...)
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			if out == "" {
				return nil
			}
			return artifacts.WriteFile(out, func(w io.Writer) error {
				return artifacts.WritePCA(w, res)
			})
		},
	}

	cmd.Flags().IntVarP(&components, "components", "n", 5, "components to report (default FACTORLAB_PCA_COMPONENTS)")
	cmd.Flags().IntVarP(&window, "window", "w", 250, "window length (default FACTORLAB_PCA_WINDOW)")
	cmd.Flags().IntVar(&last, "last", 10, "print only the last N windows (0 prints all)")
	cmd.Flags().StringVar(&out, "out", "", "also write "+artifacts.PCAFile+"-style CSV to this path")
	return cmd
}
