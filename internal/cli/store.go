package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"ecomverify/internal/services/analyzer"
	"ecomverify/internal/services/reports"
	"ecomverify/internal/workers/analysisrunner"
)

func newListCmd(a *app) *cobra.Command {
	var (
		limit  int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored analyses, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, closeStore, err := a.openStore(ctx, loadConfig())
			if err != nil {
				return err
			}
			defer closeStore()

			items, err := reports.New(store).List(ctx, limit)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(items)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "URL\tVERDICT\tCONFIDENCE\tANALYZED")
			for _, it := range items {
				fmt.Fprintf(tw, "%s\t%s\t%.2f\t%s\n", it.URL, it.Verdict, it.Confidence, it.AnalyzedAt.Format("2006-01-02 15:04"))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", reports.DefaultLimit, "Maximum number of analyses to list")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}

func newRefreshCmd(a *app) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "refresh [url...]",
		Short: "Re-analyze URLs and overwrite their stored results",
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(args) > 0) {
				return errors.New("pass either urls or --all")
			}
			ctx := cmd.Context()
			cfg := loadConfig()
			engine, err := a.engine(cfg)
			if err != nil {
				return err
			}
			store, closeStore, err := a.openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			targets := args
			if all {
				items, err := store.List(ctx, reports.MaxLimit)
				if err != nil {
					return err
				}
				targets = nil
				for _, it := range items {
					targets = append(targets, it.URL)
				}
			}

			svc := analyzer.New(engine, store, nil, store)
			failed := 0
			for _, target := range targets {
				jobID, err := analysisrunner.ProcessInline(ctx, store, svc, target)
				if err != nil {
					failed++
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", target, err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "refreshed %s (job %s)\n", target, jobID)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d refreshes failed", failed, len(targets))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Refresh every stored URL")
	return cmd
}
