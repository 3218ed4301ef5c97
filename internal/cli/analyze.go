package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"ecomverify/internal/domain"
	"ecomverify/internal/ports"
	"ecomverify/internal/services/analyzer"
)

type analyzeOutput struct {
	URL    string                `json:"url"`
	Source domain.Source         `json:"source"`
	Result domain.AnalysisResult `json:"result"`
}

func newAnalyzeCmd(a *app) *cobra.Command {
	var (
		asJSON  bool
		useDB   bool
		refresh bool
	)

	cmd := &cobra.Command{
		Use:   "analyze <url>...",
		Short: "Analyze one or more shop URLs and print the verdict",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := loadConfig()
			engine, err := a.engine(cfg)
			if err != nil {
				return err
			}

			svc := analyzer.New(engine, nil, nil, nil)
			if useDB {
				store, closeStore, err := a.openStore(ctx, cfg)
				if err != nil {
					return err
				}
				defer closeStore()
				svc = analyzer.New(engine, store, nil, store)
			}

			out := cmd.OutOrStdout()
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			failed := 0
			for _, raw := range args {
				res, src, err := svc.Analyze(ctx, raw, ports.AnalyzeOptions{Refresh: refresh})
				if err != nil {
					failed++
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", raw, err)
					continue
				}
				if asJSON {
					if err := enc.Encode(analyzeOutput{URL: res.URL, Source: src, Result: res}); err != nil {
						return err
					}
					continue
				}
				printResult(out, res, src)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d urls could not be analyzed", failed, len(args))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print results as JSON")
	cmd.Flags().BoolVar(&useDB, "store", false, "Read and persist results through the analysis store (needs DATABASE_URL)")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "With --store, ignore the stored result and analyze again")
	return cmd
}

func printResult(w io.Writer, res domain.AnalysisResult, src domain.Source) {
	fmt.Fprintf(w, "URL:        %s\n", res.URL)
	fmt.Fprintf(w, "Verdict:    %s\n", strings.ToUpper(string(res.Verdict)))
	fmt.Fprintf(w, "Confidence: %.2f\n", res.Confidence)
	fmt.Fprintf(w, "Risk:       %.2f (%s)\n", res.RiskScore, res.RiskLevel)
	fmt.Fprintf(w, "Source:     %s\n", src)
	if !res.VerificationsCompleted {
		fmt.Fprintln(w, "Warning:    verifications did not complete")
	}
	fmt.Fprintln(w, "Reasons:")
	for _, r := range res.Reasons {
		fmt.Fprintf(w, "  - %s\n", r)
	}
	fmt.Fprintln(w)
}
