package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	domain "github.com/eurocoin-catalog/api/internal/domain"
	"github.com/eurocoin-catalog/api/internal/platform/observability"
	"github.com/eurocoin-catalog/api/internal/series"
	"github.com/eurocoin-catalog/api/internal/services"
)

type rootOptions struct {
	csvPath  string
	logLevel string
	verbose  bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "catalogctl",
		Short:         "Inspect euro coin series labels offline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.csvPath, "csv", "", "catalog CSV snapshot used as the record collection")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "report skipped CSV rows on stderr")

	root.AddCommand(
		newLabelsCmd(opts),
		newAnalyzeCmd(opts),
		newDictionariesCmd(),
	)
	return root
}

func newLabelsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "labels CODE...",
		Short: "Render display labels for series codes",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			coins, err := opts.loadCoins(cmd)
			if err != nil {
				return err
			}
			labeler := series.NewLabeler(series.NewCache(), series.WithLogger(opts.logger().Named("series")))

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, labeled := range labeler.BatchLabelOrdered(args, coins) {
				fmt.Fprintf(w, "%s\t%s\t%s\n", labeled.Code, labeled.Kind, labeled.Label)
			}
			return w.Flush()
		},
	}
}

func newAnalyzeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze COUNTRY",
		Short: "Print the regular series ranges inferred for a country",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			country := strings.ToUpper(strings.TrimSpace(args[0]))
			if country == "" {
				return errors.New("country code is required")
			}
			coins, err := opts.loadCoins(cmd)
			if err != nil {
				return err
			}
			analysis := series.Analyze(country, coins)
			if len(analysis.Series) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "no regular series recorded for %s\n", country)
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "CODE\tSTART\tEND\tACTIVE\tYEARS")
			for _, span := range analysis.Series {
				fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\n", span.Code, span.Start, span.End, span.Active, joinYears(span.ObservedYears))
			}
			return w.Flush()
		},
	}
}

func newDictionariesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dictionaries",
		Short: "Print the country and commemorative suffix dictionaries as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(struct {
				Countries map[string]string `json:"countries"`
				Suffixes  map[string]string `json:"suffixes"`
			}{
				Countries: series.Countries(),
				Suffixes:  series.Suffixes(),
			})
		},
	}
}

// loadCoins reads the --csv snapshot. Without one the record collection is empty and labels degrade.
func (o *rootOptions) loadCoins(cmd *cobra.Command) ([]domain.Coin, error) {
	if strings.TrimSpace(o.csvPath) == "" {
		return nil, nil
	}
	file, err := os.Open(o.csvPath)
	if err != nil {
		return nil, fmt.Errorf("open catalog csv: %w", err)
	}
	defer file.Close()
	return readCoins(file, cmd.ErrOrStderr(), o.verbose)
}

func readCoins(r io.Reader, errOut io.Writer, verbose bool) ([]domain.Coin, error) {
	rows, err := services.ParseCatalogCSV(r)
	if err != nil {
		if errors.Is(err, services.ErrCatalogImportEmpty) {
			return nil, nil
		}
		return nil, err
	}
	coins := make([]domain.Coin, 0, len(rows))
	for _, row := range rows {
		if row.Status == services.ImportRowInvalid {
			if verbose {
				fmt.Fprintf(errOut, "line %d skipped: %s\n", row.Line, row.Reason)
			}
			continue
		}
		coins = append(coins, row.Coin)
	}
	return coins, nil
}

func (o *rootOptions) logger() *zap.Logger {
	if o.logLevel == "" {
		return zap.NewNop()
	}
	logger, err := observability.NewLoggerAtLevel(o.logLevel)
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func joinYears(years []int) string {
	parts := make([]string, 0, len(years))
	for _, year := range years {
		parts = append(parts, fmt.Sprint(year))
	}
	return strings.Join(parts, ",")
}
