package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/brojonat/txlist/service/config"
	"github.com/brojonat/txlist/service/metrics"
	"github.com/brojonat/txlist/service/query"
	"github.com/brojonat/txlist/service/transactions"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"
)

func conversionFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:  "strict",
			Usage: "Reject malformed records instead of filling in empty values; overrides TXLIST_STRICT",
		},
		&cli.StringFlag{
			Name:    "query",
			Aliases: []string{"q"},
			Usage:   "jq expression selecting the transaction array (e.g. .payload.transactions); overrides TXLIST_QUERY",
		},
		&cli.BoolFlag{
			Name:  "sort",
			Usage: "Order transactions newest first, pending ones on top",
		},
		&cli.StringFlag{
			Name:  "metrics-file",
			Usage: "Write Prometheus metrics to this textfile; overrides TXLIST_METRICS_FILE",
		},
		&cli.StringFlag{
			Name:  "timezone",
			Usage: "IANA timezone used for date sections; overrides TXLIST_TIMEZONE",
		},
	}
}

func convertCommand() *cli.Command {
	return &cli.Command{
		Name:      "convert",
		Usage:     "Convert a transaction array into display rows",
		ArgsUsage: "[file|-]",
		Flags: append(conversionFlags(), &cli.BoolFlag{
			Name:    "sections",
			Aliases: []string{"s"},
			Usage:   "Group rows into date sections",
		}),
		Action: func(c *cli.Context) error {
			return runConversion(c, c.Bool("sections"))
		},
	}
}

func sectionsCommand() *cli.Command {
	return &cli.Command{
		Name:      "sections",
		Usage:     "Convert a transaction array and group the rows by date",
		ArgsUsage: "[file|-]",
		Flags:     conversionFlags(),
		Action: func(c *cli.Context) error {
			return runConversion(c, true)
		},
	}
}

func runConversion(c *cli.Context, grouped bool) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	logger := setupLogger(c.App.ErrWriter, cfg.LogLevel)

	data, err := readInput(c)
	if err != nil {
		return err
	}

	input, err := transactions.DecodeJSON(data)
	if err != nil {
		return err
	}

	if cfg.Query != "" {
		input, err = query.Select(cfg.Query, input)
		if err != nil {
			return err
		}
	}

	registry := prometheus.NewRegistry()
	m := metrics.NewMetrics(registry)

	policy := transactions.PolicyPermissive
	if cfg.Strict {
		policy = transactions.PolicyStrict
	}
	converter := transactions.NewConverter(
		transactions.WithPolicy(policy),
		transactions.WithLogger(logger),
		transactions.WithMetrics(m),
	)

	txns, convErr := converter.Convert(input)
	logger.Debug("conversion finished",
		"policy", policy.String(),
		"transactions", len(txns),
	)

	if c.Bool("sort") {
		transactions.SortByMinedAt(txns)
	}

	if grouped {
		sections := transactions.GroupByDate(txns, time.Now().In(cfg.Location))
		if c.Bool("json") {
			err = outputJSON(c.App.Writer, sections)
		} else {
			printSections(c.App.Writer, sections)
		}
	} else {
		if c.Bool("json") {
			err = outputJSON(c.App.Writer, txns)
		} else {
			printTransactions(c.App.Writer, txns)
		}
	}
	if err != nil {
		return err
	}

	if !c.Bool("json") {
		fmt.Fprintf(c.App.ErrWriter, "\nTotal: %d transactions\n", len(txns))
	}

	if cfg.MetricsFile != "" {
		if err := m.WriteTextfile(cfg.MetricsFile); err != nil {
			return err
		}
	}

	if convErr != nil {
		return reportConversionError(c.App.ErrWriter, convErr)
	}
	return nil
}

// loadConfig reads the environment configuration and applies flag overrides.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	if c.IsSet("strict") {
		cfg.Strict = c.Bool("strict")
	}
	if c.IsSet("query") {
		cfg.Query = c.String("query")
	}
	if c.IsSet("metrics-file") {
		cfg.MetricsFile = c.String("metrics-file")
	}
	if c.IsSet("timezone") {
		cfg.Timezone = c.String("timezone")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Query != "" {
		if _, err := query.Compile(cfg.Query); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func readInput(c *cli.Context) ([]byte, error) {
	path := c.Args().First()
	if path == "" || path == "-" {
		data, err := io.ReadAll(c.App.Reader)
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		return data, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

// reportConversionError prints one line per rejected field and summarizes
// how many records were dropped.
func reportConversionError(w io.Writer, err error) error {
	var joined interface{ Unwrap() []error }
	if !errors.As(err, &joined) {
		return fmt.Errorf("conversion failed: %w", err)
	}

	rejected := make(map[int]struct{})
	for _, e := range joined.Unwrap() {
		fmt.Fprintf(w, "✗ %v\n", e)
		var decodeErr *transactions.DecodeError
		if errors.As(e, &decodeErr) {
			rejected[decodeErr.Index] = struct{}{}
		}
	}
	return fmt.Errorf("conversion failed: %d records rejected: %w", len(rejected), err)
}

func printTransactions(w io.Writer, txns []transactions.Transaction) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TYPE\tCOIN\tNATIVE\tBALANCE\tICON")
	for _, txn := range txns {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			txn.Type,
			orDash(txn.CoinName),
			orDash(txn.NativeDisplay),
			orDash(txn.BalanceDisplay),
			formatOptional(txn.CoinImage),
		)
	}
	tw.Flush()
}

func printSections(w io.Writer, sections []transactions.Section) {
	for i, section := range sections {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "── %s ──\n", section.Title)
		printTransactions(w, section.Transactions)
	}
}

func outputJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// Helper function to format optional strings
func formatOptional(s *string) string {
	if s != nil && *s != "" {
		return *s
	}
	return "-"
}
