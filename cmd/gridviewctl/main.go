package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ndfz-analytics/gridview/internal/feed"
	"github.com/ndfz-analytics/gridview/internal/forecast"
	"github.com/ndfz-analytics/gridview/internal/frame"
	"github.com/ndfz-analytics/gridview/internal/pipeline"
	"github.com/ndfz-analytics/gridview/internal/store"
	"github.com/ndfz-analytics/gridview/internal/view"
)

var (
	restrictionsCSV string
	spravkaCSV      string
	pogodaCSV       string

	storeBackend  string
	storeSnapshot string
	redisAddr     string
	postgresConn  string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "gridviewctl",
		Short: "Ops tool for the consumption-restriction analytics pipeline",
		Long: `Runs the reconciliation pipeline over exported feed dumps, produces
forecasts, and manages restriction records in the shared store.`,
	}

	rootCmd.PersistentFlags().StringVar(&restrictionsCSV, "restrictions", "", "Restrictions feed CSV (read from the store when unset)")
	rootCmd.PersistentFlags().StringVar(&spravkaCSV, "spravka", "", "Plan/fact feed CSV")
	rootCmd.PersistentFlags().StringVar(&pogodaCSV, "pogoda", "", "Weather feed CSV")
	rootCmd.PersistentFlags().StringVar(&storeBackend, "store", "memory", "Record store backend: memory, redis, postgres")
	rootCmd.PersistentFlags().StringVar(&storeSnapshot, "snapshot", "data/restrictions.json", "Snapshot file for the memory backend")
	rootCmd.PersistentFlags().StringVar(&redisAddr, "redis-addr", "localhost:6379", "Redis address for the redis backend")
	rootCmd.PersistentFlags().StringVar(&postgresConn, "postgres-conn", "", "Postgres connection string for the postgres backend")

	rootCmd.AddCommand(pipelineCmd())
	rootCmd.AddCommand(forecastCmd())
	rootCmd.AddCommand(recordsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func openStore() (store.Store, error) {
	switch storeBackend {
	case "memory":
		return store.NewMemoryStore(storeSnapshot), nil
	case "redis":
		return store.NewRedisStore(redisAddr, "")
	case "postgres":
		return store.NewPostgresStore(postgresConn)
	default:
		return nil, fmt.Errorf("unknown store backend %q", storeBackend)
	}
}

// loadFeeds assembles the pipeline inputs from CSV dumps and, when no
// restrictions dump is given, the live record store.
func loadFeeds(ctx context.Context) (pipeline.Feeds, error) {
	var feeds pipeline.Feeds
	var err error

	if restrictionsCSV != "" {
		if feeds.Restrictions, err = feed.ReadCSVFile(restrictionsCSV); err != nil {
			return feeds, fmt.Errorf("restrictions: %w", err)
		}
	} else {
		st, err := openStore()
		if err != nil {
			return feeds, err
		}
		defer st.Close()
		records := store.NewRecordService(st, nil)
		if feeds.Restrictions, err = records.Rows(ctx); err != nil {
			return feeds, fmt.Errorf("record store: %w", err)
		}
	}

	if spravkaCSV != "" {
		if feeds.Spravka, err = feed.ReadCSVFile(spravkaCSV); err != nil {
			return feeds, fmt.Errorf("spravka: %w", err)
		}
	}
	if pogodaCSV != "" {
		if feeds.Pogoda, err = feed.ReadCSVFile(pogodaCSV); err != nil {
			return feeds, fmt.Errorf("pogoda: %w", err)
		}
	}
	return feeds, nil
}

func pipelineCmd() *cobra.Command {
	var startStr, endStr, meanCols string

	cmd := &cobra.Command{
		Use:   "pipeline",
		Short: "Run the reconciliation pass and print the resulting table",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			feeds, err := loadFeeds(ctx)
			if err != nil {
				return err
			}

			res, err := pipeline.New(nil).Run(ctx, feeds)
			if err != nil {
				return err
			}

			table := res.Table
			if startStr != "" || endStr != "" {
				start := time.Time{}
				end := time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)
				if startStr != "" {
					if start, err = feed.ParseISO(startStr); err != nil {
						return fmt.Errorf("--start: %w", err)
					}
				}
				if endStr != "" {
					if end, err = feed.ParseISO(endStr); err != nil {
						return fmt.Errorf("--end: %w", err)
					}
				}
				if table, err = view.Range(table, start, end); err != nil {
					return err
				}
			}

			printTable(table)
			if meanCols != "" {
				means, err := view.RowMean(table, strings.Split(meanCols, ","))
				if err != nil {
					return err
				}
				fmt.Printf("\nrow-wise mean over %s:\n", meanCols)
				for i, day := range table.Days() {
					fmt.Printf("  %s  %s\n", feed.FormatISO(day), formatCell(means[i]))
				}
			}

			fmt.Printf("\n%d days, fingerprint %s\n", table.Len(), res.Fingerprint[:12])
			if d := res.Dropped; d.Restrictions+d.Spravka+d.Pogoda > 0 {
				fmt.Printf("dropped rows (bad dates): restrictions=%d spravka=%d pogoda=%d\n",
					d.Restrictions, d.Spravka, d.Pogoda)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&startStr, "start", "", "Range start (YYYY-MM-DD)")
	cmd.Flags().StringVar(&endStr, "end", "", "Range end (YYYY-MM-DD)")
	cmd.Flags().StringVar(&meanCols, "mean", "", "Comma-separated columns for a row-wise mean")
	return cmd
}

func forecastCmd() *cobra.Command {
	var horizon, p, d, q int

	cmd := &cobra.Command{
		Use:   "forecast <series> [series...]",
		Short: "Fit ARIMA per series and print point forecasts",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			feeds, err := loadFeeds(ctx)
			if err != nil {
				return err
			}
			res, err := pipeline.New(nil).Run(ctx, feeds)
			if err != nil {
				return err
			}

			forecaster, err := forecast.New()
			if err != nil {
				return err
			}

			order := forecast.Order{P: p, D: d, Q: q}
			failures := 0
			for _, name := range args {
				series, err := res.Series(name)
				if err != nil {
					fmt.Printf("%s: %v\n", name, err)
					failures++
					continue
				}
				fc, err := forecaster.Forecast(ctx, series, order, horizon)
				if err != nil {
					fmt.Printf("%s: %v\n", name, err)
					failures++
					continue
				}
				fmt.Printf("%s %s:\n", name, order)
				for _, pt := range fc.Points {
					fmt.Printf("  %s  %.0f\n", feed.FormatISO(pt.Day), pt.Value)
				}
			}
			if failures == len(args) {
				return fmt.Errorf("no series could be forecast")
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&horizon, "horizon", 7, "Number of future days")
	cmd.Flags().IntVar(&p, "p", forecast.DefaultOrder.P, "AR order")
	cmd.Flags().IntVar(&d, "d", forecast.DefaultOrder.D, "Differencing degree")
	cmd.Flags().IntVar(&q, "q", forecast.DefaultOrder.Q, "MA order")
	return cmd
}

func recordsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "records",
		Short: "Manage restriction records in the shared store",
	}
	cmd.AddCommand(recordsListCmd(), recordsAddCmd(), recordsDeleteCmd())
	return cmd
}

func recordsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all restriction records",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			records, err := store.NewRecordService(st, nil).List(cmd.Context())
			if err != nil {
				return err
			}
			for _, r := range records {
				fmt.Printf("%4d  %s  %s-%s  %-12s  %.2f MW\n",
					r.ID, r.Date, r.StartTime, r.EndTime, r.Type, r.VolumeMW)
			}
			fmt.Printf("%d records\n", len(records))
			return nil
		},
	}
}

func recordsAddCmd() *cobra.Command {
	var rec store.Record
	var volume string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Append a restriction record",
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := strconv.ParseFloat(volume, 64)
			if err != nil {
				return fmt.Errorf("--volume: %w", err)
			}
			rec.VolumeMW = v

			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			created, err := store.NewRecordService(st, nil).Append(cmd.Context(), rec)
			if err != nil {
				return err
			}
			fmt.Printf("created record %d\n", created.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&rec.Date, "date", "", "Date (DD.MM.YYYY)")
	cmd.Flags().StringVar(&rec.StartTime, "start", "", "Start time (HH:MM)")
	cmd.Flags().StringVar(&rec.EndTime, "end", "", "End time (HH:MM)")
	cmd.Flags().StringVar(&rec.Type, "type", "", `Restriction type (e.g. "САОН", "Команда СО")`)
	cmd.Flags().StringVar(&volume, "volume", "0", "Volume in MW")
	cmd.MarkFlagRequired("date")
	cmd.MarkFlagRequired("type")
	return cmd
}

func recordsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a restriction record by ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid id %q", args[0])
			}

			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			if err := store.NewRecordService(st, nil).Delete(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Printf("deleted record %d\n", id)
			return nil
		},
	}
}

func printTable(table *frame.Frame) {
	cols := table.Columns()
	fmt.Printf("%-12s", "day")
	for _, c := range cols {
		fmt.Printf("  %s", c)
	}
	fmt.Println()

	for i := 0; i < table.Len(); i++ {
		row := table.Row(i)
		fmt.Printf("%-12s", feed.FormatISO(table.Days()[i]))
		for _, c := range cols {
			v, ok := row[c]
			if !ok {
				fmt.Printf("  %s", "-")
				continue
			}
			switch t := v.(type) {
			case float64:
				fmt.Printf("  %s", formatCell(t))
			default:
				fmt.Printf("  %v", v)
			}
		}
		fmt.Println()
	}
}

func formatCell(v float64) string {
	return strconv.FormatFloat(v, 'g', 6, 64)
}
