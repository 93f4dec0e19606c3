package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/andresuchdata/autopo-forecast/internal/config"
	"github.com/andresuchdata/autopo-forecast/internal/domain"
	"github.com/andresuchdata/autopo-forecast/internal/drive"
	"github.com/andresuchdata/autopo-forecast/internal/forecast"
	"github.com/andresuchdata/autopo-forecast/internal/metrics"
	"github.com/andresuchdata/autopo-forecast/internal/pipeline"
	"github.com/andresuchdata/autopo-forecast/internal/sheet"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

func inputFlag(usage string, required bool) *cli.StringFlag {
	return &cli.StringFlag{
		Name:     "input",
		Aliases:  []string{"i"},
		Usage:    usage,
		Required: required,
	}
}

func outputFlag(usage, value string) *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "output",
		Aliases: []string{"o"},
		Usage:   usage,
		Value:   value,
	}
}

func pivotCommand() *cli.Command {
	return &cli.Command{
		Name:  "pivot",
		Usage: "Pivot a raw order export into an item by month sales workbook",
		Flags: []cli.Flag{
			inputFlag("Order export (.xlsx or .csv)", true),
			outputFlag("Pivot workbook to write", "data/output/pivot.xlsx"),
		},
		Action: func(c *cli.Context) error {
			t, err := sheet.ReadTable(c.String("input"), "")
			if err != nil {
				return err
			}
			pivot, err := sheet.BuildPivotFromOrders(t)
			if err != nil {
				return err
			}
			if err := sheet.SavePivot(c.String("output"), pivot); err != nil {
				return err
			}
			log.Info().
				Int("items", len(pivot.Rows)).
				Int("months", len(pivot.Headers)).
				Str("output", c.String("output")).
				Msg("Pivot written")
			return nil
		},
	}
}

func predictCommand() *cli.Command {
	return &cli.Command{
		Name:  "predict",
		Usage: "Forecast every item of a sales pivot",
		Flags: []cli.Flag{
			inputFlag("Sales pivot (.xlsx or .csv)", false),
			&cli.StringFlag{
				Name:  "object",
				Usage: "Object storage key to read the input from instead of --input",
			},
			&cli.BoolFlag{
				Name:  "orders",
				Usage: "Treat the input as a raw order export",
			},
			outputFlag("Directory receiving one folder per run", "data/output"),
			&cli.StringFlag{
				Name:    "today",
				Usage:   "Reference date (YYYY-MM-DD); defaults to the current date",
				EnvVars: []string{"FORECAST_REFERENCE_DATE"},
			},
			&cli.IntFlag{
				Name:    "workers",
				Usage:   "Items forecast concurrently",
				EnvVars: []string{"FORECAST_WORKERS"},
			},
			&cli.IntFlag{
				Name:    "threshold",
				Usage:   "Largest distinct-date count routed to the heuristic",
				Value:   forecast.DefaultMinDistinctDates,
				EnvVars: []string{"FORECAST_MIN_DISTINCT_DATES"},
			},
			&cli.StringFlag{
				Name:    "model",
				Usage:   "Per-item statistical model (additive, logistic)",
				EnvVars: []string{"FORECAST_MODEL"},
			},
			&cli.BoolFlag{
				Name:    "ets",
				Usage:   "Add a Holt-Winters projection of the historical total",
				EnvVars: []string{"FORECAST_ETS_ENABLED"},
			},
			&cli.StringFlag{
				Name:    "db-url",
				Usage:   "Postgres URL for run tracking; runs are kept in memory when empty",
				EnvVars: []string{"DATABASE_URL"},
			},
			&cli.BoolFlag{
				Name:  "upload",
				Usage: "Upload outputs to the configured object storage",
			},
		},
		Action: runPredict,
	}
}

func runPredict(c *cli.Context) error {
	cfg := config.Load()
	cfg.Forecast.ReferenceDate = c.String("today")
	cfg.Forecast.MinDistinctDates = c.Int("threshold")
	if c.IsSet("workers") {
		cfg.Forecast.Workers = c.Int("workers")
	}
	if c.IsSet("model") {
		cfg.Forecast.Model = c.String("model")
	}
	if c.IsSet("ets") {
		cfg.Forecast.ETSEnabled = c.Bool("ets")
	}
	if c.IsSet("db-url") {
		cfg.Database.URL = c.String("db-url")
	}

	opts, err := pipeline.OptionsFromConfig(cfg.Forecast, time.Now())
	if err != nil {
		return err
	}

	pcfg := pipeline.DefaultPipelineConfig(c.String("output"))
	pcfg.Upload = c.Bool("upload")

	rt, err := pipeline.NewRuntime(c.Context, cfg, pcfg, metrics.New(nil))
	if err != nil {
		return err
	}
	defer rt.Close()

	if pcfg.Upload && rt.Storage == nil {
		return errors.New("--upload needs STORAGE_PROVIDER and STORAGE_BUCKET")
	}

	src, err := predictSource(c, rt, cfg)
	if err != nil {
		return err
	}

	res, err := pipeline.NewOrchestrator(pcfg, opts, rt.Deps).Run(c.Context, src, time.Time{})
	if err != nil {
		return err
	}
	return printReport(c.App.Writer, res)
}

func predictSource(c *cli.Context, rt *pipeline.Runtime, cfg *config.Config) (pipeline.Source, error) {
	input, object := c.String("input"), c.String("object")
	switch {
	case input != "" && object != "":
		return nil, errors.New("use either --input or --object")
	case object != "":
		if rt.Storage == nil {
			return nil, errors.New("--object needs STORAGE_PROVIDER and STORAGE_BUCKET")
		}
		return pipeline.ObjectSource{
			Storage: rt.Storage,
			Key:     object,
			Dir:     filepath.Join(cfg.App.DataDir, "downloads"),
			Orders:  c.Bool("orders"),
		}, nil
	case input == "":
		return nil, errors.New("--input or --object is required")
	case c.Bool("orders"):
		return pipeline.OrdersSource{Path: input}, nil
	default:
		return pipeline.FileSource{Path: input}, nil
	}
}

func printReport(w io.Writer, res *pipeline.RunResult) error {
	run, report := res.Run, res.Report
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Run\t%s\n", run.ID)
	fmt.Fprintf(tw, "Reference date\t%s\n", run.ReferenceDate.Format("2006-01-02"))
	fmt.Fprintf(tw, "Items\t%d\n", run.TotalItems)
	fmt.Fprintf(tw, "Heuristic\t%d (%d outside horizon)\n", run.HeuristicItems, run.HorizonMisses)
	fmt.Fprintf(tw, "Statistical (%s)\t%d\n", run.Model, run.StatisticalItems)
	fmt.Fprintf(tw, "Failed\t%d\n", run.FailedItems)
	if report.CapError != "" {
		fmt.Fprintf(tw, "Cap model\tfailed: %s\n", report.CapError)
	} else {
		fmt.Fprintf(tw, "Cap\t%.0f\n", report.Cap)
	}
	fmt.Fprintln(tw)

	fmt.Fprintln(tw, "Period\tItem total\tCap forecast\tDivergence")
	for _, cmp := range report.Comparison {
		capValue, divergence := "-", "-"
		if cmp.CapForecast != nil {
			capValue = fmt.Sprintf("%.1f", *cmp.CapForecast)
		}
		if cmp.Divergence != nil {
			divergence = fmt.Sprintf("%+.1f", *cmp.Divergence)
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", cmp.Period, cmp.ItemTotal, capValue, divergence)
	}
	fmt.Fprintln(tw)

	for _, out := range run.Outputs {
		fmt.Fprintf(tw, "Output\t%s\n", out)
	}
	return tw.Flush()
}

func etsCommand() *cli.Command {
	return &cli.Command{
		Name:  "ets",
		Usage: "Project the historical monthly total with Holt-Winters",
		Flags: []cli.Flag{
			inputFlag("Sales pivot (.xlsx or .csv)", true),
			outputFlag("CSV or workbook to write; prints to stdout when empty", ""),
			&cli.IntFlag{
				Name:    "horizon",
				Usage:   "Months to project",
				Value:   forecast.DefaultHorizon,
				EnvVars: []string{"FORECAST_HORIZON"},
			},
		},
		Action: func(c *cli.Context) error {
			pivot, err := sheet.ReadPivot(c.String("input"))
			if err != nil {
				return err
			}
			history, failures, err := forecast.PivotHistory(pivot)
			if err != nil {
				return err
			}
			for _, f := range failures {
				log.Warn().Str("item", f.ItemID).Str("reason", f.Reason).Msg("Item left out of the total")
			}

			ets, err := forecast.FitETS(history, c.Int("horizon"))
			if err != nil {
				return err
			}
			t := sheet.AggregateTable(map[string]domain.AggregateSeries{
				"historical":   history,
				"ets_forecast": ets,
			}, []string{"historical", "ets_forecast"})

			if out := c.String("output"); out != "" {
				return sheet.SaveTable(out, "ETS", t)
			}
			return sheet.WriteTable(c.App.Writer, sheet.FormatCSV, "", t)
		},
	}
}

func scrambleCommand() *cli.Command {
	return &cli.Command{
		Name:  "scramble",
		Usage: "Replace item ids with a reproducible substitution cipher",
		Flags: []cli.Flag{
			inputFlag("Pivot or order file (.xlsx or .csv)", true),
			outputFlag("File to write", ""),
			&cli.StringFlag{
				Name:  "column",
				Usage: "Column holding the item ids",
				Value: sheet.ItemColumn,
			},
			&cli.Int64Flag{
				Name:    "seed",
				Usage:   "Cipher seed",
				Value:   1,
				EnvVars: []string{"SCRAMBLE_SEED"},
			},
			&cli.StringFlag{
				Name:  "sheet",
				Usage: "Workbook sheet to read and write",
				Value: sheet.PivotSheet,
			},
		},
		Action: func(c *cli.Context) error {
			in := c.String("input")
			out := c.String("output")
			if out == "" {
				ext := filepath.Ext(in)
				out = strings.TrimSuffix(in, ext) + "_scrambled" + ext
			}

			t, err := sheet.ReadTable(in, c.String("sheet"))
			if err != nil {
				return err
			}
			scrambled, err := sheet.NewScrambler(c.Int64("seed")).ScrambleColumn(t, c.String("column"))
			if err != nil {
				return err
			}
			if err := sheet.SaveTable(out, c.String("sheet"), scrambled); err != nil {
				return err
			}
			log.Info().Str("output", out).Int("rows", len(scrambled.Rows)).Msg("Scrambled file written")
			return nil
		},
	}
}

func fetchCommand() *cli.Command {
	return &cli.Command{
		Name:  "fetch",
		Usage: "Download sales workbooks from a Google Drive folder",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "credentials",
				Usage:   "Service account credentials JSON file",
				EnvVars: []string{"DRIVE_CREDENTIALS_FILE"},
			},
			&cli.StringFlag{
				Name:    "folder-id",
				Usage:   "Drive folder id",
				EnvVars: []string{"DRIVE_FOLDER_ID"},
			},
			&cli.StringFlag{
				Name:  "folder-path",
				Usage: "Drive folder path from the drive root, used instead of --folder-id",
			},
			&cli.StringFlag{
				Name:    "dir",
				Usage:   "Local download directory",
				Value:   "data/downloads",
				EnvVars: []string{"DRIVE_DOWNLOAD_DIR"},
			},
			&cli.StringFlag{
				Name:  "pattern",
				Usage: "Glob matched against file names",
			},
			&cli.BoolFlag{
				Name:  "latest",
				Usage: "Only download the most recently modified match",
			},
			&cli.BoolFlag{
				Name:  "csv",
				Usage: "Convert downloaded workbooks to CSV",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Overall download timeout",
				Value: 5 * time.Minute,
			},
		},
		Action: func(c *cli.Context) error {
			if c.String("credentials") == "" {
				return errors.New("--credentials or DRIVE_CREDENTIALS_FILE is required")
			}
			ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
			defer cancel()

			srv, err := drive.NewServiceFromFile(ctx, c.String("credentials"))
			if err != nil {
				return err
			}

			folderID := c.String("folder-id")
			if p := c.String("folder-path"); p != "" {
				if folderID, err = srv.FindFolderByPath(ctx, p); err != nil {
					return err
				}
			}

			paths, err := drive.NewDownloader(srv).Download(ctx, drive.DownloadOptions{
				FolderID:    folderID,
				DownloadDir: c.String("dir"),
				Pattern:     c.String("pattern"),
				LatestOnly:  c.Bool("latest"),
				ConvertCSV:  c.Bool("csv"),
			})
			if err != nil {
				return err
			}
			for _, p := range paths {
				fmt.Fprintln(c.App.Writer, p)
			}
			return nil
		},
	}
}
