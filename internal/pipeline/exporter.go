package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/andresuchdata/autopo-forecast/internal/domain"
	"github.com/andresuchdata/autopo-forecast/internal/forecast"
	"github.com/andresuchdata/autopo-forecast/internal/sheet"
	"github.com/rs/zerolog/log"
)

// UploadFunc pushes an exported file to remote storage
type UploadFunc func(ctx context.Context, key string, data []byte) error

// Exporter writes the files of a finished run into its own directory and
// hands each one to the upload callback.
type Exporter struct {
	config PipelineConfig
	upload UploadFunc
}

// NewExporter creates an exporter. upload may be nil.
func NewExporter(config PipelineConfig, upload UploadFunc) *Exporter {
	return &Exporter{config: config, upload: upload}
}

type exportFile struct {
	name  string
	write func(*bytes.Buffer) error
}

// Export writes the prediction pivot (xlsx and csv), the aggregate
// comparison table and the failure list. It returns the local paths written
// followed by any uploaded object keys.
func (e *Exporter) Export(ctx context.Context, runID string, report *forecast.Report) ([]string, error) {
	dir := filepath.Join(e.config.OutputDir, runID)
	if err := ensureDir(dir); err != nil {
		return nil, err
	}

	files := []exportFile{
		{"predictions.xlsx", func(b *bytes.Buffer) error {
			return sheet.WritePredictions(b, sheet.FormatXLSX, report.Pivot)
		}},
		{"predictions.csv", func(b *bytes.Buffer) error {
			return sheet.WritePredictions(b, sheet.FormatCSV, report.Pivot)
		}},
		{"aggregate.csv", func(b *bytes.Buffer) error {
			return sheet.WriteTable(b, sheet.FormatCSV, "", aggregateTable(report))
		}},
		{"failures.json", func(b *bytes.Buffer) error {
			enc := json.NewEncoder(b)
			enc.SetIndent("", "  ")
			return enc.Encode(report.Failures)
		}},
	}

	var written, uploaded []string
	for _, f := range files {
		var buf bytes.Buffer
		if err := f.write(&buf); err != nil {
			return written, fmt.Errorf("failed to render %s: %w", f.name, err)
		}

		localPath := filepath.Join(dir, f.name)
		if err := os.WriteFile(localPath, buf.Bytes(), 0o644); err != nil {
			return written, fmt.Errorf("failed to write %s: %w", localPath, err)
		}
		written = append(written, localPath)

		if e.upload == nil || !e.config.Upload {
			continue
		}
		key := path.Join(e.config.UploadPrefix, runID, f.name)
		if err := e.upload(ctx, key, buf.Bytes()); err != nil {
			return written, fmt.Errorf("failed to upload %s: %w", key, err)
		}
		uploaded = append(uploaded, key)
	}

	log.Info().
		Str("run", runID).
		Str("dir", dir).
		Int("uploaded", len(uploaded)).
		Msg("Exported forecast outputs")

	return append(written, uploaded...), nil
}

func aggregateTable(report *forecast.Report) *sheet.Table {
	columns := map[string]domain.AggregateSeries{
		"item_total":   report.Aggregate,
		"historical":   report.Historical,
		"cap_forecast": report.CapForecast,
	}
	order := []string{"historical", "item_total", "cap_forecast"}
	if len(report.ETSForecast) > 0 {
		columns["ets_forecast"] = report.ETSForecast
		order = append(order, "ets_forecast")
	}
	return sheet.AggregateTable(columns, order)
}
