package app

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"wallet-x-search/internal/model"
	"wallet-x-search/internal/storage"
)

// Export writes stored verdicts as CSV and/or a PNG chart of the confidence
// distribution.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxRows = a.Config.ResolveMaxRows(opts.MaxRows)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if err := requireStore(store, "export"); err != nil {
		return err
	}
	defer closeStore()

	records, err := store.ListVerdicts(ctx, opts.MaxRows)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		a.Logger.Info().Msg("no verdicts found for export")
		return nil
	}
	a.Logger.Info().Int("exported", len(records)).Msg("exporting verdicts")

	if opts.CSVPath != "" {
		if err := writeVerdictsCSV(opts.CSVPath, records); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeConfidencePNG(opts.PNGPath, records); err != nil {
			return err
		}
	}

	return nil
}

func writeVerdictsCSV(path string, records []storage.VerdictRecord) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"wallet", "post_exists", "twitter_handle", "confidence", "error", "run_id", "completed_at"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, rec := range records {
		row := []string{
			rec.Wallet,
			strconv.FormatBool(rec.PostExists),
			rec.Handle,
			rec.Confidence.String(),
			sanitizeInline(rec.Error),
			rec.RunID,
			rec.CompletedAt.UTC().Format(time.RFC3339),
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

// distribution buckets verdicts: no post, then each confidence level of
// verdicts with a post.
type distribution struct {
	NoPost       int
	ByConfidence [4]int
	Errored      int
}

func confidenceDistribution(records []storage.VerdictRecord) distribution {
	var d distribution
	for _, rec := range records {
		if rec.Degraded() {
			d.Errored++
		}
		if !rec.PostExists {
			d.NoPost++
			continue
		}
		if rec.Confidence.Valid() {
			d.ByConfidence[rec.Confidence]++
		}
	}
	return d
}

func writeConfidencePNG(path string, records []storage.VerdictRecord) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	d := confidenceDistribution(records)
	bars := []chart.Value{{Label: "No post", Value: float64(d.NoPost)}}
	for level := model.ConfidenceNone; level <= model.ConfidenceHigh; level++ {
		bars = append(bars, chart.Value{Label: level.String(), Value: float64(d.ByConfidence[level])})
	}
	bars = append(bars, chart.Value{Label: "Errored", Value: float64(d.Errored)})

	peak := 0.0
	for _, b := range bars {
		peak = max(peak, b.Value)
	}

	countFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.0f")
	}
	graph := chart.BarChart{
		Title:    "Wallet attribution confidence",
		Width:    1024,
		Height:   576,
		BarWidth: 80,
		Background: chart.Style{
			Padding: chart.Box{Top: 40},
		},
		YAxis: chart.YAxis{
			Name:           "Wallets",
			Range:          &chart.ContinuousRange{Min: 0, Max: peak + 1},
			ValueFormatter: countFormatter,
		},
		Bars: bars,
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
