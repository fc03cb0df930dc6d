package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/rasnes/tiingo-powerbi-push/config"
	"github.com/rasnes/tiingo-powerbi-push/extract"
	"github.com/rasnes/tiingo-powerbi-push/load"
	"github.com/rasnes/tiingo-powerbi-push/transform"
	"github.com/rasnes/tiingo-powerbi-push/utils"
)

// Fetcher returns one series per symbol, in symbol order.
type Fetcher interface {
	Fetch(ctx context.Context, symbols []string, r utils.DateRange) ([]extract.Series, error)
}

// Sink persists a run's table locally.
type Sink interface {
	Write(table transform.Table) error
}

// Publisher delivers a run's table to the remote endpoint.
type Publisher interface {
	Push(ctx context.Context, table transform.Table) (load.PushReport, error)
}

// providerFetcher adapts an extract.Provider to Fetcher.
type providerFetcher struct {
	provider extract.Provider
	opts     extract.FetchOptions
	logger   *slog.Logger
}

func (f providerFetcher) Fetch(ctx context.Context, symbols []string, r utils.DateRange) ([]extract.Series, error) {
	return extract.FetchAll(ctx, f.provider, symbols, r, f.opts, f.logger)
}

type Pipeline struct {
	Config    *config.Config
	Fetcher   Fetcher
	Sink      Sink
	Publisher Publisher
	Transform transform.Options
	Logger    *slog.Logger
	// ParquetPath, when set, receives a snapshot of every non-empty run.
	ParquetPath  string
	location     *time.Location
	timeProvider utils.TimeProvider
}

// Report summarizes a finished run.
type Report struct {
	Range          utils.DateRange
	Symbols        int
	Rows           int
	SkippedSymbols []string
	// Empty is set when no symbol returned rows. Nothing is written or pushed.
	Empty bool
	Push  load.PushReport
}

// New validates the configuration and wires the provider, CSV sink and
// pusher. A configuration problem is returned before any network or file
// activity and wraps config.ErrConfiguration.
func New(cfg *config.Config, logger *slog.Logger, timeProvider utils.TimeProvider) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrConfiguration, err)
	}

	provider, err := extract.NewProvider(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("error creating %s provider: %w", cfg.Extract.Provider, err)
	}

	adjusted := cfg.Tiingo.Adjusted && provider.Name() == config.ProviderTiingo
	opts, err := transform.NewOptions(cfg.Transform, adjusted, logger)
	if err != nil {
		return nil, err
	}

	var progress io.Writer
	if cfg.Extract.Progress {
		progress = os.Stderr
	}

	return &Pipeline{
		Config: cfg,
		Fetcher: providerFetcher{
			provider: provider,
			opts: extract.FetchOptions{
				Concurrency:    cfg.Extract.Concurrency,
				RateLimit:      cfg.Extract.RateLimit,
				ProgressWriter: progress,
			},
			logger: logger,
		},
		Sink:         load.NewCSVSink(cfg.Sink, logger),
		Publisher:    load.NewPusher(cfg.Push, logger),
		Transform:    opts,
		Logger:       logger,
		ParquetPath:  cfg.Sink.ParquetPath,
		location:     loc,
		timeProvider: timeProvider,
	}, nil
}

// Run executes fetch, transform, sink and push in that order. Fetch and sink
// errors abort the run. Rejected push batches do not: they are returned in
// Report.Push.Failures with a nil error.
func (p *Pipeline) Run(ctx context.Context) (Report, error) {
	cfg := p.Config
	report := Report{Symbols: len(cfg.Symbols)}

	r, err := utils.ResolveRange(cfg.Range.Mode, cfg.Range.InceptionDate, cfg.Range.StartDate, cfg.Range.EndDate, p.timeProvider.Now(), p.location)
	if err != nil {
		return report, fmt.Errorf("%w: %w", config.ErrConfiguration, err)
	}
	report.Range = r

	series, err := p.Fetcher.Fetch(ctx, cfg.Symbols, r)
	if err != nil {
		var fetchErr *extract.FetchError
		if errors.As(err, &fetchErr) {
			return report, fetchErr
		}
		return report, fmt.Errorf("error fetching daily bars: %w", err)
	}

	for _, s := range series {
		if s.Empty() {
			report.SkippedSymbols = append(report.SkippedSymbols, s.Symbol)
		}
	}

	table, err := transform.Tidy(series, p.Transform)
	if err != nil {
		return report, fmt.Errorf("error transforming daily bars: %w", err)
	}
	report.Rows = table.Len()

	if table.Len() == 0 {
		report.Empty = true
		p.Logger.Info("No rows for any symbol, nothing to write or push", "range", r.String(), "symbols", len(cfg.Symbols))
		return report, nil
	}

	if err := p.Sink.Write(table); err != nil {
		return report, fmt.Errorf("error writing local sink: %w", err)
	}
	if p.ParquetPath != "" {
		if err := load.WriteParquet(p.ParquetPath, table); err != nil {
			return report, fmt.Errorf("error writing parquet snapshot: %w", err)
		}
		p.Logger.Info("Wrote parquet snapshot", "path", p.ParquetPath, "rows", table.Len())
	}

	report.Push, err = p.Publisher.Push(ctx, table)
	if err != nil {
		return report, fmt.Errorf("error pushing rows: %w", err)
	}

	p.Logger.Info("Run completed",
		"range", r.String(),
		"rows", report.Rows,
		"skipped", report.SkippedSymbols,
		"batches", report.Push.Batches,
		"failed_batches", len(report.Push.Failures),
	)
	return report, nil
}
