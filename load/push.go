package load

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"
	"github.com/rasnes/tiingo-powerbi-push/config"
	"github.com/rasnes/tiingo-powerbi-push/transform"
	"github.com/rasnes/tiingo-powerbi-push/utils"
)

// BatchDeliveryFailure records one batch the push endpoint did not accept.
// It is non-fatal: the pusher logs it and moves on to the next batch.
// StatusCode is 0 when the request never got a response.
type BatchDeliveryFailure struct {
	Batch      int
	Rows       int
	StatusCode int
	Body       string
}

func (f BatchDeliveryFailure) Error() string {
	if f.StatusCode == 0 {
		return fmt.Sprintf("batch %d (%d rows) not delivered: %s", f.Batch, f.Rows, f.Body)
	}
	return fmt.Sprintf("batch %d (%d rows) rejected with status %d: %s", f.Batch, f.Rows, f.StatusCode, f.Body)
}

type PushReport struct {
	Batches  int
	Sent     int
	Failures []BatchDeliveryFailure
}

// Delivered reports whether every batch was accepted.
func (r PushReport) Delivered() bool {
	return len(r.Failures) == 0
}

// Pusher posts a table to an HTTP ingestion URL in fixed-size JSON batches.
// There is no retry and no rollback; partially delivered runs are reported,
// not failed.
type Pusher struct {
	Client       *resty.Client
	URL          string
	BatchSize    int
	PayloadShape string
	Logger       *slog.Logger
}

func NewPusher(cfg config.PushConfig, logger *slog.Logger) *Pusher {
	client := resty.New().SetTimeout(cfg.Timeout)

	return &Pusher{
		Client:       client,
		URL:          cfg.URL,
		BatchSize:    cfg.BatchSize,
		PayloadShape: cfg.PayloadShape,
		Logger:       logger,
	}
}

// Push sends the table in order. Only a payload that cannot be serialized
// returns an error; delivery problems end up in PushReport.Failures.
func (p *Pusher) Push(ctx context.Context, table transform.Table) (PushReport, error) {
	batches := utils.Chunk(table.Rows, p.BatchSize)
	report := PushReport{Batches: len(batches)}

	for i, batch := range batches {
		index := i + 1
		body, err := p.payload(table, batch)
		if err != nil {
			return report, fmt.Errorf("failed to serialize batch %d: %w", index, err)
		}

		start := time.Now()
		resp, err := p.Client.R().
			SetContext(ctx).
			SetHeader("Content-Type", "application/json").
			SetBody(body).
			Post(p.URL)
		if err != nil {
			failure := BatchDeliveryFailure{Batch: index, Rows: len(batch), Body: err.Error()}
			p.Logger.Error("Batch push failed", "batch", index, "rows", len(batch), "error", err)
			report.Failures = append(report.Failures, failure)
			continue
		}

		if !resp.IsSuccess() {
			failure := BatchDeliveryFailure{Batch: index, Rows: len(batch), StatusCode: resp.StatusCode(), Body: resp.String()}
			p.Logger.Error("Batch push rejected", "batch", index, "rows", len(batch), "status", resp.StatusCode(), "body", resp.String())
			report.Failures = append(report.Failures, failure)
			continue
		}

		report.Sent += len(batch)
		p.Logger.Info("Batch pushed", "batch", index, "rows", len(batch), "status", resp.StatusCode(), "duration", time.Since(start))
	}

	if report.Delivered() {
		p.Logger.Info("Push complete", "batches", report.Batches, "rows", report.Sent)
	} else {
		p.Logger.Warn("Push completed with failed batches", "batches", report.Batches, "rows", report.Sent, "failed", len(report.Failures))
	}
	return report, nil
}

func (p *Pusher) payload(table transform.Table, batch []transform.PriceBar) ([]byte, error) {
	objects := make([]map[string]any, len(batch))
	for i, b := range batch {
		objects[i] = table.Object(b)
	}

	if p.PayloadShape == config.PayloadWrapped {
		return json.Marshal(map[string]any{"rows": objects})
	}
	return json.Marshal(objects)
}
