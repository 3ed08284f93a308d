// Package notify pushes scan lifecycle events to external sinks.
// Delivery is best effort: a failed notification is logged, never
// retried, and never fails the scan.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/dhruvparmar372/ossgard-sub002/internal/config"
	"github.com/dhruvparmar372/ossgard-sub002/models"
)

// Event is the payload posted to webhook sinks.
type Event struct {
	Type       string    `json:"type"` // scan.completed | scan.failed
	Repo       string    `json:"repo"`
	ScanID     int64     `json:"scan_id"`
	PRCount    int       `json:"pr_count"`
	GroupCount int       `json:"group_count"`
	Error      string    `json:"error,omitempty"`
	At         time.Time `json:"at"`
}

type sink interface {
	send(ctx context.Context, ev Event) error
}

// Dispatcher fans one event out to every configured sink.
type Dispatcher struct {
	sinks  []sink
	logger *slog.Logger
}

// New builds a Dispatcher from cfg. With nothing configured the
// dispatcher is a no-op.
func New(cfg config.NotifyConfig, logger *slog.Logger) *Dispatcher {
	d := &Dispatcher{logger: logger}
	client := &http.Client{Timeout: 10 * time.Second}
	if cfg.WebhookURL != "" {
		d.sinks = append(d.sinks, &webhookSink{url: cfg.WebhookURL, client: client})
	}
	if cfg.SlackWebhookURL != "" {
		d.sinks = append(d.sinks, &slackSink{url: cfg.SlackWebhookURL, client: client})
	}
	return d
}

// ScanCompleted reports a successful scan.
func (d *Dispatcher) ScanCompleted(ctx context.Context, repo *models.Repo, scan *models.Scan) {
	d.dispatch(ctx, Event{
		Type:       "scan.completed",
		Repo:       repo.FullName(),
		ScanID:     scan.ID,
		PRCount:    scan.PRCount,
		GroupCount: scan.DupeGroupCount,
		At:         time.Now().UTC(),
	})
}

// ScanFailed reports a terminally failed scan.
func (d *Dispatcher) ScanFailed(ctx context.Context, repo *models.Repo, scan *models.Scan, errMsg string) {
	d.dispatch(ctx, Event{
		Type:   "scan.failed",
		Repo:   repo.FullName(),
		ScanID: scan.ID,
		Error:  errMsg,
		At:     time.Now().UTC(),
	})
}

func (d *Dispatcher) dispatch(ctx context.Context, ev Event) {
	for _, s := range d.sinks {
		if err := s.send(ctx, ev); err != nil {
			d.logger.Warn("notification delivery failed", "type", ev.Type, "error", err)
		}
	}
}

type webhookSink struct {
	url    string
	client *http.Client
}

func (w *webhookSink) send(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshalling event: %w", err)
	}
	return post(ctx, w.client, w.url, body)
}

type slackSink struct {
	url    string
	client *http.Client
}

func (s *slackSink) send(ctx context.Context, ev Event) error {
	var text string
	switch ev.Type {
	case "scan.completed":
		text = fmt.Sprintf("Scan of %s finished: %d open PRs, %d duplicate groups.", ev.Repo, ev.PRCount, ev.GroupCount)
	case "scan.failed":
		text = fmt.Sprintf("Scan of %s failed: %s", ev.Repo, ev.Error)
	default:
		text = fmt.Sprintf("%s on %s", ev.Type, ev.Repo)
	}
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return fmt.Errorf("marshalling slack message: %w", err)
	}
	return post(ctx, s.client, s.url, body)
}

func post(ctx context.Context, client *http.Client, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("posting webhook: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
