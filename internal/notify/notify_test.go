package notify

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhruvparmar372/ossgard-sub002/internal/config"
	"github.com/dhruvparmar372/ossgard-sub002/models"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDispatcher_ScanCompleted(t *testing.T) {
	var webhookBody, slackBody []byte
	webhook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		webhookBody, _ = io.ReadAll(r.Body)
	}))
	defer webhook.Close()
	slack := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		slackBody, _ = io.ReadAll(r.Body)
	}))
	defer slack.Close()

	d := New(config.NotifyConfig{WebhookURL: webhook.URL, SlackWebhookURL: slack.URL}, discardLogger())
	repo := &models.Repo{Owner: "acme", Name: "widgets"}
	scan := &models.Scan{ID: 7, PRCount: 12, DupeGroupCount: 2}
	d.ScanCompleted(context.Background(), repo, scan)

	var ev Event
	require.NoError(t, json.Unmarshal(webhookBody, &ev))
	assert.Equal(t, "scan.completed", ev.Type)
	assert.Equal(t, "acme/widgets", ev.Repo)
	assert.Equal(t, int64(7), ev.ScanID)
	assert.Equal(t, 12, ev.PRCount)
	assert.Equal(t, 2, ev.GroupCount)

	var msg map[string]string
	require.NoError(t, json.Unmarshal(slackBody, &msg))
	assert.Contains(t, msg["text"], "acme/widgets")
	assert.Contains(t, msg["text"], "2 duplicate groups")
}

func TestDispatcher_ScanFailed(t *testing.T) {
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
	}))
	defer srv.Close()

	d := New(config.NotifyConfig{WebhookURL: srv.URL}, discardLogger())
	d.ScanFailed(context.Background(), &models.Repo{Owner: "acme", Name: "widgets"},
		&models.Scan{ID: 7}, "verify phase failed")

	var ev Event
	require.NoError(t, json.Unmarshal(body, &ev))
	assert.Equal(t, "scan.failed", ev.Type)
	assert.Equal(t, "verify phase failed", ev.Error)
}

func TestDispatcher_FailedDeliveryDoesNotPanic(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := New(config.NotifyConfig{WebhookURL: srv.URL}, discardLogger())
	d.ScanCompleted(context.Background(), &models.Repo{Owner: "a", Name: "b"}, &models.Scan{ID: 1})
}

func TestDispatcher_NoSinksIsNoop(t *testing.T) {
	d := New(config.NotifyConfig{}, discardLogger())
	assert.Empty(t, d.sinks)
	d.ScanCompleted(context.Background(), &models.Repo{Owner: "a", Name: "b"}, &models.Scan{ID: 1})
}
