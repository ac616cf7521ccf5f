package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xerrors "ProofChain/internal/errors"
	"ProofChain/pkg/logger"
)

type recordingNotifier struct {
	channel Channel
	events  []Event
	err     error
}

func (r *recordingNotifier) Channel() Channel { return r.channel }

func (r *recordingNotifier) Notify(_ context.Context, e Event) error {
	r.events = append(r.events, e)
	return r.err
}

func TestFromErrorCarriesCodeAndSeverity(t *testing.T) {
	err := xerrors.Wrap(xerrors.CodeStorageFailure, errors.New("conn reset"), "提交失败", xerrors.WithMetadata("backend", "redis"))
	evt := FromError(err, "certify", "tx-1", "0xabc")

	assert.Equal(t, xerrors.CodeStorageFailure, evt.Code)
	assert.Equal(t, xerrors.SeverityCritical, evt.Severity)
	assert.Equal(t, "redis", evt.Metadata["backend"])
	assert.Equal(t, "tx-1", evt.TxID)
	assert.False(t, evt.OccurredAt.IsZero())
}

func TestFanoutDeliversToEveryChannel(t *testing.T) {
	a := &recordingNotifier{channel: ChannelLog}
	b := &recordingNotifier{channel: ChannelWebhook, err: errors.New("503")}
	d := NewFanout(a, nil, b)

	err := d.Notify(context.Background(), Event{Code: xerrors.CodeUnknown})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channel webhook")
	assert.Len(t, a.events, 1)
	assert.Len(t, b.events, 1)

	var nilDispatcher *FanoutDispatcher
	assert.NoError(t, nilDispatcher.Notify(context.Background(), Event{}))
}

func TestWebhookNotifierPostsJSON(t *testing.T) {
	var got Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := &WebhookNotifier{URL: srv.URL, Client: srv.Client()}
	require.NoError(t, n.Notify(context.Background(), Event{Code: xerrors.CodeStorageFailure, TxID: "tx-9"}))
	assert.Equal(t, "tx-9", got.TxID)
}

func TestWebhookNotifierReportsHTTPFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	n := &WebhookNotifier{URL: srv.URL, Client: srv.Client()}
	assert.Error(t, n.Notify(context.Background(), Event{}))
	assert.NoError(t, (&WebhookNotifier{}).Notify(context.Background(), Event{}))
}

func TestLogNotifier(t *testing.T) {
	n := &LogNotifier{Logger: logger.Discard()}
	assert.Equal(t, ChannelLog, n.Channel())
	assert.NoError(t, n.Notify(context.Background(), Event{Code: xerrors.CodeTimeout}))
}
