package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certline/internal/config"
	"certline/internal/domain"
	"certline/internal/engine"
)

type hookReceiver struct {
	mu      sync.Mutex
	events  []webhookEvent
	headers []http.Header
	fail    bool
}

func (h *hookReceiver) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.fail {
		http.Error(w, "down", http.StatusServiceUnavailable)
		return
	}
	body, _ := io.ReadAll(r.Body)
	var evt webhookEvent
	_ = json.Unmarshal(body, &evt)
	h.events = append(h.events, evt)
	h.headers = append(h.headers, r.Header.Clone())
}

func (h *hookReceiver) setFail(v bool) {
	h.mu.Lock()
	h.fail = v
	h.mu.Unlock()
}

func (h *hookReceiver) received() ([]webhookEvent, []http.Header) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]webhookEvent(nil), h.events...), append([]http.Header(nil), h.headers...)
}

func TestWebhookDispatch(t *testing.T) {
	recv := &hookReceiver{}
	hs := httptest.NewServer(recv)
	defer hs.Close()

	cfg := config.Default()
	cfg.Webhooks = []config.WebhookConfig{{URL: hs.URL, Events: []string{"test.completed", "test.created"}, Secret: "s3cret"}}
	e := newTestEngine(t, cfg)
	ctx := context.Background()

	d := newWebhookDispatcher(e, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NotNil(t, d)
	d.primeCursors(ctx)

	recv.setFail(true)
	tst, err := e.CreateTest(ctx, engine.TestCreateOptions{CertificateType: domain.CertificatePAT})
	require.NoError(t, err)
	_, err = e.AddCircuit(ctx, engine.CircuitCreateOptions{TestID: tst.ID, Ref: "drill"})
	require.NoError(t, err)
	d.dispatchAll(ctx)
	events, _ := recv.received()
	assert.Empty(t, events)

	recv.setFail(false)
	d.dispatchAll(ctx)
	events, headers := recv.received()
	require.Len(t, events, 1, "filtered to subscribed types and retried after failure")
	assert.Equal(t, "test.created", events[0].Type)
	assert.Equal(t, tst.ID, events[0].TestID)
	assert.Equal(t, "test.created", headers[0].Get("X-Certline-Event"))
	assert.Equal(t, "s3cret", headers[0].Get("X-Certline-Secret"))
	assert.Equal(t, tst.ID, headers[0].Get("X-Certline-Test"))

	d.dispatchAll(ctx)
	events, _ = recv.received()
	assert.Len(t, events, 1, "cursor advanced past delivered events")
}

func (h *hookReceiver) setFail(v bool) {
	h.mu.Lock()
	h.fail = v
	h.mu.Unlock()
}

func (h *hookReceiver) received() ([]webhookEvent, []http.Header) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]webhookEvent(nil), h.events...), append([]http.Header(nil), h.headers...)
}

func TestWebhookDispatcher_SkipsWithoutHooks(t *testing.T) {
	e := newTestEngine(t, config.Default())
	assert.Nil(t, newWebhookDispatcher(e, slog.Default()))
}

func TestEventFilter(t *testing.T) {
	assert.True(t, newEventFilter(nil).match("anything"))
	assert.True(t, newEventFilter([]string{" "}).match("anything"))
	f := newEventFilter([]string{"test.completed"})
	assert.True(t, f.match("test.completed"))
	assert.False(t, f.match("test.created"))
}
