package telemetry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockTransport struct {
	mu     sync.Mutex
	events []*sentry.Event
}

func (t *mockTransport) Configure(_ sentry.ClientOptions) {}

func (t *mockTransport) SendEvent(event *sentry.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, event)
}

func (t *mockTransport) Flush(_ time.Duration) bool { return true }

func (t *mockTransport) FlushWithContext(_ context.Context) bool { return true }

func (t *mockTransport) Close() {}

func (t *mockTransport) Events() []*sentry.Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*sentry.Event(nil), t.events...)
}

func TestInit_DisabledWithoutDSN(t *testing.T) {
	r, err := Init(Options{})
	require.NoError(t, err)
	assert.False(t, r.Enabled())

	// no-ops
	r.CaptureError(errors.New("boom"), "handlers", "/x")
	r.Flush()

	var nilReporter *Reporter
	assert.False(t, nilReporter.Enabled())
	nilReporter.CaptureError(errors.New("boom"), "handlers", "")
}

func TestReporter_CaptureError(t *testing.T) {
	transport := &mockTransport{}
	r, err := Init(Options{Environment: "test", Transport: transport})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sentry.Init(sentry.ClientOptions{}) })

	require.True(t, r.Enabled())
	r.CaptureError(errors.New("image storage failed: bucket missing"), "scan", "/api/v1/scan-meal/:user_id")
	r.Flush()

	events := transport.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "scan", events[0].Tags["component"])
	assert.Equal(t, "/api/v1/scan-meal/:user_id", events[0].Tags["route"])
	assert.Equal(t, "test", events[0].Environment)
	assert.Empty(t, events[0].ServerName)
}
