package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch chan []byte) string {
	t.Helper()
	select {
	case msg := <-ch:
		return string(msg)
	case <-time.After(time.Second):
		require.FailNow(t, "timeout waiting for message")
		return ""
	}
}

func drain(ch chan []byte) []string {
	var out []string
	for {
		select {
		case msg := <-ch:
			out = append(out, string(msg))
		default:
			return out
		}
	}
}

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	require.Equal(t, 0, b.ClientCount())
	ch := b.Subscribe("")
	require.Equal(t, 1, b.ClientCount())
	b.Unsubscribe(ch)
	assert.Equal(t, 0, b.ClientCount())
}

func TestPublishDelivery(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe("")
	defer b.Unsubscribe(ch)

	b.PublishAnnotationEvent("created", "/docs/a.pdf", "h1")
	b.PublishAnnotationEvent("deleted", "/docs/a.pdf", "h1")

	first := receive(t, ch)
	assert.Regexp(t, `^id: 1\nevent: annotation\.created\n`, first)
	assert.Contains(t, first, `"id":"h1"`)
	assert.Contains(t, first, `"path":"/docs/a.pdf"`)
	assert.Regexp(t, `^id: 2\n`, receive(t, ch), "sequence not increasing")
}

func TestSubscribe_ScopedToDocument(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	all := b.Subscribe("")
	onlyA := b.Subscribe("/a.pdf")
	defer b.Unsubscribe(all)
	defer b.Unsubscribe(onlyA)

	b.PublishAnnotationEvent("created", "/b.pdf", "x")
	b.PublishAnnotationEvent("created", "/a.pdf", "y")
	b.PublishOpenDocument("/b.pdf", "x")

	time.Sleep(50 * time.Millisecond)
	assert.Len(t, drain(all), 3, "unscoped client")
	got := drain(onlyA)
	require.Len(t, got, 2, "scoped client")
	assert.Contains(t, got[0], `"id":"y"`)
	assert.Contains(t, got[1], "event: document.open")
}

func TestPublishGraphUpdated_ThrottleKeepsLatest(t *testing.T) {
	b := NewBroker(200 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe("")
	defer b.Unsubscribe(ch)

	b.PublishGraphUpdated("a.pdf", 1, 0)
	// Inside the window: coalesced, only the last one is delivered later.
	b.PublishGraphUpdated("a.pdf", 2, 1)
	b.PublishGraphUpdated("a.pdf", 3, 2)
	// Another document has its own window.
	b.PublishGraphUpdated("b.pdf", 5, 0)

	time.Sleep(50 * time.Millisecond)
	early := drain(ch)
	require.Len(t, early, 2, "immediate graph events")
	assert.Contains(t, early[0], `"nodes":1`)
	assert.Contains(t, early[1], `"path":"b.pdf"`)

	late := receive(t, ch)
	assert.Contains(t, late, `"path":"a.pdf"`)
	assert.Contains(t, late, `"nodes":3`, "trailing event should carry the latest rebuild")
	time.Sleep(300 * time.Millisecond)
	assert.Empty(t, drain(ch), "unexpected extra events")
}

func TestSSEHandler(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	b.keepAlive = 20 * time.Millisecond
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/events?path=/docs/a.pdf", nil)
	req = req.WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	// Give handler time to subscribe.
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 1, b.ClientCount(), "handler should subscribe")

	b.PublishAnnotationEvent("created", "/docs/other.pdf", "skip")
	b.PublishOpenDocument("/docs/b.pdf", "h2")
	time.Sleep(50 * time.Millisecond)

	// Cancel context to disconnect.
	cancel()
	<-done

	body := w.Body.String()
	assert.Contains(t, body, "event: document.open")
	assert.NotContains(t, body, "skip", "handler delivered another document's event")
	assert.Contains(t, body, ": ping\n\n", "keep-alive missing")
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	// Client should be cleaned up.
	assert.Eventually(t, func() bool { return b.ClientCount() == 0 }, time.Second, 10*time.Millisecond)
}

func TestPublishDropsOnFullBuffer(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe("")
	defer b.Unsubscribe(ch)

	// Fill buffer and then a few more should not block.
	for i := 0; i < clientBuffer+6; i++ {
		b.Publish(Event{Type: "test", Data: map[string]string{"i": "x"}})
	}
	assert.Equal(t, 1, b.ClientCount())
}

func TestCloseClosesSubscribersAndStopsOperations(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	ch := b.Subscribe("")
	require.Equal(t, 1, b.ClientCount())

	b.Close()

	select {
	case _, ok := <-ch:
		require.False(t, ok, "subscriber channel should be closed")
	case <-time.After(time.Second):
		require.FailNow(t, "timeout waiting for channel close")
	}
	assert.Equal(t, 0, b.ClientCount())

	// Should be safe no-op after close.
	b.PublishAnnotationEvent("updated", "x.pdf", "")
	b.PublishGraphUpdated("x.pdf", 0, 0)
	assert.NotNil(t, b.Subscribe("x.pdf"), "subscribe after close should return a closed channel")
}
