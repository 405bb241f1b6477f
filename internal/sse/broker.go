// Package sse implements a Server-Sent Events broker that pushes annotation
// changes and graph rebuilds to connected viewers.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"
)

// Event types.
const (
	TypeGraphUpdated = "graph.updated"
	TypeDocumentOpen = "document.open"
	annotationPrefix = "annotation."
)

const (
	clientBuffer      = 64
	defaultKeepAlive  = 25 * time.Second
	defaultGraphDelay = 2 * time.Second
)

// Event represents an SSE event to broadcast. Path scopes delivery: a
// client subscribed to one document only sees events for that document
// and unscoped events.
type Event struct {
	Type string `json:"type"`
	Path string `json:"-"`
	Data any    `json:"data"`
}

type graphSummary struct {
	Path  string `json:"path"`
	Nodes int    `json:"nodes"`
	Edges int    `json:"edges"`
}

type subscription struct {
	ch   chan []byte
	path string
}

// Broker manages SSE client connections and broadcasts events.
//
// A single event loop goroutine owns the client set, the event sequence
// and the per-document graph throttle. Public methods talk to it over
// channels.
type Broker struct {
	graphMin  time.Duration
	keepAlive time.Duration

	subscribeCh   chan subscription
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	graphCh       chan graphSummary
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a new SSE broker. graph.updated is sent at most once
// per graphThrottle for each document; the latest rebuild inside the
// window is delivered when it ends.
func NewBroker(graphThrottle time.Duration) *Broker {
	if graphThrottle <= 0 {
		graphThrottle = defaultGraphDelay
	}

	b := &Broker{
		graphMin:      graphThrottle,
		keepAlive:     defaultKeepAlive,
		subscribeCh:   make(chan subscription),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		graphCh:       make(chan graphSummary, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

// frame formats one event in the text/event-stream wire format.
func frame(seq uint64, event Event) ([]byte, error) {
	payload, err := json.Marshal(event.Data)
	if err != nil {
		return nil, err
	}
	return []byte(fmt.Sprintf("id: %d\nevent: %s\ndata: %s\n\n", seq, event.Type, payload)), nil
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]string)
	var seq uint64

	lastGraph := map[string]time.Time{}
	pending := map[string]graphSummary{}
	var flush *time.Timer
	var flushCh <-chan time.Time

	broadcast := func(event Event) {
		seq++
		raw, err := frame(seq, event)
		if err != nil {
			return
		}
		for ch, path := range clients {
			if path != "" && event.Path != "" && path != event.Path {
				continue
			}
			select {
			case ch <- raw:
			default:
				// Client buffer full; skip to avoid blocking broker loop.
			}
		}
	}

	sendGraph := func(g graphSummary, now time.Time) {
		lastGraph[g.Path] = now
		broadcast(Event{Type: TypeGraphUpdated, Path: g.Path, Data: g})
	}

	// arm schedules the next flush for the earliest pending document.
	arm := func(now time.Time) {
		if len(pending) == 0 {
			return
		}
		wait := b.graphMin
		for p := range pending {
			if d := b.graphMin - now.Sub(lastGraph[p]); d < wait {
				wait = d
			}
		}
		if flush == nil {
			flush = time.NewTimer(wait)
			flushCh = flush.C
			return
		}
		flush.Reset(wait)
	}

	for {
		select {
		case <-b.stopCh:
			if flush != nil {
				flush.Stop()
			}
			for ch := range clients {
				close(ch)
			}
			return

		case sub := <-b.subscribeCh:
			clients[sub.ch] = sub.path

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			broadcast(event)

		case g := <-b.graphCh:
			now := time.Now()
			if now.Sub(lastGraph[g.Path]) >= b.graphMin {
				delete(pending, g.Path)
				sendGraph(g, now)
				continue
			}
			_, waiting := pending[g.Path]
			pending[g.Path] = g
			if !waiting {
				arm(now)
			}

		case <-flushCh:
			now := time.Now()
			for p, g := range pending {
				if now.Sub(lastGraph[p]) >= b.graphMin {
					delete(pending, p)
					sendGraph(g, now)
				}
			}
			arm(now)

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close gracefully stops broker loop and closes all client channels.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a new client and returns its channel. A non-empty path
// limits delivery to that document.
func (b *Broker) Subscribe(path string) chan []byte {
	ch := make(chan []byte, clientBuffer)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- subscription{ch: ch, path: path}:
	case <-b.stopped:
		close(ch)
	}

	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends an event to all matching clients.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// PublishAnnotationEvent broadcasts annotation.<kind> for a change in the
// document at path. id is empty for whole-document changes.
func (b *Broker) PublishAnnotationEvent(kind, path, id string) {
	data := map[string]string{"path": path}
	if id != "" {
		data["id"] = id
	}
	b.Publish(Event{Type: annotationPrefix + kind, Path: path, Data: data})
}

// PublishGraphUpdated queues a graph.updated for path, subject to the
// per-document throttle.
func (b *Broker) PublishGraphUpdated(path string, nodes, edges int) {
	if b.closed.Load() {
		return
	}
	select {
	case b.graphCh <- graphSummary{Path: path, Nodes: nodes, Edges: edges}:
	case <-b.stopped:
	}
}

// PublishOpenDocument asks viewers to open path, scrolled to annotationID
// when set. It reaches every client since the target is another document.
func (b *Broker) PublishOpenDocument(path, annotationID string) {
	b.Publish(Event{Type: TypeDocumentOpen, Data: map[string]string{"path": path, "annotationId": annotationID}})
}

// ServeHTTP is the SSE endpoint handler (GET /api/events?path=).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe(r.URL.Query().Get("path"))
	defer b.Unsubscribe(ch)

	ping := time.NewTicker(b.keepAlive)
	defer ping.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
