// Package sse pushes notifications and cache changes to connected clients
// over Server-Sent Events.
package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/starford/pinenote/internal/notes"
)

const (
	// EventToast carries a transient user notification.
	EventToast = "toast"
	// EventSession is sent when the user signs in or out.
	EventSession = "session.changed"
)

// Toast levels.
const (
	LevelSuccess = "success"
	LevelError   = "error"
)

// Event represents an SSE event to broadcast.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Toast is the payload of a toast event.
type Toast struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

const (
	clientBuffer = 64
	historySize  = 32
)

// Broker manages SSE client connections and broadcasts events.
//
// A single event loop owns the client set, the sequence counter and a short
// history of recent frames that reconnecting clients can resume from.
type Broker struct {
	heartbeat time.Duration

	joinCh    chan subscription
	leaveCh   chan chan []byte
	publishCh chan Event
	countCh   chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

type subscription struct {
	ch     chan []byte
	lastID uint64
}

type frame struct {
	id  uint64
	raw []byte
}

// NewBroker creates a broker that sends a keep-alive comment to every client
// each heartbeat interval.
func NewBroker(heartbeat time.Duration) *Broker {
	if heartbeat <= 0 {
		heartbeat = 15 * time.Second
	}

	b := &Broker{
		heartbeat: heartbeat,
		joinCh:    make(chan subscription),
		leaveCh:   make(chan chan []byte),
		publishCh: make(chan Event),
		countCh:   make(chan chan int),
		stopCh:    make(chan struct{}),
		stopped:   make(chan struct{}),
	}

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	history := make([]frame, 0, historySize)
	var seq uint64

	offer := func(ch chan []byte, raw []byte) {
		select {
		case ch <- raw:
		default:
			// Slow client; drop rather than stall the loop.
		}
	}

	ticker := time.NewTicker(b.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case sub := <-b.joinCh:
			clients[sub.ch] = struct{}{}
			if sub.lastID == 0 {
				continue
			}
			for _, f := range history {
				if f.id > sub.lastID {
					offer(sub.ch, f.raw)
				}
			}

		case ch := <-b.leaveCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			payload, err := json.Marshal(event.Data)
			if err != nil {
				continue
			}
			seq++
			raw := []byte(fmt.Sprintf("id: %d\nevent: %s\ndata: %s\n\n", seq, event.Type, payload))
			if len(history) == historySize {
				history = append(history[:0], history[1:]...)
			}
			history = append(history, frame{id: seq, raw: raw})
			for ch := range clients {
				offer(ch, raw)
			}

		case <-ticker.C:
			for ch := range clients {
				offer(ch, []byte(": ping\n\n"))
			}

		case resp := <-b.countCh:
			resp <- len(clients)
		}
	}
}

// deliver hands v to the event loop. It reports false once the broker has
// stopped.
func deliver[T any](b *Broker, ch chan<- T, v T) bool {
	if b.closed.Load() {
		return false
	}
	select {
	case ch <- v:
		return true
	case <-b.stopped:
		return false
	}
}

// Close stops the loop and closes all client channels.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a new client and returns its channel.
func (b *Broker) Subscribe() chan []byte {
	return b.SubscribeFrom(0)
}

// SubscribeFrom adds a client that first receives the retained frames with
// an id above lastID. Zero means no replay.
func (b *Broker) SubscribeFrom(lastID uint64) chan []byte {
	ch := make(chan []byte, clientBuffer)
	if !deliver(b, b.joinCh, subscription{ch: ch, lastID: lastID}) {
		close(ch)
	}
	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	deliver(b, b.leaveCh, ch)
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	resp := make(chan int, 1)
	if !deliver(b, b.countCh, resp) {
		return 0
	}
	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends an event to all connected clients. It returns once the
// event loop has taken the event; delivery to each client never blocks.
func (b *Broker) Publish(event Event) {
	deliver(b, b.publishCh, event)
}

// Success publishes a success toast.
func (b *Broker) Success(message string) {
	b.Publish(Event{Type: EventToast, Data: Toast{Level: LevelSuccess, Message: message}})
}

// Error publishes an error toast.
func (b *Broker) Error(message string) {
	b.Publish(Event{Type: EventToast, Data: Toast{Level: LevelError, Message: message}})
}

// NoteChanged publishes a cache change. The id is empty for notes.loaded.
func (b *Broker) NoteChanged(kind notes.Kind, id string) {
	data := map[string]string{}
	if id != "" {
		data["id"] = id
	}
	b.Publish(Event{Type: string(kind), Data: data})
}

// SessionState is the payload of a session.changed event.
type SessionState struct {
	Authenticated bool   `json:"authenticated"`
	Email         string `json:"email,omitempty"`
}

// ForwardSessions publishes a session.changed event for every change sub
// delivers. It returns when ctx is done or the subscription is closed.
func (b *Broker) ForwardSessions(ctx context.Context, sub notes.Subscriber) error {
	changes, cancel := sub.Subscribe()
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case c, ok := <-changes:
			if !ok {
				return nil
			}
			var st SessionState
			if c.Session != nil {
				st = SessionState{Authenticated: true, Email: c.Session.User.Email}
			}
			b.Publish(Event{Type: EventSession, Data: st})
		}
	}
}

// ServeHTTP is the SSE endpoint handler (GET /api/events). A client that
// reconnects with Last-Event-ID gets the retained frames it missed.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		return
	}

	lastID, _ := strconv.ParseUint(r.Header.Get("Last-Event-ID"), 10, 64)
	ch := b.SubscribeFrom(lastID)
	defer b.Unsubscribe(ch)

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if _, err := w.Write(msg); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}
