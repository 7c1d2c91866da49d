package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"SwingPull/internal/domain/models"
	"SwingPull/pkg/logger"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pingInterval   = 30 * time.Second
	clientBufSize  = 16
	broadcastDepth = 256
)

// Broker fans funnel events out to connected WebSocket dashboards. Slow
// clients are skipped rather than allowed to block the broadcast loop.
type Broker struct {
	upgrader   websocket.Upgrader
	clients    map[chan []byte]bool
	register   chan chan []byte
	unregister chan chan []byte
	broadcast  chan []byte
	mu         sync.RWMutex
	log        *logger.Logger
}

// NewBroker creates a WebSocket broker.
func NewBroker(log *logger.Logger) *Broker {
	return &Broker{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients:    make(map[chan []byte]bool),
		register:   make(chan chan []byte),
		unregister: make(chan chan []byte),
		broadcast:  make(chan []byte, broadcastDepth),
		log:        log,
	}
}

// Run pumps registrations and broadcasts until ctx is done.
func (b *Broker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			b.mu.Lock()
			for client := range b.clients {
				close(client)
				delete(b.clients, client)
			}
			b.mu.Unlock()
			return

		case client := <-b.register:
			b.mu.Lock()
			b.clients[client] = true
			n := len(b.clients)
			b.mu.Unlock()
			b.log.Debug("ws client connected", logger.Int("total", n))

		case client := <-b.unregister:
			b.mu.Lock()
			if _, ok := b.clients[client]; ok {
				delete(b.clients, client)
				close(client)
			}
			n := len(b.clients)
			b.mu.Unlock()
			b.log.Debug("ws client disconnected", logger.Int("total", n))

		case msg := <-b.broadcast:
			b.mu.RLock()
			for client := range b.clients {
				select {
				case client <- msg:
				default:
					// client buffer full, drop frame
				}
			}
			b.mu.RUnlock()
		}
	}
}

// Broadcast queues one event for every connected client.
func (b *Broker) Broadcast(event string, payload interface{}) {
	frame, err := json.Marshal(map[string]interface{}{
		"event":   event,
		"payload": payload,
	})
	if err != nil {
		b.log.Warn("broadcast marshal failed", logger.Error(err))
		return
	}
	select {
	case b.broadcast <- frame:
	default:
		// broker backlog full, drop
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// EventSink adapts the broker to the funnel-event Publisher interface so
// classified snapshots reach live dashboards the same way they reach Kafka.
type EventSink struct {
	b *Broker
}

// NewEventSink creates a Publisher-shaped view of the broker.
func NewEventSink(b *Broker) *EventSink { return &EventSink{b: b} }

func (s *EventSink) PublishEvents(ctx context.Context, events []models.FunnelEvent) error {
	for _, ev := range events {
		s.b.Broadcast(ev.Type, ev)
	}
	return nil
}

func (s *EventSink) Close() error { return nil }

// Serve upgrades the request and streams broadcast frames until the client
// goes away.
func (b *Broker) Serve(w http.ResponseWriter, r *http.Request) error {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	clientChan := make(chan []byte, clientBufSize)
	b.register <- clientChan
	defer func() { b.unregister <- clientChan }()

	// reader drains control frames and detects close
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return nil
		case <-r.Context().Done():
			return nil
		case msg, ok := <-clientChan:
			if !ok {
				return nil
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return nil
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return nil
			}
		}
	}
}
