package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	duelevents "github.com/quizwars/duelsvc/app/modules/duel/domain/events"
	"github.com/quizwars/duelsvc/app/shared"
)

const (
	wsWriteWait  = 10 * time.Second
	wsSendBuffer = 16
)

// wsEvent is the frame pushed to websocket clients.
type wsEvent struct {
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload"`
}

type wsClient struct {
	conn *websocket.Conn
	send chan wsEvent
}

// Hub bridges the event bus to live websocket connections, keyed by duel.
// Push delivery is a latency optimization only: the hub may drop frames for
// slow clients, who fall back to the status poll.
type Hub struct {
	bus    shared.EventBus
	logger *slog.Logger

	mu      sync.RWMutex
	clients map[uuid.UUID]map[*wsClient]struct{}
}

// NewHub creates a websocket fanout hub.
func NewHub(bus shared.EventBus, logger *slog.Logger) *Hub {
	return &Hub{
		bus:     bus,
		logger:  logger,
		clients: make(map[uuid.UUID]map[*wsClient]struct{}),
	}
}

// Run subscribes to every duel topic and fans messages out until ctx ends.
func (h *Hub) Run(ctx context.Context) error {
	for _, topic := range duelevents.Topics() {
		messages, err := h.bus.Subscribe(ctx, topic)
		if err != nil {
			return err
		}
		go h.forward(ctx, topic, messages)
	}
	return nil
}

func (h *Hub) forward(ctx context.Context, topic string, messages <-chan *message.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			duelID, err := uuid.Parse(msg.Metadata.Get(shared.MetadataDuelID))
			if err != nil {
				msg.Ack()
				continue
			}
			h.broadcast(duelID, wsEvent{Topic: topic, Payload: json.RawMessage(msg.Payload)})
			msg.Ack()
		}
	}
}

func (h *Hub) broadcast(duelID uuid.UUID, event wsEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients[duelID] {
		select {
		case client.send <- event:
		default:
			// Slow consumer; drop the frame, polling covers the gap.
		}
	}
}

func (h *Hub) register(duelID uuid.UUID, client *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[duelID] == nil {
		h.clients[duelID] = make(map[*wsClient]struct{})
	}
	h.clients[duelID][client] = struct{}{}
}

func (h *Hub) unregister(duelID uuid.UUID, client *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if clients, ok := h.clients[duelID]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.clients, duelID)
		}
	}
	close(client.send)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeDuel upgrades the connection and streams the duel's events until the
// client disconnects.
func (h *Hub) ServeDuel(w http.ResponseWriter, r *http.Request, duelID uuid.UUID) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WarnContext(r.Context(), "Websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	client := &wsClient{conn: conn, send: make(chan wsEvent, wsSendBuffer)}
	h.register(duelID, client)

	go func() {
		defer conn.Close()
		for event := range client.send {
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		}
	}()

	// Read loop exists only to detect disconnect; clients send nothing.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.unregister(duelID, client)
}
