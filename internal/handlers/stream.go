package handlers

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/konsulin-care/focus/internal/metrics"
	"github.com/konsulin-care/focus/internal/models"
	"go.uber.org/zap"
)

const (
	writeWait      = 5 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	clientSendSize = 256
)

// StreamMessage is one websocket frame of the event stream.
type StreamMessage struct {
	Type           string                  `json:"type"`
	Event          *models.TrialEvent      `json:"event,omitempty"`
	Classification *metrics.Classification `json:"classification,omitempty"`
	Complete       *models.TestComplete    `json:"complete,omitempty"`
}

const (
	MessageTrialEvent     = "trial_event"
	MessageClassification = "classification"
	MessageTestComplete   = "test_complete"
)

// StreamHub fans the scheduler output out to websocket clients. It is
// registered as an observer, so it is called from the dispatch goroutine
// and must never block: a client that cannot keep up is dropped.
type StreamHub struct {
	log      *zap.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*streamClient]struct{}
}

type streamClient struct {
	conn *websocket.Conn
	send chan []byte
}

func NewStreamHub(log *zap.Logger) *StreamHub {
	return &StreamHub{
		log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		clients: make(map[*streamClient]struct{}),
	}
}

func (h *StreamHub) OnTrialEvent(evt models.TrialEvent) {
	h.broadcast(StreamMessage{Type: MessageTrialEvent, Event: &evt})
}

func (h *StreamHub) OnClassification(c metrics.Classification) {
	h.broadcast(StreamMessage{Type: MessageClassification, Classification: &c})
}

func (h *StreamHub) OnTestComplete(done models.TestComplete) {
	h.broadcast(StreamMessage{Type: MessageTestComplete, Complete: &done})
}

// Clients returns the number of connected clients.
func (h *StreamHub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *StreamHub) broadcast(msg StreamMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("Failed to encode stream message", zap.String("type", msg.Type), zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		select {
		case client.send <- payload:
		default:
			h.log.Warn("Stream client too slow, disconnecting")
			h.removeLocked(client)
		}
	}
}

func (h *StreamHub) removeLocked(client *streamClient) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.send)
}

func (h *StreamHub) remove(client *streamClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(client)
}

// Serve upgrades the request and streams messages until the client leaves.
func (h *StreamHub) Serve(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("Failed to upgrade stream connection", zap.Error(err))
		return
	}

	client := &streamClient{conn: conn, send: make(chan []byte, clientSendSize)}
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
	h.log.Debug("Stream client connected", zap.String("client_ip", c.ClientIP()))

	go h.writePump(client)
	h.readPump(client)
}

// readPump discards client frames and detects disconnects.
func (h *StreamHub) readPump(client *streamClient) {
	defer func() {
		h.remove(client)
		client.conn.Close()
	}()

	client.conn.SetReadLimit(512)
	_ = client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug("Stream client closed unexpectedly", zap.Error(err))
			}
			return
		}
	}
}

func (h *StreamHub) writePump(client *streamClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-client.send:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
