package websocket

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"tutor-backend/internal/services"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type tokenVerifier interface {
	ParseToken(tokenStr string) (string, error)
}

// Hub relays a user's pub/sub events to all of their open sockets.
type Hub struct {
	mu          sync.RWMutex
	connections map[string][]*conn
	redisClient *redis.Client
	auth        tokenVerifier
	cancelFuncs map[string]context.CancelFunc
}

// conn serializes writes; gorilla allows one concurrent writer.
type conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *conn) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// NewHub builds a hub. With a nil redis client only SendToUser delivers.
func NewHub(redisClient *redis.Client, auth tokenVerifier) *Hub {
	return &Hub{
		connections: make(map[string][]*conn),
		redisClient: redisClient,
		auth:        auth,
		cancelFuncs: make(map[string]context.CancelFunc),
	}
}

func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	// Authenticate via token query param
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	username, err := h.auth.ParseToken(tokenStr)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	c := &conn{ws: ws}
	h.registerConnection(username, c)

	// Keep connection alive and handle disconnect
	go func() {
		defer h.unregisterConnection(username, c)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

func (h *Hub) registerConnection(username string, c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.connections[username] = append(h.connections[username], c)

	// Start pub/sub subscription if this is the first connection for this user
	if len(h.connections[username]) == 1 && h.redisClient != nil {
		ctx, cancel := context.WithCancel(context.Background())
		h.cancelFuncs[username] = cancel
		go h.subscribeToPubSub(ctx, username)
	}

	log.Printf("WebSocket connected: user %s (total: %d)", username, len(h.connections[username]))
}

func (h *Hub) unregisterConnection(username string, c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c.ws.Close()

	conns := h.connections[username]
	for i, existing := range conns {
		if existing == c {
			h.connections[username] = append(conns[:i], conns[i+1:]...)
			break
		}
	}

	// If no more connections, cancel pub/sub
	if len(h.connections[username]) == 0 {
		delete(h.connections, username)
		if cancel, ok := h.cancelFuncs[username]; ok {
			cancel()
			delete(h.cancelFuncs, username)
		}
	}

	log.Printf("WebSocket disconnected: user %s", username)
}

func (h *Hub) subscribeToPubSub(ctx context.Context, username string) {
	pubsub := h.redisClient.Subscribe(ctx, services.UserChannel(username))
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.broadcast(username, []byte(msg.Payload))
		}
	}
}

func (h *Hub) broadcast(username string, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, c := range h.connections[username] {
		if err := c.write(data); err != nil {
			log.Printf("WebSocket write to %s failed: %v", username, err)
		}
	}
}

// SendToUser sends a message directly to a user's sockets on this instance.
func (h *Hub) SendToUser(username string, msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	h.broadcast(username, data)
}

// Connections reports how many sockets username has open here.
func (h *Hub) Connections(username string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections[username])
}
