package websocket

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"cardforge-backend/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// stream is the set of live connections for one user plus the cancel for the
// redis subscription feeding them.
type stream struct {
	conns  []*websocket.Conn
	cancel context.CancelFunc
}

// Hub fans job progress events out to their owner's open WebSocket
// connections. Workers publish models.WSMessage JSON on
// user_updates:{userID}; the hub holds one redis subscription per connected
// user and tears it down when the last connection closes.
type Hub struct {
	mu        sync.RWMutex
	streams   map[uuid.UUID]*stream
	rdb       *redis.Client
	jwtSecret []byte
}

func NewHub(rdb *redis.Client, jwtSecret string) *Hub {
	return &Hub{
		streams:   make(map[uuid.UUID]*stream),
		rdb:       rdb,
		jwtSecret: []byte(jwtSecret),
	}
}

// HandleWebSocket authenticates and upgrades the connection. Browsers cannot
// set an Authorization header on the WS handshake, so the access token rides
// the token query param instead.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authenticate(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed for user %s: %v", userID, err)
		return
	}

	h.attach(userID, conn)

	// Inbound frames are ignored; the read loop only detects disconnect.
	go func() {
		defer h.detach(userID, conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (h *Hub) authenticate(r *http.Request) (uuid.UUID, bool) {
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		return uuid.Nil, false
	}

	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return h.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return uuid.Nil, false
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return uuid.Nil, false
	}
	idStr, _ := claims["user_id"].(string)
	userID, err := uuid.Parse(idStr)
	if err != nil {
		return uuid.Nil, false
	}
	return userID, true
}

func (h *Hub) attach(userID uuid.UUID, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.streams[userID]
	if !ok {
		ctx, cancel := context.WithCancel(context.Background())
		s = &stream{cancel: cancel}
		h.streams[userID] = s
		go h.relay(ctx, userID)
	}
	s.conns = append(s.conns, conn)

	log.Printf("WebSocket connected: user %s (%d open)", userID, len(s.conns))
}

func (h *Hub) detach(userID uuid.UUID, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conn.Close()

	s, ok := h.streams[userID]
	if !ok {
		return
	}
	for i, c := range s.conns {
		if c == conn {
			s.conns = append(s.conns[:i], s.conns[i+1:]...)
			break
		}
	}
	if len(s.conns) == 0 {
		s.cancel()
		delete(h.streams, userID)
	}

	log.Printf("WebSocket disconnected: user %s", userID)
}

// relay forwards the user's pub/sub channel into their open connections for
// as long as at least one connection remains.
func (h *Hub) relay(ctx context.Context, userID uuid.UUID) {
	sub := h.rdb.Subscribe(ctx, "user_updates:"+userID.String())
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-ch:
			if !ok {
				return
			}
			var msg models.WSMessage
			if err := json.Unmarshal([]byte(raw.Payload), &msg); err != nil {
				log.Printf("dropping malformed event for user %s: %v", userID, err)
				continue
			}
			h.SendToUser(userID, msg)
		}
	}
}

// SendToUser writes one event to every open connection the user has. A write
// failure is logged and the connection left for its read loop to reap.
func (h *Hub) SendToUser(userID uuid.UUID, msg models.WSMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	s, ok := h.streams[userID]
	if !ok {
		return
	}
	for _, conn := range s.conns {
		if err := conn.WriteJSON(msg); err != nil {
			log.Printf("WebSocket write to user %s failed: %v", userID, err)
		}
	}
}
