package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/nurpe/agro-contracts/internal/http/middleware"
	"github.com/nurpe/agro-contracts/internal/metrics"
	"github.com/nurpe/agro-contracts/internal/model"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 32
)

type MessageStore interface {
	Create(ctx context.Context, message *model.Message) error
}

type UserFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (*model.User, error)
}

// Hub accepts authenticated websocket connections and relays chat frames between them.
type Hub struct {
	registry   *Registry
	presence   *Presence
	dispatcher *Dispatcher
	messages   MessageStore
	users      UserFinder
	log        zerolog.Logger
	metrics    *metrics.Metrics
	upgrader   websocket.Upgrader
	now        func() time.Time
}

func NewHub(
	registry *Registry,
	presence *Presence,
	dispatcher *Dispatcher,
	messages MessageStore,
	users UserFinder,
	allowedOrigins []string,
	log zerolog.Logger,
	m *metrics.Metrics,
) *Hub {
	return &Hub{
		registry:   registry,
		presence:   presence,
		dispatcher: dispatcher,
		messages:   messages,
		users:      users,
		log:        log.With().Str("component", "hub").Logger(),
		metrics:    m,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Serve must run behind the auth middleware; unauthenticated handshakes never reach the registry.
func (h *Hub) Serve(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "message": "missing principal"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn().Err(err).Str("user_id", principal.UserID.String()).Msg("websocket upgrade failed")
		return
	}

	cl := &client{
		id:     uuid.NewString(),
		userID: principal.UserID,
		name:   h.displayName(c.Request.Context(), principal.UserID),
		conn:   conn,
		send:   make(chan Envelope, sendBuffer),
		done:   make(chan struct{}),
	}

	if previous := h.registry.Register(cl.userID, cl); previous != nil {
		h.log.Debug().Str("user_id", cl.userID.String()).Str("replaced", previous.ID()).Msg("newer connection replaced channel")
		if old, ok := previous.(*client); ok {
			old.close()
		}
	}
	h.metrics.ConnectionOpened()
	h.log.Debug().
		Str("user_id", cl.userID.String()).
		Str("channel_id", cl.id).
		Int("connections", h.registry.Len()).
		Msg("client connected")

	go cl.writePump(h.log)
	cl.readPump(h)

	h.disconnect(cl)
}

func (h *Hub) disconnect(cl *client) {
	cl.close()
	h.metrics.ConnectionClosed()
	// A displaced channel no longer owns the user's presence.
	if !h.registry.Release(cl.userID, cl.id) {
		h.log.Debug().Str("user_id", cl.userID.String()).Str("channel_id", cl.id).Msg("displaced client disconnected")
		return
	}
	h.presence.Leave(cl.userID)
	h.dispatcher.Broadcast(h.presence.Online(), cl.userID)
	h.log.Debug().
		Str("user_id", cl.userID.String()).
		Str("channel_id", cl.id).
		Int("connections", h.registry.Len()).
		Msg("client disconnected")
}

func (h *Hub) displayName(ctx context.Context, userID uuid.UUID) string {
	if h.users == nil {
		return ""
	}
	user, err := h.users.FindByID(ctx, userID)
	if err != nil {
		return ""
	}
	if user.Name != "" {
		return user.Name
	}
	return user.Username
}

type inboundFrame struct {
	Event EventKind       `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type chatMessageFrame struct {
	ChatID  string      `json:"chatId"`
	Members []uuid.UUID `json:"members"`
	Message string      `json:"message"`
}

type membersFrame struct {
	ChatID  string      `json:"chatId"`
	Members []uuid.UUID `json:"members"`
}

// handleFrame applies one inbound frame sent by sender.
func (h *Hub) handleFrame(ctx context.Context, sender *client, frame inboundFrame) {
	switch frame.Event {
	case EventNewMessage:
		var in chatMessageFrame
		if err := json.Unmarshal(frame.Data, &in); err != nil || strings.TrimSpace(in.ChatID) == "" {
			h.log.Debug().Err(err).Msg("ignoring malformed chat message")
			return
		}
		h.relayMessage(ctx, sender, in)

	case EventStartTyping, EventStopTyping:
		var in membersFrame
		if err := json.Unmarshal(frame.Data, &in); err != nil {
			return
		}
		var event Event = StartTyping{ChatID: in.ChatID}
		if frame.Event == EventStopTyping {
			event = StopTyping{ChatID: in.ChatID}
		}
		h.dispatcher.DispatchMany(in.Members, event, sender.userID)

	case EventChatJoined, EventChatLeaved:
		var in membersFrame
		if err := json.Unmarshal(frame.Data, &in); err != nil {
			return
		}
		if frame.Event == EventChatJoined {
			h.presence.Join(sender.userID)
		} else {
			h.presence.Leave(sender.userID)
		}
		h.dispatcher.DispatchMany(in.Members, h.presence.Online(), uuid.Nil)

	default:
		h.log.Debug().Str("event", string(frame.Event)).Msg("ignoring unknown frame")
	}
}

func (h *Hub) relayMessage(ctx context.Context, sender *client, in chatMessageFrame) {
	msg := ChatMessage{
		ID:      uuid.New(),
		Content: in.Message,
		Sender: MessageSender{
			ID:   sender.userID,
			Name: sender.name,
		},
		Chat:      in.ChatID,
		CreatedAt: h.now(),
	}
	h.dispatcher.DispatchMany(in.Members, NewMessage{ChatID: in.ChatID, Message: msg}, uuid.Nil)
	h.dispatcher.DispatchMany(in.Members, NewMessageAlert{ChatID: in.ChatID}, uuid.Nil)

	if h.messages == nil {
		return
	}
	err := h.messages.Create(ctx, &model.Message{
		ID:        msg.ID,
		ChatID:    in.ChatID,
		SenderID:  sender.userID,
		Content:   in.Message,
		CreatedAt: msg.CreatedAt,
	})
	if err != nil {
		h.log.Error().Err(err).Str("chat_id", in.ChatID).Msg("failed to persist chat message")
	}
}

type client struct {
	id        string
	userID    uuid.UUID
	name      string
	conn      *websocket.Conn
	send      chan Envelope
	done      chan struct{}
	closeOnce sync.Once
}

func (c *client) ID() string { return c.id }

func (c *client) Send(env Envelope) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- env:
		return true
	default:
		return false
	}
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}

func (c *client) readPump(h *Hub) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var frame inboundFrame
		if err := c.conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug().Err(err).Str("user_id", c.userID.String()).Msg("websocket read failed")
			}
			return
		}
		h.handleFrame(context.Background(), c, frame)
	}
}

func (c *client) writePump(log zerolog.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case env := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(env); err != nil {
				log.Debug().Err(err).Str("user_id", c.userID.String()).Msg("websocket write failed")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		set[strings.TrimRight(origin, "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[strings.TrimRight(origin, "/")]
		return ok
	}
}
