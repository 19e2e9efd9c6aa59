package realtime

import (
	"time"

	"github.com/google/uuid"

	"github.com/nurpe/agro-contracts/internal/model"
)

type EventKind string

const (
	EventNewContract      EventKind = "NEW_CONTRACT"
	EventContractAccepted EventKind = "CONTRACT_ACCEPTED"
	EventNewMessage       EventKind = "NEW_MESSAGE"
	EventNewMessageAlert  EventKind = "NEW_MESSAGE_ALERT"
	EventStartTyping      EventKind = "START_TYPING"
	EventStopTyping       EventKind = "STOP_TYPING"
	EventOnlineUsers      EventKind = "ONLINE_USERS"

	// Inbound-only kinds sent by clients.
	EventChatJoined EventKind = "CHAT_JOINED"
	EventChatLeaved EventKind = "CHAT_LEAVED"
)

// Event is a push payload. The set of implementations is closed to this package.
type Event interface {
	Kind() EventKind
	event()
}

type NewContract struct {
	ContractID uuid.UUID       `json:"contractId"`
	Message    string          `json:"message"`
	Role       model.PartyRole `json:"role"`
}

type ContractAccepted struct {
	ContractID     uuid.UUID            `json:"contractId"`
	Message        string               `json:"message"`
	ContractStatus model.ContractStatus `json:"contractStatus"`
	Role           model.PartyRole      `json:"role"`
}

type MessageSender struct {
	ID   uuid.UUID `json:"_id"`
	Name string    `json:"name"`
}

type ChatMessage struct {
	ID        uuid.UUID     `json:"_id"`
	Content   string        `json:"content"`
	Sender    MessageSender `json:"sender"`
	Chat      string        `json:"chat"`
	CreatedAt time.Time     `json:"createdAt"`
}

type NewMessage struct {
	ChatID  string      `json:"chatId"`
	Message ChatMessage `json:"message"`
}

type NewMessageAlert struct {
	ChatID string `json:"chatId"`
}

type StartTyping struct {
	ChatID string `json:"chatId"`
}

type StopTyping struct {
	ChatID string `json:"chatId"`
}

// OnlineUsers is the list of user ids currently marked present.
type OnlineUsers []string

func (NewContract) Kind() EventKind      { return EventNewContract }
func (ContractAccepted) Kind() EventKind { return EventContractAccepted }
func (NewMessage) Kind() EventKind       { return EventNewMessage }
func (NewMessageAlert) Kind() EventKind  { return EventNewMessageAlert }
func (StartTyping) Kind() EventKind      { return EventStartTyping }
func (StopTyping) Kind() EventKind       { return EventStopTyping }
func (OnlineUsers) Kind() EventKind      { return EventOnlineUsers }

func (NewContract) event()      {}
func (ContractAccepted) event() {}
func (NewMessage) event()       {}
func (NewMessageAlert) event()  {}
func (StartTyping) event()      {}
func (StopTyping) event()       {}
func (OnlineUsers) event()      {}

// Envelope is the wire frame for both directions.
type Envelope struct {
	Event EventKind `json:"event"`
	Data  any       `json:"data,omitempty"`
}

func NewEnvelope(e Event) Envelope {
	return Envelope{Event: e.Kind(), Data: e}
}
