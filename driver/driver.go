// Package driver declares the contract the gateway expects from the external
// messaging driver. The driver performs the actual protocol-level connection
// and messaging; this package only names the operations and lifecycle events
// the session core consumes. Concrete implementations live outside this
// module; drivertest provides a scriptable fake for tests.
package driver

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrReleased is returned by operations on a handle whose resources have
	// already been released.
	ErrReleased = errors.New("driver handle released")
	// ErrRecipientUnknown indicates the recipient is not registered on the
	// messaging network.
	ErrRecipientUnknown = errors.New("recipient not registered")
	// ErrNotFound indicates a conversation or message the driver cannot resolve.
	ErrNotFound = errors.New("driver: not found")
)

// EventKind enumerates the lifecycle events a handle emits.
type EventKind int

const (
	// EventLoginCode carries a fresh scannable login code while the session
	// awaits out-of-band human authorization.
	EventLoginCode EventKind = iota + 1
	// EventReady signals the handle is connected and usable.
	EventReady
	// EventAuthFailure signals the login attempt was rejected upstream.
	EventAuthFailure
	// EventDisconnected signals the connection dropped.
	EventDisconnected
)

func (k EventKind) String() string {
	switch k {
	case EventLoginCode:
		return "login-code"
	case EventReady:
		return "ready"
	case EventAuthFailure:
		return "auth-failure"
	case EventDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Event is a single lifecycle notification from a handle.
type Event struct {
	Kind EventKind
	// Code is set for EventLoginCode events.
	Code *LoginCode
	// Reason carries optional human-readable detail (auth failure cause,
	// disconnect reason).
	Reason string
}

// LoginCode is the scannable artifact presented to the end user to authorize
// a new session.
type LoginCode struct {
	// Value is the raw code payload, suitable for rendering by the caller.
	Value string
	// IssuedAt is when the driver produced this code. Codes rotate; only the
	// most recent one is scannable.
	IssuedAt time.Time
}

// MessageKind classifies a conversation message's payload.
type MessageKind string

const (
	MessageText     MessageKind = "text"
	MessageImage    MessageKind = "image"
	MessageVideo    MessageKind = "video"
	MessageAudio    MessageKind = "audio"
	MessageDocument MessageKind = "document"
)

// Conversation is a chat thread as reported by the driver.
type Conversation struct {
	ID          string
	Name        string
	IsGroup     bool
	UnreadCount int
	LastActive  time.Time
}

// Message is one message within a conversation.
type Message struct {
	ID             string
	ConversationID string
	Sender         string
	FromMe         bool
	Kind           MessageKind
	Body           string
	Timestamp      time.Time
	HasAttachment  bool
}

// Media is a decoded attachment payload.
type Media struct {
	MimeType string
	Filename string
	Data     []byte
}

// ConnectionState is the driver's own view of the link.
type ConnectionState string

const (
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateDisconnected ConnectionState = "disconnected"
)

// SendResult identifies a successfully dispatched message.
type SendResult struct {
	MessageID string
	Timestamp time.Time
}

// Handle is one tenant's live connection to the messaging network. A handle
// is owned by exactly one session record at a time; Release must be safe to
// call more than once (subsequent calls are no-ops).
type Handle interface {
	// Connect begins the asynchronous connection sequence. Lifecycle progress
	// is reported on Events, not by Connect's return.
	Connect(ctx context.Context) error

	// Events is the ordered stream of lifecycle events for this handle. The
	// driver closes the channel when the handle is released.
	Events() <-chan Event

	ConnectionState(ctx context.Context) (ConnectionState, error)

	SendText(ctx context.Context, recipient string, text string) (*SendResult, error)
	SendMedia(ctx context.Context, recipient string, media Media, caption string) (*SendResult, error)

	ListConversations(ctx context.Context) ([]Conversation, error)
	GetConversationByID(ctx context.Context, id string) (*Conversation, error)
	FetchMessages(ctx context.Context, conversationID string, limit int) ([]Message, error)
	DownloadAttachment(ctx context.Context, msg Message) (*Media, error)

	// Release tears down the connection and frees driver resources. Idempotent.
	Release(ctx context.Context) error
}

// Factory creates handles. DataDir is the tenant's durable login-data
// directory; the driver reads and writes credentials there so a later handle
// can reconnect without a fresh login code.
type Factory interface {
	NewHandle(ctx context.Context, tenantID string, dataDir string) (Handle, error)
}

// FactoryFunc adapts a function to the Factory interface.
type FactoryFunc func(ctx context.Context, tenantID string, dataDir string) (Handle, error)

func (f FactoryFunc) NewHandle(ctx context.Context, tenantID string, dataDir string) (Handle, error) {
	return f(ctx, tenantID, dataDir)
}
