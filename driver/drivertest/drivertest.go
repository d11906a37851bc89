// Package drivertest provides a scriptable in-memory driver implementation
// for exercising the session core without a real messaging network. Tests
// drive the lifecycle explicitly (EmitLoginCode, EmitReady, ...) or let the
// fake replay durable credentials the way a real driver would.
package drivertest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rfakhoury/wagate/driver"
)

// credsFile is the marker the fake writes into the tenant's data directory
// when a session reaches ready, standing in for real durable login data.
const credsFile = "creds.json"

// Sent records one delivered payload.
type Sent struct {
	Recipient string
	Text      string
	Caption   string
	Media     *driver.Media
}

// Handle is a fake driver.Handle.
type Handle struct {
	TenantID string
	DataDir  string

	mu       sync.Mutex
	events   chan driver.Event
	released bool
	releases int
	sent     []Sent

	// FailSends maps a recipient to the error its sends should fail with.
	FailSends map[string]error
	// SendDelay, when set, is slept inside each send to simulate latency.
	SendDelay time.Duration
	// Conversations and Messages are fixture data for read operations.
	Conversations []driver.Conversation
	Messages      map[string][]driver.Message
	// Attachments maps message ID to downloadable media.
	Attachments map[string]driver.Media
	// ConnectErr, when set, is returned by Connect.
	ConnectErr error
}

var _ driver.Handle = (*Handle)(nil)

func NewHandle(tenantID, dataDir string) *Handle {
	return &Handle{
		TenantID:    tenantID,
		DataDir:     dataDir,
		events:      make(chan driver.Event, 16),
		FailSends:   make(map[string]error),
		Messages:    make(map[string][]driver.Message),
		Attachments: make(map[string]driver.Media),
	}
}

// Connect replays stored credentials if present: a data directory that
// already holds creds yields an immediate ready event, the way a real driver
// restores a session without a fresh login code. Otherwise the test script
// decides what happens next.
func (h *Handle) Connect(ctx context.Context) error {
	if h.ConnectErr != nil {
		return h.ConnectErr
	}
	if h.hasCreds() {
		h.EmitReady()
	}
	return nil
}

func (h *Handle) Events() <-chan driver.Event { return h.events }

func (h *Handle) ConnectionState(ctx context.Context) (driver.ConnectionState, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return driver.StateDisconnected, nil
	}
	return driver.StateConnected, nil
}

func (h *Handle) SendText(ctx context.Context, recipient, text string) (*driver.SendResult, error) {
	return h.record(ctx, Sent{Recipient: recipient, Text: text})
}

func (h *Handle) SendMedia(ctx context.Context, recipient string, media driver.Media, caption string) (*driver.SendResult, error) {
	return h.record(ctx, Sent{Recipient: recipient, Caption: caption, Media: &media})
}

func (h *Handle) record(ctx context.Context, s Sent) (*driver.SendResult, error) {
	if h.SendDelay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(h.SendDelay):
		}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return nil, driver.ErrReleased
	}
	if err, ok := h.FailSends[s.Recipient]; ok {
		return nil, err
	}
	h.sent = append(h.sent, s)
	return &driver.SendResult{MessageID: uuid.NewString(), Timestamp: time.Now()}, nil
}

func (h *Handle) ListConversations(ctx context.Context) ([]driver.Conversation, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return nil, driver.ErrReleased
	}
	out := make([]driver.Conversation, len(h.Conversations))
	copy(out, h.Conversations)
	return out, nil
}

func (h *Handle) GetConversationByID(ctx context.Context, id string) (*driver.Conversation, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := range h.Conversations {
		if h.Conversations[i].ID == id {
			c := h.Conversations[i]
			return &c, nil
		}
	}
	return nil, fmt.Errorf("%w: conversation %s", driver.ErrNotFound, id)
}

func (h *Handle) FetchMessages(ctx context.Context, conversationID string, limit int) ([]driver.Message, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	msgs := h.Messages[conversationID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]driver.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (h *Handle) DownloadAttachment(ctx context.Context, msg driver.Message) (*driver.Media, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	m, ok := h.Attachments[msg.ID]
	if !ok {
		return nil, fmt.Errorf("%w: attachment for message %s", driver.ErrNotFound, msg.ID)
	}
	cp := m
	cp.Data = append([]byte(nil), m.Data...)
	return &cp, nil
}

func (h *Handle) Release(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.releases++
	if h.released {
		return nil
	}
	h.released = true
	close(h.events)
	return nil
}

// --- scripting ---

// EmitLoginCode emits a login-code event carrying value.
func (h *Handle) EmitLoginCode(value string) {
	h.emit(driver.Event{Kind: driver.EventLoginCode, Code: &driver.LoginCode{Value: value, IssuedAt: time.Now()}})
}

// EmitReady emits a ready event and persists fake durable credentials so a
// future handle for the same data directory reconnects without a login code.
func (h *Handle) EmitReady() {
	if h.DataDir != "" {
		_ = os.MkdirAll(h.DataDir, 0o755)
		_ = os.WriteFile(filepath.Join(h.DataDir, credsFile), []byte(`{"tenant":"`+h.TenantID+`"}`), 0o600)
	}
	h.emit(driver.Event{Kind: driver.EventReady})
}

func (h *Handle) EmitAuthFailure(reason string) {
	h.emit(driver.Event{Kind: driver.EventAuthFailure, Reason: reason})
}

func (h *Handle) EmitDisconnected(reason string) {
	h.emit(driver.Event{Kind: driver.EventDisconnected, Reason: reason})
}

func (h *Handle) emit(ev driver.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return
	}
	h.events <- ev
}

func (h *Handle) hasCreds() bool {
	if h.DataDir == "" {
		return false
	}
	_, err := os.Stat(filepath.Join(h.DataDir, credsFile))
	return err == nil
}

// Released reports whether Release has been called, and how many times.
func (h *Handle) Released() (bool, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.released, h.releases
}

// SentMessages returns a copy of everything delivered through this handle.
func (h *Handle) SentMessages() []Sent {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Sent, len(h.sent))
	copy(out, h.sent)
	return out
}

// Factory creates fake handles and remembers every one it made.
type Factory struct {
	mu      sync.Mutex
	handles map[string][]*Handle
	created int

	// Configure, when set, runs on each new handle before it is returned, so
	// tests can seed fixtures or failure modes.
	Configure func(h *Handle)
}

var _ driver.Factory = (*Factory)(nil)

func NewFactory() *Factory {
	return &Factory{handles: make(map[string][]*Handle)}
}

func (f *Factory) NewHandle(ctx context.Context, tenantID, dataDir string) (driver.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h := NewHandle(tenantID, dataDir)
	if f.Configure != nil {
		f.Configure(h)
	}
	f.handles[tenantID] = append(f.handles[tenantID], h)
	f.created++
	return h, nil
}

// Created returns the total number of handles constructed.
func (f *Factory) Created() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.created
}

// Handles returns every handle created for a tenant, in creation order.
func (f *Factory) Handles(tenantID string) []*Handle {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*Handle, len(f.handles[tenantID]))
	copy(out, f.handles[tenantID])
	return out
}

// Latest returns the most recently created handle for a tenant, or nil.
func (f *Factory) Latest(tenantID string) *Handle {
	hs := f.Handles(tenantID)
	if len(hs) == 0 {
		return nil
	}
	return hs[len(hs)-1]
}
