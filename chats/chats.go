// Package chats serves conversation listings and message history on top of
// an already-ready driver handle. Inbound attachments are extracted through
// the media store only when the caller opts in per media kind.
package chats

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rfakhoury/wagate/driver"
	"github.com/rfakhoury/wagate/media"
)

// Service reads conversation data from a driver handle.
type Service struct {
	media *media.Store
	log   *slog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the service's logger.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// NewService builds a Service extracting opted-in attachments into store.
func NewService(store *media.Store, opts ...ServiceOption) *Service {
	s := &Service{media: store, log: slog.Default()}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// ListConversations returns the tenant's conversations, optionally filtered
// by a case-insensitive name substring.
func (s *Service) ListConversations(ctx context.Context, h driver.Handle, nameFilter string) ([]driver.Conversation, error) {
	convos, err := h.ListConversations(ctx)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	if nameFilter == "" {
		return convos, nil
	}
	needle := strings.ToLower(nameFilter)
	out := convos[:0]
	for _, c := range convos {
		if strings.Contains(strings.ToLower(c.Name), needle) {
			out = append(out, c)
		}
	}
	return out, nil
}

// IncludeFlags selects which attachment kinds are extracted alongside
// message history.
type IncludeFlags struct {
	Images    bool
	Videos    bool
	Audio     bool
	Documents bool
}

func (f IncludeFlags) wants(kind driver.MessageKind) bool {
	switch kind {
	case driver.MessageImage:
		return f.Images
	case driver.MessageVideo:
		return f.Videos
	case driver.MessageAudio:
		return f.Audio
	case driver.MessageDocument:
		return f.Documents
	default:
		return false
	}
}

// MessageView is one history entry as returned to callers. Media is nil for
// text messages and for kinds the caller did not opt into.
type MessageView struct {
	driver.Message
	Media *media.Saved `json:"media"`
}

// FetchMessages returns a conversation's most recent messages, optionally
// restricted to one sender, with opted-in attachments extracted to public
// URLs. A single attachment that fails to download degrades to a nil Media
// on its message rather than failing the fetch.
func (s *Service) FetchMessages(ctx context.Context, h driver.Handle, conversationID string, limit int, include IncludeFlags, sender string) ([]MessageView, error) {
	if conversationID == "" {
		return nil, fmt.Errorf("conversation id required")
	}
	msgs, err := h.FetchMessages(ctx, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch messages: %w", err)
	}

	out := make([]MessageView, 0, len(msgs))
	for _, msg := range msgs {
		if sender != "" && msg.Sender != sender {
			continue
		}
		view := MessageView{Message: msg}
		if msg.HasAttachment && include.wants(msg.Kind) {
			view.Media = s.extract(ctx, h, msg)
		}
		out = append(out, view)
	}
	return out, nil
}

func (s *Service) extract(ctx context.Context, h driver.Handle, msg driver.Message) *media.Saved {
	m, err := h.DownloadAttachment(ctx, msg)
	if err != nil {
		s.log.WarnContext(ctx, "attachment download failed",
			slog.String("message", msg.ID), slog.String("error", err.Error()))
		return nil
	}
	saved, err := s.media.SaveInbound(*m)
	if err != nil {
		s.log.WarnContext(ctx, "attachment publish failed",
			slog.String("message", msg.ID), slog.String("error", err.Error()))
		return nil
	}
	return saved
}
