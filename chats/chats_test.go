package chats

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/rfakhoury/wagate/driver"
	"github.com/rfakhoury/wagate/driver/drivertest"
	"github.com/rfakhoury/wagate/media"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	store, err := media.NewStore(t.TempDir(), "/media", media.WithLogger(slog.New(slog.DiscardHandler)))
	if err != nil {
		t.Fatalf("media store: %v", err)
	}
	return NewService(store, WithLogger(slog.New(slog.DiscardHandler)))
}

func fixtureHandle() *drivertest.Handle {
	h := drivertest.NewHandle("alice", "")
	h.Conversations = []driver.Conversation{
		{ID: "c1", Name: "Family Group", IsGroup: true},
		{ID: "c2", Name: "Omar"},
		{ID: "c3", Name: "Work family"},
	}
	now := time.Now()
	h.Messages["c1"] = []driver.Message{
		{ID: "m1", ConversationID: "c1", Sender: "9613578883@c.us", Kind: driver.MessageText, Body: "hi", Timestamp: now},
		{ID: "m2", ConversationID: "c1", Sender: "96170123456@c.us", Kind: driver.MessageImage, HasAttachment: true, Timestamp: now},
		{ID: "m3", ConversationID: "c1", Sender: "9613578883@c.us", Kind: driver.MessageVideo, HasAttachment: true, Timestamp: now},
	}
	h.Attachments["m2"] = driver.Media{MimeType: "image/jpeg", Data: []byte("img")}
	h.Attachments["m3"] = driver.Media{MimeType: "video/mp4", Data: []byte("vid")}
	return h
}

func TestListConversationsNameFilter(t *testing.T) {
	s := newTestService(t)
	h := fixtureHandle()
	ctx := context.Background()

	all, err := s.ListConversations(ctx, h, "")
	if err != nil || len(all) != 3 {
		t.Fatalf("unfiltered = %v (%v), want 3", all, err)
	}
	some, err := s.ListConversations(ctx, h, "family")
	if err != nil {
		t.Fatalf("ListConversations: %v", err)
	}
	if len(some) != 2 {
		t.Fatalf("filter 'family' matched %d, want 2 (case-insensitive substring)", len(some))
	}
}

func TestFetchMessagesMediaInclusionPerKind(t *testing.T) {
	s := newTestService(t)
	h := fixtureHandle()

	views, err := s.FetchMessages(context.Background(), h, "c1", 10, IncludeFlags{Images: true}, "")
	if err != nil {
		t.Fatalf("FetchMessages: %v", err)
	}
	if len(views) != 3 {
		t.Fatalf("views = %d, want 3", len(views))
	}
	byID := map[string]MessageView{}
	for _, v := range views {
		byID[v.ID] = v
	}
	if byID["m1"].Media != nil {
		t.Fatal("text message carries media")
	}
	if byID["m2"].Media == nil {
		t.Fatal("image message missing extracted media despite Images flag")
	}
	if byID["m3"].Media != nil {
		t.Fatal("video extracted without Videos flag")
	}
	if got := byID["m2"].Media.MimeType; got != "image/jpeg" {
		t.Fatalf("extracted mime = %q, want image/jpeg", got)
	}
}

func TestFetchMessagesSenderFilter(t *testing.T) {
	s := newTestService(t)
	h := fixtureHandle()

	views, err := s.FetchMessages(context.Background(), h, "c1", 10, IncludeFlags{}, "9613578883@c.us")
	if err != nil {
		t.Fatalf("FetchMessages: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("sender filter matched %d, want 2", len(views))
	}
	for _, v := range views {
		if v.Sender != "9613578883@c.us" {
			t.Fatalf("foreign sender leaked: %+v", v.Message)
		}
	}
}

func TestFetchMessagesAttachmentFailureDegrades(t *testing.T) {
	s := newTestService(t)
	h := fixtureHandle()
	delete(h.Attachments, "m2") // download will fail

	views, err := s.FetchMessages(context.Background(), h, "c1", 10, IncludeFlags{Images: true}, "")
	if err != nil {
		t.Fatalf("FetchMessages: %v", err)
	}
	for _, v := range views {
		if v.ID == "m2" && v.Media != nil {
			t.Fatal("failed download should yield nil media, not error")
		}
	}
}
