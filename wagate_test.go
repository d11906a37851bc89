package wagate

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rfakhoury/wagate/chats"
	"github.com/rfakhoury/wagate/dispatch"
	"github.com/rfakhoury/wagate/driver"
	"github.com/rfakhoury/wagate/driver/drivertest"
	"github.com/rfakhoury/wagate/sessions"
	"github.com/rfakhoury/wagate/storage/memory"
	"github.com/rfakhoury/wagate/tenant"
)

func newTestService(t *testing.T) (*Service, *drivertest.Factory) {
	t.Helper()
	factory := drivertest.NewFactory()
	store, err := memory.New(128)
	if err != nil {
		t.Fatalf("memory store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	cfg := Config{
		SessionDataDir:          filepath.Join(t.TempDir(), "sessions"),
		MediaDir:                filepath.Join(t.TempDir(), "media"),
		MediaURL:                "/media",
		MediaRetention:          time.Hour,
		ReadyBudget:             2 * time.Second,
		LoginBudget:             2 * time.Second,
		BulkDelay:               5 * time.Millisecond,
		BulkBackgroundThreshold: 3,
		CountryCode:             "961",
		DomainSuffix:            "c.us",
	}
	svc, err := New(cfg, factory, store, WithLogHandler(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return svc, factory
}

// connect walks a tenant's fresh session to connected.
func connect(t *testing.T, svc *Service, factory *drivertest.Factory, id string) *drivertest.Handle {
	t.Helper()
	if _, err := svc.Manager().Init(context.Background(), tenant.MustParse(id)); err != nil {
		t.Fatalf("Init: %v", err)
	}
	h := factory.Latest(id)
	h.EmitReady()
	if _, err := svc.Manager().AwaitReady(context.Background(), tenant.MustParse(id), sessions.WaitConnected, 2*time.Second); err != nil {
		t.Fatalf("session never connected: %v", err)
	}
	return h
}

func TestInitSessionReturnsLoginCode(t *testing.T) {
	svc, factory := newTestService(t)

	type initOut struct {
		res *sessions.InitResult
		err error
	}
	out := make(chan initOut, 1)
	go func() {
		res, err := svc.InitSession(context.Background(), "alice")
		out <- initOut{res, err}
	}()

	deadline := time.Now().Add(time.Second)
	for factory.Latest("alice") == nil {
		if time.Now().After(deadline) {
			t.Fatal("init never created a handle")
		}
		time.Sleep(5 * time.Millisecond)
	}
	factory.Latest("alice").EmitLoginCode("scan-me")

	got := <-out
	if got.err != nil {
		t.Fatalf("InitSession: %v", got.err)
	}
	if got.res.LoginCode == nil || got.res.LoginCode.Value != "scan-me" {
		t.Fatalf("InitSession = %+v, want login code scan-me", got.res)
	}
}

func TestInitSessionRejectsBadTenant(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.InitSession(context.Background(), map[string]any{"name": "no id"})
	if !errors.Is(err, tenant.ErrInvalid) {
		t.Fatalf("InitSession(bad tenant) = %v, want tenant.ErrInvalid", err)
	}
	if Categorize(err) != CategoryValidation {
		t.Fatalf("category = %q, want validation", Categorize(err))
	}
}

func TestSendTextNormalizesRecipient(t *testing.T) {
	svc, factory := newTestService(t)
	h := connect(t, svc, factory, "alice")

	res, err := svc.SendText(context.Background(), "alice", "+961 3 578 883", "hello")
	if err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if res.MessageID == "" {
		t.Fatal("SendText returned no message id")
	}
	sent := h.SentMessages()
	if len(sent) != 1 || sent[0].Recipient != "9613578883@c.us" {
		t.Fatalf("sent = %+v, want canonical recipient 9613578883@c.us", sent)
	}
}

func TestSendTextBadRecipientIsValidation(t *testing.T) {
	svc, factory := newTestService(t)
	connect(t, svc, factory, "alice")

	_, err := svc.SendText(context.Background(), "alice", "123", "hello")
	if !errors.Is(err, ErrBadRecipient) {
		t.Fatalf("SendText(123) = %v, want ErrBadRecipient", err)
	}
	if Categorize(err) != CategoryValidation {
		t.Fatalf("category = %q, want validation", Categorize(err))
	}
}

func TestSendTextUpstreamFailurePreservesDriverMessage(t *testing.T) {
	svc, factory := newTestService(t)
	h := connect(t, svc, factory, "alice")
	h.FailSends["9613578883@c.us"] = driver.ErrRecipientUnknown

	_, err := svc.SendText(context.Background(), "alice", "3578883", "hello")
	if Categorize(err) != CategoryUpstream {
		t.Fatalf("category = %q (%v), want upstream", Categorize(err), err)
	}
	if !errors.Is(err, driver.ErrRecipientUnknown) {
		t.Fatalf("driver error lost from chain: %v", err)
	}
}

func TestSendAttachmentDeletesStagedFileAlways(t *testing.T) {
	svc, factory := newTestService(t)
	h := connect(t, svc, factory, "alice")

	stage := func() string {
		t.Helper()
		p := filepath.Join(t.TempDir(), "upload.jpg")
		if err := os.WriteFile(p, []byte("jpeg"), 0o600); err != nil {
			t.Fatalf("stage: %v", err)
		}
		return p
	}

	// Success path.
	staged := stage()
	if _, err := svc.SendAttachment(context.Background(), "alice", "3578883", staged, "image/jpeg", "upload.jpg", "cap"); err != nil {
		t.Fatalf("SendAttachment: %v", err)
	}
	if _, err := os.Stat(staged); !os.IsNotExist(err) {
		t.Fatal("staged file survived successful send")
	}

	// Failure path: send-once, delete-always.
	h.FailSends["9613578883@c.us"] = driver.ErrRecipientUnknown
	staged = stage()
	if _, err := svc.SendAttachment(context.Background(), "alice", "3578883", staged, "image/jpeg", "upload.jpg", "cap"); err == nil {
		t.Fatal("want send failure")
	}
	if _, err := os.Stat(staged); !os.IsNotExist(err) {
		t.Fatal("staged file survived failed send")
	}
}

func TestBulkSendTextForegroundReport(t *testing.T) {
	svc, factory := newTestService(t)
	connect(t, svc, factory, "alice")

	res, err := svc.BulkSendText(context.Background(), "alice",
		[]string{"3578883", "70123456"}, "hello", 5*time.Millisecond)
	if err != nil {
		t.Fatalf("BulkSendText: %v", err)
	}
	if res.Report == nil || res.Accepted != nil {
		t.Fatalf("small batch result = %+v, want foreground report", res)
	}
	if res.Report.Succeeded != 2 {
		t.Fatalf("report = %+v, want 2 successes", res.Report)
	}
}

func TestBulkSendTextBackgroundAcceptedAndPollable(t *testing.T) {
	svc, factory := newTestService(t)
	h := connect(t, svc, factory, "alice")

	res, err := svc.BulkSendText(context.Background(), "alice",
		[]string{"70123451", "70123452", "70123453", "70123454"}, "hello", time.Millisecond)
	if err != nil {
		t.Fatalf("BulkSendText: %v", err)
	}
	if res.Accepted == nil || res.Report != nil {
		t.Fatalf("large batch result = %+v, want accepted ack", res)
	}
	if res.Accepted.Recipients != 4 || res.Accepted.Estimate <= 0 {
		t.Fatalf("accepted ack incomplete: %+v", res.Accepted)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		snap, err := svc.BulkJobStatus(context.Background(), "alice", res.Accepted.JobID)
		if err == nil && snap.State == dispatch.JobCompleted {
			if snap.Succeeded != 4 {
				t.Fatalf("snapshot = %+v, want 4 successes", snap)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("background job never completed (last err: %v)", err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	if sent := len(h.SentMessages()); sent != 4 {
		t.Fatalf("background batch sent %d, want 4", sent)
	}
}

func TestFetchMessagesThroughService(t *testing.T) {
	svc, factory := newTestService(t)
	factory.Configure = func(h *drivertest.Handle) {
		h.Conversations = []driver.Conversation{{ID: "c1", Name: "Omar"}}
		h.Messages["c1"] = []driver.Message{
			{ID: "m1", ConversationID: "c1", Kind: driver.MessageText, Body: "hi"},
			{ID: "m2", ConversationID: "c1", Kind: driver.MessageImage, HasAttachment: true},
		}
		h.Attachments["m2"] = driver.Media{MimeType: "image/png", Data: []byte("png")}
	}
	connect(t, svc, factory, "alice")

	convos, err := svc.ListConversations(context.Background(), "alice", "oma")
	if err != nil || len(convos) != 1 {
		t.Fatalf("ListConversations = %v (%v), want 1 match", convos, err)
	}

	views, err := svc.FetchMessages(context.Background(), "alice", "c1", 10, chats.IncludeFlags{Images: true}, "")
	if err != nil {
		t.Fatalf("FetchMessages: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("views = %d, want 2", len(views))
	}
	var sawMedia bool
	for _, v := range views {
		if v.Kind == driver.MessageText && v.Media != nil {
			t.Fatal("text message carries media")
		}
		if v.Kind == driver.MessageImage && v.Media != nil {
			sawMedia = true
		}
	}
	if !sawMedia {
		t.Fatal("image media not extracted")
	}
}

func TestCategorize(t *testing.T) {
	cases := []struct {
		err  error
		want Category
	}{
		{tenant.ErrInvalid, CategoryValidation},
		{dispatch.ErrNoRecipients, CategoryValidation},
		{sessions.ErrNotFound, CategoryNotFound},
		{dispatch.ErrJobNotFound, CategoryNotFound},
		{sessions.ErrUnavailable, CategoryNotReady},
		{sessions.ErrAwaitTimeout, CategoryTimeout},
		{context.DeadlineExceeded, CategoryTimeout},
		{ErrUpstream, CategoryUpstream},
		{errors.New("disk on fire"), CategoryInternal},
	}
	for _, tc := range cases {
		if got := Categorize(tc.err); got != tc.want {
			t.Errorf("Categorize(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
	if got := Categorize(nil); got != "" {
		t.Errorf("Categorize(nil) = %q, want empty", got)
	}
}
