// Package wagate is a multi-tenant session gateway for an external messaging
// driver. It keeps one long-lived driver connection per tenant, walks each
// through the login lifecycle (initializing, pending a scannable login code,
// connected, disconnected), and exposes the per-tenant operations a transport
// layer needs: session commands, single and bulk sends, and conversation
// history with media extraction.
//
// The Service facade is the single entry point. It resolves raw tenant input
// exactly once at the boundary, serializes commands per tenant, and blocks
// messaging operations on session readiness with bounded waits.
package wagate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/rfakhoury/wagate/chats"
	"github.com/rfakhoury/wagate/dispatch"
	"github.com/rfakhoury/wagate/driver"
	"github.com/rfakhoury/wagate/internal/logctx"
	"github.com/rfakhoury/wagate/media"
	"github.com/rfakhoury/wagate/sessions"
	"github.com/rfakhoury/wagate/storage"
	"github.com/rfakhoury/wagate/tenant"
)

// Service wires the session manager, bulk dispatcher, chat reader, and media
// store behind one per-tenant API surface.
type Service struct {
	cfg        Config
	manager    *sessions.Manager
	dispatcher *dispatch.Dispatcher
	chats      *chats.Service
	media      *media.Store
	log        *slog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*serviceOptions)

type serviceOptions struct {
	logHandler slog.Handler
}

// WithLogHandler sets the slog handler backing all gateway logging. It is
// wrapped so records carry tenant/session/job context automatically.
func WithLogHandler(h slog.Handler) ServiceOption {
	return func(o *serviceOptions) {
		if h != nil {
			o.logHandler = h
		}
	}
}

// New builds a Service. store holds bulk-job progress snapshots and may be
// nil to disable job status polling. Directory creation failures are fatal:
// the gateway cannot run without its session and media roots.
func New(cfg Config, factory driver.Factory, store storage.Store, opts ...ServiceOption) (*Service, error) {
	o := &serviceOptions{logHandler: slog.Default().Handler()}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	log := slog.New(logctx.Handler{Handler: o.logHandler})

	manager, err := sessions.NewManager(factory, cfg.SessionDataDir, sessions.WithLogger(log))
	if err != nil {
		return nil, err
	}
	mediaStore, err := media.NewStore(cfg.MediaDir, cfg.MediaURL,
		media.WithRetention(cfg.MediaRetention), media.WithLogger(log))
	if err != nil {
		return nil, err
	}
	dispatcher := dispatch.NewDispatcher(store,
		dispatch.WithLogger(log),
		dispatch.WithBackgroundThreshold(cfg.BulkBackgroundThreshold),
		dispatch.WithDefaultDelay(cfg.BulkDelay),
		dispatch.WithCountryCode(cfg.CountryCode),
		dispatch.WithDomainSuffix(cfg.DomainSuffix))

	return &Service{
		cfg:        cfg,
		manager:    manager,
		dispatcher: dispatcher,
		chats:      chats.NewService(mediaStore, chats.WithLogger(log)),
		media:      mediaStore,
		log:        log,
	}, nil
}

// Manager exposes the session manager for embedders that need direct access
// (status dashboards, tests).
func (s *Service) Manager() *sessions.Manager { return s.manager }

// Media exposes the media store, primarily for the external retention sweep.
func (s *Service) Media() *media.Store { return s.media }

// resolve parses raw tenant input once at the boundary.
func (s *Service) resolve(ctx context.Context, raw any, op string) (context.Context, tenant.ID, error) {
	id, err := tenant.Parse(raw)
	if err != nil {
		return ctx, "", err
	}
	ctx = logctx.WithTenantData(ctx, &logctx.TenantData{TenantID: id.String(), Operation: op})
	return ctx, id, nil
}

// --- session commands ---

// InitSession creates (or resumes) the tenant's session. For a fresh session
// it waits, on the interactive login budget, until the driver either issues
// a login code or reconnects from durable data; the returned result carries
// whichever happened.
func (s *Service) InitSession(ctx context.Context, rawTenant any) (*sessions.InitResult, error) {
	ctx, id, err := s.resolve(ctx, rawTenant, "init")
	if err != nil {
		return nil, err
	}
	res, err := s.manager.Init(ctx, id)
	if err != nil {
		return nil, err
	}
	if res.AlreadyConnected || res.LoginCode != nil {
		return res, nil
	}

	// Fresh or reconnecting session: wait for visible login progress. The
	// pending level returns as soon as a code exists or the session connects.
	if _, err := s.manager.AwaitReady(ctx, id, sessions.WaitPending, s.cfg.LoginBudget); err != nil {
		return nil, err
	}
	st, err := s.manager.Status(ctx, id)
	if err != nil {
		return nil, err
	}
	return &sessions.InitResult{
		State:            st.State,
		LoginCode:        st.LoginCode,
		AlreadyConnected: st.State == sessions.StateConnected,
	}, nil
}

// Reinitialize forces a fresh login flow unless the session is connected.
func (s *Service) Reinitialize(ctx context.Context, rawTenant any) (*sessions.InitResult, error) {
	ctx, id, err := s.resolve(ctx, rawTenant, "reinitialize")
	if err != nil {
		return nil, err
	}
	return s.manager.Reinitialize(ctx, id)
}

// SessionStatus reports the tenant's session state.
func (s *Service) SessionStatus(ctx context.Context, rawTenant any) (*sessions.Status, error) {
	ctx, id, err := s.resolve(ctx, rawTenant, "status")
	if err != nil {
		return nil, err
	}
	return s.manager.Status(ctx, id)
}

// StopSession releases the in-memory session, keeping durable login data.
func (s *Service) StopSession(ctx context.Context, rawTenant any) error {
	ctx, id, err := s.resolve(ctx, rawTenant, "stop")
	if err != nil {
		return err
	}
	return s.manager.Stop(ctx, id)
}

// RestartSession stops and re-initializes the tenant's session.
func (s *Service) RestartSession(ctx context.Context, rawTenant any) (*sessions.InitResult, error) {
	ctx, id, err := s.resolve(ctx, rawTenant, "restart")
	if err != nil {
		return nil, err
	}
	return s.manager.Restart(ctx, id)
}

// DeleteSession tears the session down and erases durable login data.
func (s *Service) DeleteSession(ctx context.Context, rawTenant any) error {
	ctx, id, err := s.resolve(ctx, rawTenant, "delete")
	if err != nil {
		return err
	}
	return s.manager.Delete(ctx, id)
}

// --- messaging ---

// SendText delivers one text message, waiting up to the unattended budget
// for a connected session.
func (s *Service) SendText(ctx context.Context, rawTenant any, recipient, text string) (*driver.SendResult, error) {
	ctx, id, err := s.resolve(ctx, rawTenant, "send_text")
	if err != nil {
		return nil, err
	}
	if text == "" {
		return nil, dispatch.ErrEmptyPayload
	}
	canon, err := s.canonicalRecipient(recipient)
	if err != nil {
		return nil, err
	}
	h, err := s.manager.AwaitReady(ctx, id, sessions.WaitConnected, s.cfg.ReadyBudget)
	if err != nil {
		return nil, err
	}
	res, err := h.SendText(ctx, canon, text)
	if err != nil {
		return nil, fmt.Errorf("send text to %s: %w: %w", canon, ErrUpstream, err)
	}
	return res, nil
}

// SendAttachment delivers one staged attachment with an optional caption.
// The staged file is deleted once the send attempt concludes, whether or not
// it succeeded.
func (s *Service) SendAttachment(ctx context.Context, rawTenant any, recipient, stagedPath, mimeType, filename, caption string) (*driver.SendResult, error) {
	ctx, id, err := s.resolve(ctx, rawTenant, "send_attachment")
	if err != nil {
		return nil, err
	}
	defer s.media.CleanupOutgoing(stagedPath)

	canon, err := s.canonicalRecipient(recipient)
	if err != nil {
		return nil, err
	}
	payload, err := s.readStaged(stagedPath, mimeType, filename)
	if err != nil {
		return nil, err
	}
	h, err := s.manager.AwaitReady(ctx, id, sessions.WaitConnected, s.cfg.ReadyBudget)
	if err != nil {
		return nil, err
	}
	res, err := h.SendMedia(ctx, canon, *payload, caption)
	if err != nil {
		return nil, fmt.Errorf("send attachment to %s: %w: %w", canon, ErrUpstream, err)
	}
	return res, nil
}

// BulkResult is the outcome of a bulk submission: exactly one field is set.
type BulkResult struct {
	// Report is present when the batch ran to completion in the foreground.
	Report *dispatch.Report `json:"report,omitempty"`
	// Accepted is present when the batch detached into the background.
	Accepted *BulkAccepted `json:"accepted,omitempty"`
}

// BulkAccepted is the immediate acknowledgement for a detached batch.
type BulkAccepted struct {
	JobID      string        `json:"jobId"`
	Recipients int           `json:"recipients"`
	Estimate   time.Duration `json:"estimate"`
}

// BulkSendText fans a text payload out over a recipient list.
func (s *Service) BulkSendText(ctx context.Context, rawTenant any, recipients []string, text string, delay time.Duration) (*BulkResult, error) {
	ctx, id, err := s.resolve(ctx, rawTenant, "bulk_send_text")
	if err != nil {
		return nil, err
	}
	return s.bulk(ctx, id, dispatch.Request{
		Tenant:     id,
		Recipients: recipients,
		Text:       text,
		Delay:      delay,
	})
}

// BulkSendAttachment fans a staged attachment out over a recipient list. The
// staged file is deleted when the batch finishes, in either execution mode.
func (s *Service) BulkSendAttachment(ctx context.Context, rawTenant any, recipients []string, stagedPath, mimeType, filename, caption string, delay time.Duration) (*BulkResult, error) {
	ctx, id, err := s.resolve(ctx, rawTenant, "bulk_send_attachment")
	if err != nil {
		s.media.CleanupOutgoing(stagedPath)
		return nil, err
	}
	payload, err := s.readStaged(stagedPath, mimeType, filename)
	if err != nil {
		s.media.CleanupOutgoing(stagedPath)
		return nil, err
	}
	return s.bulk(ctx, id, dispatch.Request{
		Tenant:     id,
		Recipients: recipients,
		Media:      payload,
		Caption:    caption,
		Delay:      delay,
		Cleanup:    func() { s.media.CleanupOutgoing(stagedPath) },
	})
}

func (s *Service) bulk(ctx context.Context, id tenant.ID, req dispatch.Request) (*BulkResult, error) {
	h, err := s.manager.AwaitReady(ctx, id, sessions.WaitConnected, s.cfg.ReadyBudget)
	if err != nil {
		if req.Cleanup != nil {
			req.Cleanup()
		}
		return nil, err
	}
	report, job, err := s.dispatcher.Submit(ctx, h, req)
	if err != nil {
		// Submit runs Cleanup only once a batch starts; a rejected request
		// still owes the staged file its deletion.
		if req.Cleanup != nil {
			req.Cleanup()
		}
		return nil, err
	}
	if job != nil {
		ctx = logctx.WithJobData(ctx, &logctx.JobData{JobID: job.ID, Recipients: job.Total})
		s.log.InfoContext(ctx, "bulk batch running in background")
		return &BulkResult{Accepted: &BulkAccepted{
			JobID:      job.ID,
			Recipients: job.Total,
			Estimate:   job.Estimate,
		}}, nil
	}
	return &BulkResult{Report: report}, nil
}

// BulkJobStatus polls a background batch's persisted progress.
func (s *Service) BulkJobStatus(ctx context.Context, rawTenant any, jobID string) (*dispatch.JobSnapshot, error) {
	ctx, id, err := s.resolve(ctx, rawTenant, "bulk_job_status")
	if err != nil {
		return nil, err
	}
	return s.dispatcher.JobStatus(ctx, id, jobID)
}

// --- conversation history ---

// ListConversations lists the tenant's conversations, optionally filtered by
// a name substring. It tolerates a session still pending a login scan only
// at the driver's discretion; readiness here requires connected.
func (s *Service) ListConversations(ctx context.Context, rawTenant any, nameFilter string) ([]driver.Conversation, error) {
	ctx, id, err := s.resolve(ctx, rawTenant, "list_conversations")
	if err != nil {
		return nil, err
	}
	h, err := s.manager.AwaitReady(ctx, id, sessions.WaitConnected, s.cfg.ReadyBudget)
	if err != nil {
		return nil, err
	}
	return s.chats.ListConversations(ctx, h, nameFilter)
}

// FetchMessages returns a conversation's recent history with opted-in media
// extracted to public URLs.
func (s *Service) FetchMessages(ctx context.Context, rawTenant any, conversationID string, limit int, include chats.IncludeFlags, sender string) ([]chats.MessageView, error) {
	ctx, id, err := s.resolve(ctx, rawTenant, "fetch_messages")
	if err != nil {
		return nil, err
	}
	h, err := s.manager.AwaitReady(ctx, id, sessions.WaitConnected, s.cfg.ReadyBudget)
	if err != nil {
		return nil, err
	}
	return s.chats.FetchMessages(ctx, h, conversationID, limit, include, sender)
}

// --- helpers ---

func (s *Service) canonicalRecipient(raw string) (string, error) {
	canon, ok := dispatch.NormalizeRecipient(raw, s.cfg.CountryCode, s.cfg.DomainSuffix)
	if !ok {
		return "", fmt.Errorf("%w: %q; expected international form like %s3578883 or a local mobile like 3578883",
			ErrBadRecipient, raw, s.cfg.CountryCode)
	}
	return canon, nil
}

func (s *Service) readStaged(path, mimeType, filename string) (*driver.Media, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: staged attachment path required", ErrBadAttachment)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read staged attachment: %v", ErrBadAttachment, err)
	}
	return &driver.Media{MimeType: mimeType, Filename: filename, Data: data}, nil
}

var (
	// ErrBadRecipient is a validation failure for a recipient that cannot be
	// normalized into international form.
	ErrBadRecipient = errors.New("invalid recipient")
	// ErrBadAttachment is a validation failure for a missing or unreadable
	// staged attachment.
	ErrBadAttachment = errors.New("invalid attachment")
	// ErrUpstream marks a failure raised by the driver itself; the driver's
	// message is preserved in the wrapped chain for diagnostics.
	ErrUpstream = errors.New("driver operation failed")
)
