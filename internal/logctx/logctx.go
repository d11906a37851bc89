// Package logctx enriches slog records with request-scoped gateway context.
// The facade stores tenant, session, and bulk-job data on the context; the
// Handler folds whatever is present into every record emitted under it.
package logctx

import (
	"context"
	"log/slog"
)

type Handler struct {
	slog.Handler
}

func (h Handler) Handle(ctx context.Context, r slog.Record) error {
	if td, ok := ctx.Value(tenantDataKey{}).(*TenantData); ok {
		r.AddAttrs(slog.Group("tenant",
			slog.String("id", td.TenantID),
			slog.String("op", td.Operation),
		))
	}

	if sd, ok := ctx.Value(sessionDataKey{}).(*SessionData); ok {
		r.AddAttrs(slog.Group("sess",
			slog.String("state", sd.State),
			slog.Bool("has_login_code", sd.HasLoginCode),
		))
	}

	if jd, ok := ctx.Value(jobDataKey{}).(*JobData); ok {
		r.AddAttrs(slog.Group("job",
			slog.String("id", jd.JobID),
			slog.Int("recipients", jd.Recipients),
		))
	}

	return h.Handler.Handle(ctx, r)
}

type tenantDataKey struct{}

type TenantData struct {
	TenantID  string
	Operation string
}

func WithTenantData(ctx context.Context, data *TenantData) context.Context {
	return context.WithValue(ctx, tenantDataKey{}, data)
}

type sessionDataKey struct{}

type SessionData struct {
	State        string
	HasLoginCode bool
}

func WithSessionData(ctx context.Context, data *SessionData) context.Context {
	return context.WithValue(ctx, sessionDataKey{}, data)
}

type jobDataKey struct{}

type JobData struct {
	JobID      string
	Recipients int
}

func WithJobData(ctx context.Context, data *JobData) context.Context {
	return context.WithValue(ctx, jobDataKey{}, data)
}
