// Package storage defines the snapshot store the gateway uses for state that
// must outlive a single request, such as bulk-dispatch job progress. Backends
// exist for in-process use (storage/memory) and for deployments that want job
// status to survive restarts or be visible across instances (storage/redis).
package storage

import (
	"context"
	"errors"
	"time"
)

// Store is the key/value contract shared by all backends.
type Store interface {
	// Get retrieves the item for key within the namespace selected by opts.
	// A missing or expired key yields (nil, nil); errors are reserved for
	// real backend failures.
	Get(ctx context.Context, key string, opts ...Option) (*Item, error)

	// Set stores data under key within the namespace selected by opts.
	Set(ctx context.Context, key string, data []byte, opts ...Option) error

	// Delete removes data within the selected namespace. With WithKey it
	// removes one entry; without, the entire namespace.
	Delete(ctx context.Context, opts ...Option) error

	// Close releases backend resources.
	Close() error
}

// Item is one stored value with metadata.
type Item struct {
	Data      []byte
	CreatedAt time.Time
	ExpiresAt *time.Time // nil = no expiration
}

// IsExpired reports whether the item's TTL has lapsed.
func (it *Item) IsExpired() bool {
	return it.ExpiresAt != nil && time.Now().After(*it.ExpiresAt)
}

// Option configures a store operation.
type Option func(*Options)

// Options carries the resolved configuration of one operation.
type Options struct {
	Namespace Namespace
	Key       *string
	TTL       *time.Duration
}

// Apply folds opts into a resolved Options value.
func Apply(opts []Option) *Options {
	o := &Options{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Namespace scopes keys. Nil means the global namespace.
type Namespace interface {
	namespace()
}

// TenantNamespace scopes keys to one tenant.
type TenantNamespace struct {
	TenantID string
}

func (TenantNamespace) namespace() {}

// JobNamespace scopes keys to one bulk job of one tenant.
type JobNamespace struct {
	TenantID string
	JobID    string
}

func (JobNamespace) namespace() {}

// WithTenant selects tenant-level scope.
func WithTenant(tenantID string) Option {
	return func(o *Options) { o.Namespace = TenantNamespace{TenantID: tenantID} }
}

// WithTenantJob selects job-level scope.
func WithTenantJob(tenantID, jobID string) Option {
	return func(o *Options) { o.Namespace = JobNamespace{TenantID: tenantID, JobID: jobID} }
}

// WithKey names a specific entry for Delete.
func WithKey(key string) Option {
	return func(o *Options) { o.Key = &key }
}

// WithTTL bounds the entry's lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(o *Options) { o.TTL = &ttl }
}

// ErrInvalidOptions is returned for incompatible option combinations.
var ErrInvalidOptions = errors.New("storage: invalid option combination")
