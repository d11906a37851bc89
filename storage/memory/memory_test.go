package memory

import (
	"context"
	"testing"
	"time"

	"github.com/rfakhoury/wagate/storage"
)

func TestSetGetRoundTrip(t *testing.T) {
	s, err := New(16)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()
	ctx := context.Background()

	if err := s.Set(ctx, "snapshot", []byte("v1"), storage.WithTenantJob("alice", "job-1")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	item, err := s.Get(ctx, "snapshot", storage.WithTenantJob("alice", "job-1"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if item == nil || string(item.Data) != "v1" {
		t.Fatalf("Get = %+v, want v1", item)
	}
}

func TestNamespaceIsolation(t *testing.T) {
	s, _ := New(16)
	defer s.Close()
	ctx := context.Background()

	_ = s.Set(ctx, "snapshot", []byte("alice"), storage.WithTenant("alice"))
	_ = s.Set(ctx, "snapshot", []byte("bob"), storage.WithTenant("bob"))

	item, _ := s.Get(ctx, "snapshot", storage.WithTenant("alice"))
	if item == nil || string(item.Data) != "alice" {
		t.Fatalf("tenant namespaces bleed: %+v", item)
	}
	if item, _ := s.Get(ctx, "snapshot"); item != nil {
		t.Fatal("global namespace sees tenant-scoped key")
	}
}

func TestTTLExpiry(t *testing.T) {
	s, _ := New(16)
	defer s.Close()
	ctx := context.Background()

	_ = s.Set(ctx, "k", []byte("v"), storage.WithTTL(20*time.Millisecond))
	if item, _ := s.Get(ctx, "k"); item == nil {
		t.Fatal("item expired immediately")
	}
	time.Sleep(30 * time.Millisecond)
	if item, _ := s.Get(ctx, "k"); item != nil {
		t.Fatalf("item survived TTL: %+v", item)
	}
}

func TestNamespaceDelete(t *testing.T) {
	s, _ := New(16)
	defer s.Close()
	ctx := context.Background()

	_ = s.Set(ctx, "a", []byte("1"), storage.WithTenantJob("alice", "job-1"))
	_ = s.Set(ctx, "b", []byte("2"), storage.WithTenantJob("alice", "job-1"))
	_ = s.Set(ctx, "a", []byte("3"), storage.WithTenantJob("alice", "job-2"))

	if err := s.Delete(ctx, storage.WithTenantJob("alice", "job-1")); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if item, _ := s.Get(ctx, "a", storage.WithTenantJob("alice", "job-1")); item != nil {
		t.Fatal("job-1 entry survived namespace delete")
	}
	if item, _ := s.Get(ctx, "a", storage.WithTenantJob("alice", "job-2")); item == nil {
		t.Fatal("job-2 entry removed by job-1 delete")
	}
}
