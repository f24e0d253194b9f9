package authz

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Aeonia-ai/gaia-sub005/pkg/observability"
)

func TestJanitorRunNow(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	past := time.Now().UTC().Add(-time.Minute)
	if err := store.Grant(ctx, &RoleAssignment{
		UserID: "alice", Role: RoleKBViewer, ContextType: ContextGlobal, ExpiresAt: &past,
	}); err != nil {
		t.Fatalf("Grant failed: %v", err)
	}

	janitor := NewJanitor(store, nil, nil)
	purged, err := janitor.RunNow(ctx)
	if err != nil {
		t.Fatalf("RunNow failed: %v", err)
	}
	if purged != 1 {
		t.Errorf("purged = %d, want 1", purged)
	}
}

func TestJanitorRunMetrics(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	past := time.Now().UTC().Add(-time.Minute)
	if err := store.Grant(ctx, &RoleAssignment{
		UserID: "alice", Role: RoleKBViewer, ContextType: ContextGlobal, ExpiresAt: &past,
	}); err != nil {
		t.Fatalf("Grant failed: %v", err)
	}

	metrics := observability.NewMetrics(prometheus.NewRegistry())
	janitor := NewJanitor(store, nil, metrics)
	janitor.runOnce()

	if got := testutil.ToFloat64(metrics.JanitorRunsTotal.WithLabelValues("ok")); got != 1 {
		t.Errorf("ok runs = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.JanitorPurgedTotal); got != 1 {
		t.Errorf("purged total = %v, want 1", got)
	}
}

func TestJanitorRunMetricsOnFailure(t *testing.T) {
	db := setupTestDB(t)
	db.Close()
	store := NewStore(db, NewLocalGenerations())

	metrics := observability.NewMetrics(prometheus.NewRegistry())
	janitor := NewJanitor(store, nil, metrics)
	janitor.runOnce()

	if got := testutil.ToFloat64(metrics.JanitorRunsTotal.WithLabelValues("error")); got != 1 {
		t.Errorf("error runs = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.JanitorRunsTotal.WithLabelValues("ok")); got != 0 {
		t.Errorf("ok runs = %v, want 0", got)
	}
}

func TestJanitorBadSchedule(t *testing.T) {
	store, _ := setupTestStore(t)
	janitor := NewJanitor(store, nil, nil)
	if err := janitor.Start("not a schedule"); err == nil {
		t.Error("expected error for invalid schedule")
	}
}
