package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.PageResolved("container", SourceCache)
	m.ObserveLister("list", time.Now(), nil)
	m.Fallback("alice")
	m.StoreError("upsert")
	m.Drained("container", 1, 2)
	m.SetPending("alice", "container", 3)
	m.Reconciled(1, 1)

	if New(nil) != nil {
		t.Error("New(nil) should return nil")
	}
}

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.PageResolved("container", SourceRemote)
	m.PageResolved("container", SourceRemote)
	m.Fallback("alice")
	m.Drained("working_set", 2, 3)
	m.SetPending("alice", "container", 7)
	m.ObserveLister("list", time.Now(), errors.New("boom"))

	if got := promtest.ToFloat64(m.pagesResolved.WithLabelValues("container", SourceRemote)); got != 2 {
		t.Errorf("pages resolved = %v, want 2", got)
	}
	if got := promtest.ToFloat64(m.fallbacks.WithLabelValues("alice")); got != 1 {
		t.Errorf("fallbacks = %v, want 1", got)
	}
	if got := promtest.ToFloat64(m.changesDrained.WithLabelValues("working_set", "updated")); got != 3 {
		t.Errorf("drained updated = %v, want 3", got)
	}
	if got := promtest.ToFloat64(m.pendingChanges.WithLabelValues("alice", "container")); got != 7 {
		t.Errorf("pending = %v, want 7", got)
	}
	if n := promtest.CollectAndCount(m.listerDuration); n != 1 {
		t.Errorf("lister histogram series = %d, want 1", n)
	}
}

func TestServer(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg).PageResolved("working_set", SourceCache)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := NewServer("127.0.0.1:0", reg)
	if err := srv.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	resp, err := http.Get("http://" + srv.Addr() + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if !strings.Contains(string(body), "syncenum_pages_resolved_total") {
		t.Errorf("metrics output missing counter:\n%s", body)
	}
}
