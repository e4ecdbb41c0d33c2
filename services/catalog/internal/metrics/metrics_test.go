package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/example/title-ratings/services/catalog/internal/store"
)

func TestObserve(t *testing.T) {
	m := New()
	m.ObserveSync(SyncCreated)
	m.ObserveSync(SyncCreated)
	m.ObserveExternalRequest(store.KindTVShow, "ok")
	m.ObserveFind("byRating", 5*time.Millisecond)

	if got := testutil.ToFloat64(m.SyncItems.WithLabelValues(SyncCreated)); got != 2 {
		t.Fatalf("expected 2 created, got %v", got)
	}
	if got := testutil.ToFloat64(m.ExternalRequests.WithLabelValues("TVShow", "ok")); got != 1 {
		t.Fatalf("expected 1 request, got %v", got)
	}
	if got := testutil.CollectAndCount(m.FindDuration); got != 1 {
		t.Fatalf("expected 1 histogram series, got %d", got)
	}
}

func TestNilMetricsAreNoop(t *testing.T) {
	var m *Metrics
	m.ObserveSync(SyncFailed)
	m.ObserveExternalRequest(store.KindMovie, "ok")
	m.ObserveFind("byTitle", time.Second)
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := New()
	m.ObserveSync(SyncUpdated)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `catalog_sync_items_total{result="updated"} 1`) {
		t.Fatalf("expected sync counter in output, got:\n%s", body)
	}
}
