package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"auction-sync/internal/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Record(t *testing.T) {
	t.Parallel()

	m := NewMetrics("test", prometheus.NewRegistry())

	m.RecordEventApplied("bid_placed")
	m.RecordEventApplied("bid_placed")
	m.RecordStaleSnapshot("push")
	m.RecordRESTFallback()
	m.RecordNotification(models.NotificationOutbid)
	m.SetConnectionState(models.ConnectionConnected)

	require.Equal(t, 2.0, testutil.ToFloat64(m.EventsApplied.WithLabelValues("bid_placed")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.StaleSnapshotsDropped.WithLabelValues("push")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.RESTFallbacks))
	require.Equal(t, 1.0, testutil.ToFloat64(m.NotificationsEmitted.WithLabelValues("outbid")))
	require.Equal(t, 2.0, testutil.ToFloat64(m.LiveConnectionState))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	t.Parallel()

	var m *Metrics
	require.NotPanics(t, func() {
		m.RecordEventApplied("x")
		m.RecordCommandFailure("x")
		m.RecordRetry("x")
		m.RecordRequest("x", 0.1)
		m.SetConnectionState(models.ConnectionConnecting)
	})
}

func TestMetrics_Handler(t *testing.T) {
	t.Parallel()

	m := NewMetrics("", nil)
	m.RecordCommandFailure("place_bid")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), `auction_sync_store_command_failures_total{command="place_bid"} 1`))
}
