package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHandlerExposesRecordedMetrics(t *testing.T) {
	RecordHTTPRequest(http.MethodPost, "/webhooks/firebase/user-created", 200, 5*time.Millisecond)
	RecordDelivery("user-created", "ok")
	RecordRateLimited()
	SetRateLimitKeys(2)
	RecordDownstreamCall("user-created", "ok", time.Millisecond)
	RecordSecretReload(true)
	UpdateDBStats(1, 0)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	for _, name := range []string{
		"authhook_http_requests_total",
		"authhook_webhook_deliveries_total",
		"authhook_rate_limited_total",
		"authhook_rate_limit_keys",
		"authhook_downstream_duration_seconds",
		"authhook_secret_reloads_total",
		"authhook_db_connections_open",
	} {
		require.Contains(t, body, name)
	}
	require.Contains(t, body, `endpoint="user-created",outcome="ok"`)
}
