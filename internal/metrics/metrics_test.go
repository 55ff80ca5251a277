package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCanonicalPath(t *testing.T) {
	assert.Equal(t, "/api/v1/user/:id/balance", canonicalPath("/api/v1/user/6f1c2d4e-8a9b-4c3d-9e0f-1a2b3c4d5e6f/balance"))
	assert.Equal(t, "/api/v1/user/transfer", canonicalPath("/api/v1/user/transfer"))
	assert.Equal(t, "/health", canonicalPath("/health"))
}

func TestRecordOperation(t *testing.T) {
	before := testutil.ToFloat64(ledgerOperations.WithLabelValues("transfer", "ok"))
	RecordOperation("transfer", "ok", time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(ledgerOperations.WithLabelValues("transfer", "ok")))
}

func TestInstrumentHandlerRecordsStatus(t *testing.T) {
	h := InstrumentHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	before := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/brew", "418"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/brew", nil))
	assert.Equal(t, before+1, testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/brew", "418")))
}
