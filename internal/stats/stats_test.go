package stats

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	s := New()
	s.AuthRequest(AuthAccept)
	s.AuthRequest(AuthAccept)
	s.AuthRequest(AuthReject)
	s.AcctRequest("Start")
	s.Dropped("auth", "queue_full")

	assert.Equal(t, 2.0, testutil.ToFloat64(s.authRequests.WithLabelValues(AuthAccept)))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.authRequests.WithLabelValues(AuthReject)))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.acctRequests.WithLabelValues("Start")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.dropped.WithLabelValues("auth", "queue_full")))
}

func TestNilStats(t *testing.T) {
	var s *Stats
	assert.NotPanics(t, func() {
		s.AuthRequest(AuthAccept)
		s.AcctRequest("Stop")
		s.Dropped("acct", "timeout")
		s.Disconnect("ack")
	})
}

func TestHandler(t *testing.T) {
	s := New()
	s.AcctRequest("Interim-Update")

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	assert.True(t, strings.Contains(string(body), `aaa_acct_requests_total{status="Interim-Update"} 1`))
}
