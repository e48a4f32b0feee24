package prometheus

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	authority "github.com/axisboard/authority"
)

type fakeSource struct {
	snapshot authority.MetricsSnapshot
	dropped  uint64
}

func (f *fakeSource) MetricsSnapshot() authority.MetricsSnapshot { return f.snapshot }
func (f *fakeSource) AuditDropped() uint64                       { return f.dropped }

func newFakeSource() *fakeSource {
	return &fakeSource{
		snapshot: authority.MetricsSnapshot{
			Counters: map[authority.MetricID]uint64{
				authority.MetricIssueSuccess:   42,
				authority.MetricReplayDetected: 3,
			},
			Histograms: map[authority.MetricID][]uint64{
				authority.MetricValidateLatency: {5, 2, 0, 0, 1, 0, 0, 0},
			},
		},
		dropped: 7,
	}
}

func TestRenderCounters(t *testing.T) {
	out := NewExporterFromSource(newFakeSource()).Render()

	assert.Contains(t, out, "# TYPE authority_issue_success_total counter")
	assert.Contains(t, out, "authority_issue_success_total 42")
	assert.Contains(t, out, "authority_replay_detected_total 3")
	assert.Contains(t, out, "authority_rotate_success_total 0")
	assert.Contains(t, out, "authority_audit_dropped_total 7")
}

func TestRenderHistogramIsCumulative(t *testing.T) {
	out := NewExporterFromSource(newFakeSource()).Render()

	assert.Contains(t, out, "# TYPE authority_validate_latency_seconds histogram")
	assert.Contains(t, out, `authority_validate_latency_seconds_bucket{le="0.005"} 5`)
	assert.Contains(t, out, `authority_validate_latency_seconds_bucket{le="0.01"} 7`)
	assert.Contains(t, out, `authority_validate_latency_seconds_bucket{le="0.1"} 8`)
	assert.Contains(t, out, `authority_validate_latency_seconds_bucket{le="+Inf"} 8`)
	assert.Contains(t, out, "authority_validate_latency_seconds_count 8")
}

func TestRenderEmptySource(t *testing.T) {
	src := &fakeSource{snapshot: authority.MetricsSnapshot{
		Counters:   map[authority.MetricID]uint64{},
		Histograms: map[authority.MetricID][]uint64{},
	}}
	assert.Empty(t, NewExporterFromSource(src).Render())

	var p *Exporter
	assert.Empty(t, p.Render())
}

func TestHandler(t *testing.T) {
	handler := NewExporterFromSource(newFakeSource()).Handler()

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain"))
	assert.Contains(t, rec.Body.String(), "authority_issue_success_total 42")
}
