package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryReport(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		expectError bool
		validate    func(*testing.T, *Report)
	}{
		{
			name:   "Valid report",
			status: http.StatusOK,
			body: `{"cmdline":["xray"],"stats":{
				"inbound":{"entry":{"uplink":100,"downlink":200}},
				"outbound":{"proxy":{"uplink":5,"downlink":7},"direct":{"uplink":1,"downlink":2}}}}`,
			validate: func(t *testing.T, r *Report) {
				assert.Equal(t, Traffic{Uplink: 100, Downlink: 200}, r.Stats.Inbound["entry"])
				assert.Len(t, r.Stats.Outbound, 2)
			},
		},
		{
			name:        "Server error",
			status:      http.StatusInternalServerError,
			body:        `oops`,
			expectError: true,
		},
		{
			name:        "Not JSON",
			status:      http.StatusOK,
			body:        `<html>`,
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/debug/vars", r.URL.Path)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			report, err := QueryReport(context.Background(), srv.Client(), srv.URL+"/debug/vars")
			if tt.expectError {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			tt.validate(t, report)
		})
	}
}

func TestReport_Record(t *testing.T) {
	c := newTestCollector(t)
	report := &Report{Stats: ReportStats{
		Inbound:  map[string]Traffic{"entry": {Uplink: 1, Downlink: 2}},
		Outbound: map[string]Traffic{"proxy": {Uplink: 3, Downlink: 4}},
	}}

	report.Record(c)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.traffic.WithLabelValues("inbound", "entry", "downlink")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.traffic.WithLabelValues("outbound", "proxy", "uplink")))
}

func TestReportURL(t *testing.T) {
	assert.Equal(t, "http://127.0.0.1:4433/debug/vars", ReportURL(4433))
}
