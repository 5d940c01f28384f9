package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"

	"xray-profile/internal/domain"
)

// Report is the stats section of the engine's expvar endpoint.
type Report struct {
	Stats ReportStats `json:"stats"`
}

type ReportStats struct {
	Inbound  map[string]Traffic `json:"inbound"`
	Outbound map[string]Traffic `json:"outbound"`
}

type Traffic struct {
	Uplink   int64 `json:"uplink"`
	Downlink int64 `json:"downlink"`
}

// ReportURL is where the engine serves counters when the metrics inbound listens on port.
func ReportURL(port int) string {
	return fmt.Sprintf("http://127.0.0.1:%d/debug/vars", port)
}

// QueryReport reads the traffic counters from a running engine.
func QueryReport(ctx context.Context, client *http.Client, url string) (*Report, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to query metrics: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("metrics endpoint returned %s", resp.Status)
	}

	var report Report
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return nil, fmt.Errorf("failed to decode metrics report: %w", err)
	}
	return &report, nil
}

// Record copies every counter of the report into the collector.
func (r *Report) Record(collector domain.MetricsCollector) {
	for _, tag := range sortedKeys(r.Stats.Inbound) {
		t := r.Stats.Inbound[tag]
		collector.RecordTraffic("inbound", tag, t.Uplink, t.Downlink)
	}
	for _, tag := range sortedKeys(r.Stats.Outbound) {
		t := r.Stats.Outbound[tag]
		collector.RecordTraffic("outbound", tag, t.Uplink, t.Downlink)
	}
}

func sortedKeys(m map[string]Traffic) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
