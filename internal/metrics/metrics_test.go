package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// findMetric は名前とラベルが一致するメトリクスを返す。
func findMetric(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) *dto.Metric {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if labelsMatch(m, labels) {
				return m
			}
		}
	}
	t.Fatalf("%s %v metric not found", name, labels)
	return nil
}

func labelsMatch(m *dto.Metric, want map[string]string) bool {
	got := make(map[string]string)
	for _, lp := range m.GetLabel() {
		got[lp.GetName()] = lp.GetValue()
	}
	for k, v := range want {
		if got[k] != v {
			return false
		}
	}
	return true
}

func TestRecordAPIRequest(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordAPIRequest(http.MethodGet, 200, 120*time.Millisecond)
	c.RecordAPIRequest(http.MethodGet, 200, 80*time.Millisecond)
	c.RecordAPIRequest(http.MethodDelete, 0, time.Second)

	m := findMetric(t, reg, "pressdesk_api_requests_total", map[string]string{"method": "GET", "status": "200"})
	if v := m.GetCounter().GetValue(); v != 2 {
		t.Errorf("GET 200 = %v, want 2", v)
	}
	m = findMetric(t, reg, "pressdesk_api_requests_total", map[string]string{"method": "DELETE", "status": "0"})
	if v := m.GetCounter().GetValue(); v != 1 {
		t.Errorf("DELETE 0 = %v, want 1", v)
	}
	h := findMetric(t, reg, "pressdesk_api_request_duration_seconds", nil)
	if h.GetHistogram().GetSampleCount() != 3 {
		t.Errorf("sample count = %d, want 3", h.GetHistogram().GetSampleCount())
	}
}

func TestRecordStoreError(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordStoreError("blog", "delete")

	m := findMetric(t, reg, "pressdesk_store_errors_total", map[string]string{"kind": "blog", "action": "delete"})
	if v := m.GetCounter().GetValue(); v != 1 {
		t.Errorf("store errors = %v, want 1", v)
	}
}

func TestDashboardMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.SetDashboardCount("users", 10)
	c.SetDashboardCount("users", 12)
	c.RecordDashboardFallback("roles")

	if v := findMetric(t, reg, "pressdesk_dashboard_count", map[string]string{"metric": "users"}).GetGauge().GetValue(); v != 12 {
		t.Errorf("dashboard users = %v, want 12", v)
	}
	if v := findMetric(t, reg, "pressdesk_dashboard_fallback_total", map[string]string{"metric": "roles"}).GetCounter().GetValue(); v != 1 {
		t.Errorf("fallback roles = %v, want 1", v)
	}
}

func TestChatMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordAutoReply()
	c.SetOnlineUsers(4)

	if v := findMetric(t, reg, "pressdesk_chat_auto_replies_total", nil).GetCounter().GetValue(); v != 1 {
		t.Errorf("auto replies = %v, want 1", v)
	}
	if v := findMetric(t, reg, "pressdesk_chat_online_users", nil).GetGauge().GetValue(); v != 4 {
		t.Errorf("online users = %v, want 4", v)
	}
}

func TestNewCollector_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCollector(reg)

	defer func() {
		if recover() == nil {
			t.Error("同じレジストリへの二重登録はpanicするべき")
		}
	}()
	NewCollector(reg)
}

func TestHandler_ServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordStoreError("job", "publish")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	Handler(reg).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), `pressdesk_store_errors_total{action="publish",kind="job"} 1`) {
		t.Errorf("メトリクスが出力されていない:\n%s", w.Body.String())
	}
}
