// health.go — health endpoints.
// /health/live — liveness probe (процесс жив)
// /health/ready — readiness probe (Airtable, Redis при redis-кэше, внешние HTTP-зависимости)
// /metrics — Prometheus метрики
package handlers

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/The-UnknownHacker/groundplane/internal/config"
)

// ReadinessChecker — интерфейс проверки готовности зависимости.
type ReadinessChecker interface {
	// CheckReady возвращает статус ("ok", "degraded", "fail") и сообщение.
	CheckReady() (status string, message string)
}

// DependencyHealth — состояние некритичных зависимостей (service.DephealthService).
type DependencyHealth interface {
	Health() map[string]bool
}

// NamedChecker — проверка с именем для ответа readiness.
type NamedChecker struct {
	Name    string
	Checker ReadinessChecker
}

// HealthHandler — обработчик health endpoints.
type HealthHandler struct {
	checkers    []NamedChecker
	deps        DependencyHealth
	promHandler http.Handler
}

// NewHealthHandler создаёт обработчик health endpoints.
// checkers — критичные зависимости (fail → 503), deps — некритичные
// (недоступность даёт degraded), может быть nil.
func NewHealthHandler(deps DependencyHealth, checkers ...NamedChecker) *HealthHandler {
	return &HealthHandler{
		checkers:    checkers,
		deps:        deps,
		promHandler: promhttp.Handler(),
	}
}

type healthCheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type healthLiveResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
	Service   string `json:"service"`
}

type healthReadyResponse struct {
	Status       string                       `json:"status"`
	Timestamp    string                       `json:"timestamp"`
	Version      string                       `json:"version"`
	Service      string                       `json:"service"`
	Checks       map[string]healthCheckResult `json:"checks"`
	Dependencies map[string]bool              `json:"dependencies,omitempty"`
}

// HealthLive — liveness probe. Возвращает 200 если процесс жив.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthLiveResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   config.Version,
		Service:   "groundplane",
	})
}

// HealthReady — readiness probe.
// Возвращает 200 (ok/degraded) или 503 (fail).
func (h *HealthHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	resp := healthReadyResponse{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   config.Version,
		Service:   "groundplane",
		Checks:    make(map[string]healthCheckResult, len(h.checkers)),
	}

	statuses := make([]string, 0, len(h.checkers)+1)
	for _, c := range h.checkers {
		result := healthCheckResult{Status: "fail", Message: "не инициализирован"}
		if c.Checker != nil {
			status, msg := c.Checker.CheckReady()
			result = healthCheckResult{Status: status, Message: msg}
		}
		resp.Checks[c.Name] = result
		statuses = append(statuses, result.Status)
	}

	if h.deps != nil {
		resp.Dependencies = h.deps.Health()
		if anyDown(resp.Dependencies) {
			statuses = append(statuses, "degraded")
		}
	}

	resp.Status = overallStatus(statuses...)

	status := http.StatusOK
	if resp.Status == "fail" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// GetMetrics — Prometheus метрики.
func (h *HealthHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.promHandler.ServeHTTP(w, r)
}

func anyDown(deps map[string]bool) bool {
	for _, ok := range deps {
		if !ok {
			return true
		}
	}
	return false
}

// overallStatus: хотя бы один fail — fail, хотя бы один degraded — degraded, иначе ok.
func overallStatus(statuses ...string) string {
	hasDegraded := false
	for _, s := range statuses {
		if s == "fail" {
			return "fail"
		}
		if s == "degraded" {
			hasDegraded = true
		}
	}
	if hasDegraded {
		return "degraded"
	}
	return "ok"
}
