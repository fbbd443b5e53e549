package server

import (
	"net/http"
	"time"
)

type healthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

type statsResponse struct {
	ActiveDownloads    int64   `json:"active_downloads"`
	CompletedDownloads int64   `json:"completed_downloads"`
	FailedDownloads    int64   `json:"failed_downloads"`
	SuccessRate        float64 `json:"success_rate"`
	Uptime             string  `json:"uptime"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		writeDetail(w, http.StatusMethodNotAllowed, "Method Not Allowed")
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "healthy", Service: ServiceName})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	completed := s.stats.completed.Load()
	failed := s.stats.failed.Load()
	writeJSON(w, http.StatusOK, statsResponse{
		ActiveDownloads:    s.stats.active.Load(),
		CompletedDownloads: completed,
		FailedDownloads:    failed,
		SuccessRate:        successRate(completed, failed),
		Uptime:             time.Since(s.started).Round(time.Second).String(),
	})
}

func successRate(completed, failed int64) float64 {
	total := completed + failed
	if total == 0 {
		return 0
	}
	return float64(completed) / float64(total)
}
