package api

import (
	"net/http"

	"github.com/seqfabric/batchbridge/internal/model"
)

// jobsResponse is the JSON response for GET /v1/jobs.
type jobsResponse struct {
	Jobs []model.RemoteJobHandle `json:"jobs"`
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, jobsResponse{Jobs: s.tracker.Snapshot()})
}

// statsResponse is the JSON response for GET /v1/stats.
type statsResponse struct {
	Total   int            `json:"total"`
	ByState map[string]int `json:"by_state"`
}

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	stats := s.tracker.Stats()
	total := 0
	for _, n := range stats {
		total += n
	}
	s.writeJSON(w, http.StatusOK, statsResponse{Total: total, ByState: stats})
}
