package api

import (
	"net/http"
	"time"
)

type healthResponse struct {
	Status    string         `json:"status"`
	Timestamp string         `json:"timestamp"`
	Services  healthServices `json:"services"`
}

type healthServices struct {
	Database    string `json:"database"`
	Projections int    `json:"projections"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbStatus := "connected"
	if s.DB == nil || s.DB.Ping(r.Context()) != nil {
		dbStatus = "disconnected"
	}

	projections := 0
	if s.Growth != nil {
		projections = s.Growth.Len()
	}

	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Services:  healthServices{Database: dbStatus, Projections: projections},
	})
}
