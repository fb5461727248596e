package web

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.engine.Status()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(status); err != nil {
		s.logger.Error("Failed to encode status", zap.Error(err))
	}
}

func (s *Server) handleSlots(w http.ResponseWriter, r *http.Request) {
	slots := s.engine.OpenSlots()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(slots); err != nil {
		s.logger.Error("Failed to encode slots", zap.Error(err))
	}
}
