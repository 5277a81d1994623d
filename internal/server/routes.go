package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	apperrors "github.com/zsiec/framesync/internal/errors"
	"github.com/zsiec/framesync/pkg/version"
)

// maxOffsetMs bounds the manual A/V adjustment.
const maxOffsetMs = 10000

// handleVersion handles the /version endpoint
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "public, max-age=3600")
	s.writeJSON(w, r, http.StatusOK, version.GetInfo())
}

// handlePoolStatus reports occupancy without waiting for the pool lock.
func (s *Server) handlePoolStatus(w http.ResponseWriter, r *http.Request) {
	status, ok := s.pool.BufferStatus()
	if !ok {
		w.Header().Set("Retry-After", "1")
		s.writeError(w, r, apperrors.NewServiceDownError("frame pool status").WithCode("POOL_BUSY"))
		return
	}
	s.writeJSON(w, r, http.StatusOK, status)
}

func (s *Server) handlePoolSnapshot(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, s.pool.Snapshot())
}

func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	if s.sync == nil {
		s.writeError(w, r, apperrors.NewServiceDownError("sync engine"))
		return
	}
	s.writeJSON(w, r, http.StatusOK, s.sync.Stats())
}

// handlePoolReset returns every frame to the free list, or destroys them all
// with destroy=true.
func (s *Server) handlePoolReset(w http.ResponseWriter, r *http.Request) {
	if s.reset == nil {
		s.writeError(w, r, apperrors.NewServiceDownError("pool reset"))
		return
	}

	destroyAll := false
	if v := r.URL.Query().Get("destroy"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			s.writeError(w, r, apperrors.NewValidationError("destroy must be a boolean").WithDetail("destroy", v))
			return
		}
		destroyAll = b
	}

	s.reset(destroyAll)
	s.logger.WithField("destroy_all", destroyAll).Warn("Frame pool reset via debug endpoint")
	s.writeJSON(w, r, http.StatusOK, s.pool.Snapshot())
}

type offsetRequest struct {
	OffsetMs *int64 `json:"offset_ms"`
}

func (s *Server) handleSyncOffset(w http.ResponseWriter, r *http.Request) {
	if s.sync == nil {
		s.writeError(w, r, apperrors.NewServiceDownError("sync engine"))
		return
	}

	var req offsetRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1024)).Decode(&req); err != nil {
		s.writeError(w, r, apperrors.NewValidationError("invalid request body"))
		return
	}
	if req.OffsetMs == nil {
		s.writeError(w, r, apperrors.NewValidationError("offset_ms is required"))
		return
	}
	if *req.OffsetMs > maxOffsetMs || *req.OffsetMs < -maxOffsetMs {
		s.writeError(w, r, apperrors.NewValidationError("offset_ms out of range").
			WithDetail("offset_ms", *req.OffsetMs).
			WithDetail("max", maxOffsetMs))
		return
	}

	s.sync.SetManualOffset(time.Duration(*req.OffsetMs) * time.Millisecond)
	s.writeJSON(w, r, http.StatusOK, s.sync.Stats())
}

// writeJSON is a helper to write JSON responses
func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.WithError(err).WithField("path", r.URL.Path).Error("Failed to encode response")
	}
}

// writeError is a helper to write error responses
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	s.errorHandler.HandleError(w, r, err)
}
