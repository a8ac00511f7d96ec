package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/antibyte/espresso/pkg/auth"
	"github.com/antibyte/espresso/pkg/configuration"
	"github.com/antibyte/espresso/pkg/logger"
	"github.com/antibyte/espresso/pkg/store"
)

// maxRunsPage caps the limit parameter of GET /api/runs.
const maxRunsPage = 500

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn(logger.AreaServer, "failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// storeError maps store errors to HTTP statuses.
func storeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrProgramNotFound), errors.Is(err, store.ErrRunNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrInvalidName):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		logger.Error(logger.AreaDatabase, "%v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) handleListPrograms(w http.ResponseWriter, r *http.Request) {
	programs, err := s.db.Programs.List()
	if err != nil {
		storeError(w, err)
		return
	}
	if programs == nil {
		programs = []store.ProgramInfo{}
	}
	writeJSON(w, http.StatusOK, programs)
}

func (s *Server) handleGetProgram(w http.ResponseWriter, r *http.Request) {
	source, err := s.db.Programs.Source(r.PathValue("name"))
	if err != nil {
		storeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, source)
}

func (s *Server) handlePutProgram(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, int64(maxProgramSize())))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "program too large")
			return
		}
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	if err := s.db.Programs.Save(name, string(body)); err != nil {
		storeError(w, err)
		return
	}
	logger.Info(logger.AreaProgram, "program %s saved by session %s", name, auth.SessionIDFromContext(r.Context()))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteProgram(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := s.db.Programs.Delete(name); err != nil {
		storeError(w, err)
		return
	}
	logger.Info(logger.AreaProgram, "program %s deleted by session %s", name, auth.SessionIDFromContext(r.Context()))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := configuration.GetInt("Server", "runs_page_size", 20)
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	if limit > maxRunsPage {
		limit = maxRunsPage
	}

	runs, err := s.db.Runs.Recent(limit)
	if err != nil {
		storeError(w, err)
		return
	}
	if runs == nil {
		runs = []*store.RunRecord{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	rec, err := s.db.Runs.Get(r.PathValue("id"))
	if err != nil {
		storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
