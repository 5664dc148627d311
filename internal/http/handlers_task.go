package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/SilentInt/HamsterWallet/internal/core"
	"github.com/SilentInt/HamsterWallet/internal/recat"
)

type taskStartRequest struct {
	BatchSize int `json:"batch_size"`
}

type taskApplyRequest struct {
	Scope      string `json:"scope"`
	BatchIndex int    `json:"batch_index"`
}

type taskApplyPartialRequest struct {
	ItemIDs []int64 `json:"item_ids"`
}

func (s *Server) handleTaskStatus(w http.ResponseWriter, r *http.Request) {
	respondData(w, http.StatusOK, s.recat.Status())
}

func (s *Server) handleTaskStart(w http.ResponseWriter, r *http.Request) {
	var req taskStartRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := s.recat.Start(r.Context(), req.BatchSize); err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondData(w, http.StatusAccepted, s.recat.Status())
}

func (s *Server) handleTaskRestart(w http.ResponseWriter, r *http.Request) {
	var req taskStartRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := s.recat.Restart(r.Context(), req.BatchSize); err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondData(w, http.StatusAccepted, s.recat.Status())
}

func (s *Server) handleTaskContinue(w http.ResponseWriter, r *http.Request) {
	var req taskStartRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := s.recat.Continue(r.Context(), req.BatchSize); err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondData(w, http.StatusAccepted, s.recat.Status())
}

func (s *Server) handleTaskStop(w http.ResponseWriter, r *http.Request) {
	if err := s.recat.Stop(r.Context()); err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, s.recat.Status())
}

func (s *Server) handleTaskClear(w http.ResponseWriter, r *http.Request) {
	if err := s.recat.Clear(r.Context()); err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondMessage(w, http.StatusOK, "task state cleared")
}

func (s *Server) handleTaskResults(w http.ResponseWriter, r *http.Request) {
	results, snap, err := s.recat.Results()
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, struct {
		Task    any `json:"task"`
		Results any `json:"results"`
	}{snap, results})
}

func (s *Server) handleTaskSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.recat.Summary()
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, summary)
}

func (s *Server) handleTaskPreview(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := strings.TrimSpace(r.URL.Query().Get("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	preview, totalUnapplied, err := s.recat.PreviewUnapplied(limit)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, struct {
		Preview        any `json:"preview"`
		TotalUnapplied int `json:"total_unapplied"`
	}{preview, totalUnapplied})
}

func (s *Server) handleTaskApply(w http.ResponseWriter, r *http.Request) {
	req := taskApplyRequest{Scope: string(recat.ApplyAll)}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	scope := recat.ApplyScope(req.Scope)
	switch scope {
	case recat.ApplyAll:
	case recat.ApplyBatch:
		if req.BatchIndex < 0 {
			respondError(w, http.StatusBadRequest, "batch_index must not be negative")
			return
		}
	default:
		respondError(w, http.StatusBadRequest, "scope must be \"all\" or \"batch\"")
		return
	}

	if err := s.recat.Apply(r.Context(), scope, req.BatchIndex); err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondData(w, http.StatusAccepted, s.recat.Status())
}

func (s *Server) handleTaskApplyPartial(w http.ResponseWriter, r *http.Request) {
	var req taskApplyPartialRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	report, err := s.recat.ApplyPartial(r.Context(), req.ItemIDs)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, report)
}

func (s *Server) handleTaskEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := strings.TrimSpace(r.URL.Query().Get("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	records, err := s.history.ListRecentTaskEvents(r.Context(), limit)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if records == nil {
		records = []core.TaskEventRecord{}
	}
	respondData(w, http.StatusOK, records)
}
