package http

import (
	"net/http"
	"strconv"
	"strings"
)

type categoryCreateRequest struct {
	Name     string `json:"name"`
	Level    int    `json:"level"`
	ParentID *int64 `json:"parent_id"`
}

type categoryRenameRequest struct {
	Name string `json:"name"`
}

type categoryReparentRequest struct {
	ParentID *int64 `json:"parent_id"`
}

type categoryMergeRequest struct {
	SourceID     int64 `json:"source_id"`
	TargetID     int64 `json:"target_id"`
	DeleteSource bool  `json:"delete_source"`
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	return id, err == nil && id > 0
}

func (s *Server) handleCategoryList(w http.ResponseWriter, r *http.Request) {
	snap, err := s.taxonomy.Snapshot(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, snap.Flatten())
}

func (s *Server) handleCategoryCreate(w http.ResponseWriter, r *http.Request) {
	var req categoryCreateRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	cat, err := s.taxonomy.Create(r.Context(), req.Name, req.Level, req.ParentID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondData(w, http.StatusCreated, cat)
}

func (s *Server) handleCategoryTree(w http.ResponseWriter, r *http.Request) {
	tree, err := s.taxonomy.Tree(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, tree)
}

func (s *Server) handleCategoryStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := s.taxonomy.Statistics(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, stats)
}

func (s *Server) handleCategoryUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid category id")
		return
	}
	var req categoryRenameRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	cat, err := s.taxonomy.Rename(r.Context(), id, req.Name)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, cat)
}

func (s *Server) handleCategoryReparent(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid category id")
		return
	}
	var req categoryReparentRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	cat, err := s.taxonomy.Reparent(r.Context(), id, req.ParentID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, cat)
}

func (s *Server) handleCategoryDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid category id")
		return
	}

	cascade := strings.EqualFold(r.URL.Query().Get("cascade"), "true")
	if cascade {
		deleted, err := s.taxonomy.CascadeDelete(r.Context(), id)
		if err != nil {
			respondServiceError(w, r, err)
			return
		}
		respondData(w, http.StatusOK, struct {
			DeletedCount int `json:"deleted_count"`
		}{deleted})
		return
	}

	if err := s.taxonomy.Delete(r.Context(), id); err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondMessage(w, http.StatusOK, "category deleted")
}

func (s *Server) handleCategoryMerge(w http.ResponseWriter, r *http.Request) {
	var req categoryMergeRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.SourceID < 1 || req.TargetID < 1 {
		respondError(w, http.StatusBadRequest, "source_id and target_id are required")
		return
	}
	report, err := s.taxonomy.Merge(r.Context(), req.SourceID, req.TargetID, req.DeleteSource)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, report)
}
