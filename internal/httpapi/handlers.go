package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"

	"postsched/internal/posts"
	logx "postsched/pkg/logx"
)

type healthResponse struct {
	Status    string `json:"status"`
	GoVersion string `json:"go_version"`
	Uptime    string `json:"uptime"`
	Scheduler string `json:"scheduler"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	sched := "unavailable"
	if s.status != nil {
		if s.status.Snapshot().Running {
			sched = "running"
		} else {
			sched = "stopped"
		}
	}
	respondOK(w, RequestIDFromContext(r.Context()), healthResponse{
		Status:    "healthy",
		GoVersion: runtime.Version(),
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		Scheduler: sched,
	})
}

func (s *Server) handleSchedulerStatus(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	if s.status == nil {
		respondError(w, reqID, http.StatusServiceUnavailable, "unavailable", "scheduler not configured")
		return
	}
	respondOK(w, reqID, s.status.Snapshot())
}

func (s *Server) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	owner, _ := OwnerFromContext(r.Context())
	var in posts.CreateInput
	if !decodeBody(w, r, reqID, &in) {
		return
	}
	p, err := s.posts.Create(r.Context(), owner, in)
	if err != nil {
		s.respondServiceError(w, reqID, err)
		return
	}
	respondCreated(w, reqID, p)
}

func (s *Server) handleListPosts(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	owner, _ := OwnerFromContext(r.Context())
	list, err := s.posts.List(r.Context(), owner)
	if err != nil {
		s.respondServiceError(w, reqID, err)
		return
	}
	respondOK(w, reqID, list)
}

func (s *Server) handleGetPost(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	owner, _ := OwnerFromContext(r.Context())
	p, err := s.posts.Get(r.Context(), owner, chi.URLParam(r, "id"))
	if err != nil {
		s.respondServiceError(w, reqID, err)
		return
	}
	respondOK(w, reqID, p)
}

func (s *Server) handleUpdatePost(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	owner, _ := OwnerFromContext(r.Context())
	var in posts.UpdateInput
	if !decodeBody(w, r, reqID, &in) {
		return
	}
	p, err := s.posts.Update(r.Context(), owner, chi.URLParam(r, "id"), in)
	if err != nil {
		s.respondServiceError(w, reqID, err)
		return
	}
	respondOK(w, reqID, p)
}

func (s *Server) handleCancelPost(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	owner, _ := OwnerFromContext(r.Context())
	id := chi.URLParam(r, "id")
	if err := s.posts.Cancel(r.Context(), owner, id); err != nil {
		s.respondServiceError(w, reqID, err)
		return
	}
	respondOK(w, reqID, map[string]string{"id": id, "message": "post cancelled"})
}

func (s *Server) handleLinkAccount(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	owner, _ := OwnerFromContext(r.Context())
	var in posts.LinkInput
	if !decodeBody(w, r, reqID, &in) {
		return
	}
	a, err := s.posts.LinkAccount(r.Context(), owner, in)
	if err != nil {
		s.respondServiceError(w, reqID, err)
		return
	}
	respondCreated(w, reqID, a)
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	owner, _ := OwnerFromContext(r.Context())
	list, err := s.posts.ListAccounts(r.Context(), owner)
	if err != nil {
		s.respondServiceError(w, reqID, err)
		return
	}
	respondOK(w, reqID, list)
}

func (s *Server) handleUnlinkAccount(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	owner, _ := OwnerFromContext(r.Context())
	id := chi.URLParam(r, "id")
	if err := s.posts.UnlinkAccount(r.Context(), owner, id); err != nil {
		s.respondServiceError(w, reqID, err)
		return
	}
	respondOK(w, reqID, map[string]string{"id": id, "message": "social account unlinked"})
}

func decodeBody(w http.ResponseWriter, r *http.Request, reqID string, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		respondError(w, reqID, http.StatusBadRequest, "invalid_body", err.Error())
		return false
	}
	return true
}

func (s *Server) respondServiceError(w http.ResponseWriter, reqID string, err error) {
	switch {
	case errors.Is(err, posts.ErrNotFound):
		respondError(w, reqID, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, posts.ErrNotInFuture),
		errors.Is(err, posts.ErrEmptyContent),
		errors.Is(err, posts.ErrUnsupportedPlatform),
		errors.Is(err, posts.ErrMissingToken):
		respondError(w, reqID, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, posts.ErrNotEditable),
		errors.Is(err, posts.ErrAlreadyLinked),
		errors.Is(err, posts.ErrAccountInUse):
		respondError(w, reqID, http.StatusConflict, "conflict", err.Error())
	default:
		s.log.Error("request failed", logx.Err(err))
		respondError(w, reqID, http.StatusInternalServerError, "internal", "internal error")
	}
}
