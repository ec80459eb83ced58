package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	apperrors "github.com/edgard/slackarchive/internal/errors"
	"github.com/edgard/slackarchive/internal/model"
	"github.com/edgard/slackarchive/internal/timeline"
)

const (
	listMaxAge       = 600
	closedPageMaxAge = 3600

	searchLimit = 100
)

type pageResponse struct {
	Page     int             `json:"page"`
	Closed   bool            `json:"closed"`
	StartTS  string          `json:"start_ts"`
	EndTS    *string         `json:"end_ts"`
	Messages []model.Message `json:"messages"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.store.ListUsers(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if users == nil {
		users = []model.User{}
	}
	cacheFor(w, listMaxAge)
	writeJSON(w, http.StatusOK, users)
}

func (s *Server) listChannels(w http.ResponseWriter, r *http.Request) {
	channels, err := s.store.ListChannels(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if channels == nil {
		channels = []model.Channel{}
	}
	cacheFor(w, listMaxAge)
	writeJSON(w, http.StatusOK, channels)
}

func (s *Server) getPage(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	n, err := strconv.Atoi(vars["page"])
	if err != nil || n < 1 {
		s.writeError(w, r, apperrors.NewValidationError("page must be a positive integer", err))
		return
	}

	res, err := s.engine.FetchPage(r.Context(), vars["channel"], n)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := pageResponse{
		Page:     res.Page.Page,
		Closed:   res.Closed(),
		StartTS:  timeline.FormatTimestamp(res.Page.StartTS),
		Messages: res.Messages,
	}
	if res.Page.EndTS != nil {
		end := timeline.FormatTimestamp(*res.Page.EndTS)
		resp.EndTS = &end
	}
	if resp.Messages == nil {
		resp.Messages = []model.Message{}
	}

	// An open page still grows; only closed pages are cacheable.
	if resp.Closed {
		cacheFor(w, closedPageMaxAge)
	} else {
		w.Header().Set("Cache-Control", "no-cache")
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		s.writeError(w, r, apperrors.NewValidationError("query parameter q is required", nil))
		return
	}

	msgs, err := s.store.SearchMessages(r.Context(), q, searchLimit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if msgs == nil {
		msgs = []model.Message{}
	}
	cacheFor(w, listMaxAge)
	writeJSON(w, http.StatusOK, msgs)
}

func (s *Server) resolveTimestamp(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	ts, err := timeline.ParseTimestamp(vars["ts"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	page, err := s.engine.ResolveTimestampToPage(r.Context(), vars["channel"], ts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"page": page})
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("Health check failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	log := zerolog.Ctx(r.Context())
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Msg("Request failed")
	} else {
		log.Debug().Err(err).Int("status", status).Msg("Request rejected")
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Code: apperrors.Code(err)})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, apperrors.ErrPageNotFound), errors.Is(err, apperrors.ErrTargetNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperrors.ErrValidation),
		errors.Is(err, apperrors.ErrInvalidTimestamp),
		errors.Is(err, apperrors.ErrMissingChannel):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func cacheFor(w http.ResponseWriter, seconds int) {
	w.Header().Set("Cache-Control", "public, max-age="+strconv.Itoa(seconds))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
