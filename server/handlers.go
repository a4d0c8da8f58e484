package server

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/jonwraymond/ragcache/answer"
	"github.com/jonwraymond/ragcache/cache"
	"github.com/jonwraymond/ragcache/convlog"
	"github.com/jonwraymond/ragcache/observe"
)

const maxBodyBytes = 1 << 20

// maxTTLSeconds is the largest ttl_seconds that converts to a time.Duration
// without overflowing.
const maxTTLSeconds = int64(math.MaxInt64 / int64(time.Second))

// AskRequest is the body of POST /v1/ask.
type AskRequest struct {
	Query      string `json:"query"`
	K          int    `json:"k,omitempty"`
	TTLSeconds int    `json:"ttl_seconds,omitempty"`
	AuxContext string `json:"aux_context,omitempty"`
	// NoCache bypasses the cache entirely.
	NoCache bool `json:"no_cache,omitempty"`
	// ViaVoice is recorded in the conversation log.
	ViaVoice bool `json:"via_voice,omitempty"`
}

// AskResponse is the body of a successful POST /v1/ask.
type AskResponse struct {
	answer.Result
	RequestID string `json:"request_id,omitempty"`
}

// CacheResponse is the body of GET /v1/cache.
type CacheResponse struct {
	cache.Info
	Stats    cache.Stats `json:"stats"`
	HitRatio float64     `json:"hit_ratio"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Stage string `json:"stage,omitempty"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var body AskRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid json"})
		return
	}
	if body.K < 0 || body.TTLSeconds < 0 {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "k and ttl_seconds must not be negative"})
		return
	}
	if int64(body.TTLSeconds) > maxTTLSeconds {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "ttl_seconds out of range"})
		return
	}

	ctx := r.Context()
	req := answer.Request{
		Query:      body.Query,
		K:          body.K,
		TTL:        time.Duration(body.TTLSeconds) * time.Second,
		AuxContext: body.AuxContext,
	}

	var (
		res answer.Result
		err error
	)
	if body.NoCache {
		res, err = s.deps.Answerer.AskUncached(ctx, req)
	} else {
		res, err = s.deps.Answerer.Ask(ctx, req)
	}
	if err != nil {
		s.writeAskError(ctx, w, err)
		return
	}

	if s.deps.History != nil {
		entry := convlog.FromResult(req, res)
		entry.RequestID = observe.RequestIDFromContext(ctx)
		entry.ViaVoice = body.ViaVoice
		if _, lerr := s.deps.History.Log(ctx, entry); lerr != nil {
			s.deps.Logger.Warn(ctx, "conversation log write failed", observe.F("error", lerr.Error()))
		}
	}

	writeJSON(w, http.StatusOK, AskResponse{Result: res, RequestID: observe.RequestIDFromContext(ctx)})
}

func (s *Server) writeAskError(ctx context.Context, w http.ResponseWriter, err error) {
	stage := string(answer.StageOf(err))
	switch {
	case errors.Is(err, answer.ErrEmptyQuery), errors.Is(err, answer.ErrInvalidQuery):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case errors.Is(err, context.DeadlineExceeded):
		writeJSON(w, http.StatusGatewayTimeout, ErrorResponse{Error: "request timed out", Stage: stage})
	case errors.Is(err, context.Canceled):
		// client went away; nothing useful to send
		w.WriteHeader(499)
	case errors.Is(err, answer.ErrRetrieval):
		writeJSON(w, http.StatusBadGateway, ErrorResponse{Error: "retrieval failed", Stage: stage})
	case errors.Is(err, answer.ErrGeneration):
		writeJSON(w, http.StatusBadGateway, ErrorResponse{Error: "generation failed", Stage: stage})
	default:
		s.deps.Logger.Error(ctx, "ask failed", observe.F("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}
}

func (s *Server) handleCacheInfo(w http.ResponseWriter, _ *http.Request) {
	stats := s.deps.Cache.Stats()
	writeJSON(w, http.StatusOK, CacheResponse{
		Info:     s.deps.Cache.Info(),
		Stats:    stats,
		HitRatio: stats.HitRatio(),
	})
}

func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	s.deps.Cache.Clear(r.Context())
	s.deps.Logger.Info(r.Context(), "cache cleared")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := convlog.DefaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "limit must be between 1 and 500"})
			return
		}
		limit = n
	}
	entries, err := s.deps.History.Recent(r.Context(), limit)
	if err != nil {
		s.deps.Logger.Error(r.Context(), "history read failed", observe.F("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "history unavailable"})
		return
	}
	if entries == nil {
		entries = []convlog.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
