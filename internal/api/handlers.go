package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JakeFAU/contentrelay/internal/content"
	"github.com/JakeFAU/contentrelay/internal/page"
)

const maxBodyBytes = 1 << 20

type pageRequest struct {
	URL             string `json:"url"`
	WaitForSelector string `json:"waitForSelector"`
	TimeoutMs       int64  `json:"timeoutMs"`
}

type socialRequest struct {
	URL string `json:"url"`
}

func (s *Server) getTranscript(w http.ResponseWriter, r *http.Request) {
	if s.deps.Transcripts == nil {
		s.writeError(w, http.StatusNotImplemented, "transcripts not configured")
		return
	}
	videoID := chi.URLParam(r, "videoID")
	res := s.deps.Transcripts.Fetch(r.Context(), videoID, r.URL.Query().Get("lang"))
	s.writeResult(w, res.Success, res.Failure, res)
}

func (s *Server) postPage(w http.ResponseWriter, r *http.Request) {
	if s.deps.Pages == nil {
		s.writeError(w, http.StatusNotImplemented, "pages not configured")
		return
	}
	var req pageRequest
	if !s.decode(w, r, &req) {
		return
	}
	res := s.deps.Pages.Fetch(r.Context(), page.Request{
		URL:             req.URL,
		WaitForSelector: req.WaitForSelector,
		Timeout:         time.Duration(req.TimeoutMs) * time.Millisecond,
	})
	s.writeResult(w, res.Success, res.Failure, res)
}

func (s *Server) postSocial(w http.ResponseWriter, r *http.Request) {
	if s.deps.Social == nil {
		s.writeError(w, http.StatusNotImplemented, "social not configured")
		return
	}
	var req socialRequest
	if !s.decode(w, r, &req) {
		return
	}
	res := s.deps.Social.Fetch(r.Context(), req.URL)
	s.writeResult(w, res.Success, res.Failure, res)
}

func (s *Server) browserStatus(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Browser == nil {
		s.writeError(w, http.StatusNotImplemented, "browser not configured")
		return
	}
	s.writeJSON(w, http.StatusOK, s.deps.Browser.Status())
}

func (s *Server) cacheStats(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Cache == nil {
		s.writeError(w, http.StatusNotImplemented, "cache not configured")
		return
	}
	s.writeJSON(w, http.StatusOK, s.deps.Cache.Stats())
}

// clearCache drops entries under ?prefix=, or everything when no prefix is given.
func (s *Server) clearCache(w http.ResponseWriter, r *http.Request) {
	if s.deps.Cache == nil {
		s.writeError(w, http.StatusNotImplemented, "cache not configured")
		return
	}
	prefix := strings.TrimSpace(r.URL.Query().Get("prefix"))
	var removed int
	if prefix == "" {
		removed = s.deps.Cache.Stats().Size
		s.deps.Cache.Clear()
	} else {
		removed = s.deps.Cache.DeleteByPrefix(prefix)
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"removed": removed, "prefix": prefix})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.writeJSON(w, http.StatusBadRequest, content.Failure{
			Error:     "invalid JSON",
			ErrorType: content.ErrTypeInvalidURL,
		})
		return false
	}
	return true
}

// writeResult sends a result envelope with a status derived from its error type.
func (s *Server) writeResult(w http.ResponseWriter, success bool, failure *content.Failure, payload any) {
	status := http.StatusOK
	if !success {
		kind := content.ErrTypeUnknown
		if failure != nil {
			kind = failure.ErrorType
		}
		status = kind.HTTPStatus()
	}
	s.writeJSON(w, status, payload)
}
