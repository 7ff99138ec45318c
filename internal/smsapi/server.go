package smsapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/awaistahir/what-to-wear/internal/engine"
	"github.com/awaistahir/what-to-wear/internal/jobs"
	"github.com/awaistahir/what-to-wear/internal/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// FeedbackRecorder stores a negative reply from a phone number
type FeedbackRecorder interface {
	RecordNegative(ctx context.Context, phone string) (*engine.UnallowedPair, error)
}

// Verifier authenticates an inbound webhook request. A nil Verifier accepts all.
type Verifier func(r *http.Request) error

type Server struct {
	feedback FeedbackRecorder
	verify   Verifier
	log      *logger.Logger
}

func NewServer(feedback FeedbackRecorder, verify Verifier, log *logger.Logger) *Server {
	return &Server{
		feedback: feedback,
		verify:   verify,
		log:      log.With("component", "smsapi"),
	}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", s.handleHealth)
	r.Post("/sms", s.handleSMS)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// emptyTwiML acknowledges the message without replying
const emptyTwiML = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`

func (s *Server) handleSMS(w http.ResponseWriter, r *http.Request) {
	log := s.log.With("request_id", middleware.GetReqID(r.Context()))

	if err := r.ParseForm(); err != nil {
		respondError(w, http.StatusBadRequest, "invalid form body")
		return
	}

	if s.verify != nil {
		if err := s.verify(r); err != nil {
			log.Warn("Rejected webhook request", "error", err)
			respondError(w, http.StatusForbidden, "invalid signature")
			return
		}
	}

	from := strings.TrimSpace(r.PostForm.Get("From"))
	body := strings.ToLower(strings.TrimSpace(r.PostForm.Get("Body")))

	if body == "no" && from != "" {
		pair, err := s.feedback.RecordNegative(r.Context(), from)
		switch {
		case errors.Is(err, jobs.ErrUnknownSender), errors.Is(err, jobs.ErrNoRecentOutfit):
			log.Info("Ignoring reply", "reason", err)
		case err != nil:
			log.Error("Recording feedback failed", "error", err)
			respondError(w, http.StatusInternalServerError, "could not record feedback")
			return
		default:
			log.Info("Feedback recorded", "user_id", pair.UserID)
		}
	}

	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(emptyTwiML))
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
