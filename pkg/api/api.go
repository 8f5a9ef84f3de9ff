package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/dmitrymomot/notifykit/pkg/analytics"
	"github.com/dmitrymomot/notifykit/pkg/engine"
	"github.com/dmitrymomot/notifykit/pkg/notification"
	"github.com/dmitrymomot/notifykit/pkg/rules"
	"github.com/dmitrymomot/notifykit/pkg/template"
)

// Server is the HTTP transport over the engine and its stores.
type Server struct {
	engine    *engine.Engine
	rules     rules.Store
	validator *rules.Validator
	reports   *analytics.Aggregator
	log       *slog.Logger
}

// New creates the API server.
func New(eng *engine.Engine, ruleStore rules.Store, validator *rules.Validator, reports *analytics.Aggregator, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		engine:    eng,
		rules:     ruleStore,
		validator: validator,
		reports:   reports,
		log:       log,
	}
}

// Router builds the chi route tree.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Post("/events", s.handleSubmitEvent)
	r.Post("/metrics", s.handleSubmitMetric)

	r.Route("/recipients/{recipientID}", func(r chi.Router) {
		r.Get("/notifications", s.handleListNotifications)
	})

	r.Route("/notifications/{id}", func(r chi.Router) {
		r.Post("/read", s.handleMarkRead)
		r.Post("/acted", s.handleMarkActedUpon)
		r.Post("/cancel", s.handleCancel)
		r.Post("/resubmit", s.handleResubmit)
	})

	r.Route("/rules", func(r chi.Router) {
		r.Get("/", s.handleListRules)
		r.Post("/", s.handleCreateRule)
		r.Get("/{id}", s.handleGetRule)
		r.Put("/{id}", s.handleUpdateRule)
		r.Delete("/{id}", s.handleDeleteRule)
	})

	r.Get("/analytics/report", s.handleReport)
	return r
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		if err := json.NewEncoder(w).Encode(body); err != nil {
			s.log.Error("failed to encode response", "error", err)
		}
	}
}

// respondError maps domain errors onto HTTP statuses: missing records are
// 404, ownership and lifecycle conflicts are 409, validation problems 422.
func (s *Server) respondError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var invalid *notification.InvalidTransitionError

	switch {
	case errors.Is(err, notification.ErrNotFound),
		errors.Is(err, rules.ErrRuleNotFound),
		errors.Is(err, template.ErrTemplateNotFound):
		status = http.StatusNotFound
	case errors.Is(err, engine.ErrNotOwner):
		status = http.StatusForbidden
	case errors.Is(err, engine.ErrAlreadyTerminal),
		errors.Is(err, engine.ErrNotCancelable),
		errors.Is(err, engine.ErrNotFailed),
		errors.As(err, &invalid):
		status = http.StatusConflict
	case errors.Is(err, rules.ErrMissingName),
		errors.Is(err, rules.ErrNoActions),
		errors.Is(err, rules.ErrUnknownConditionKind),
		errors.Is(err, rules.ErrUnknownActionKind),
		errors.Is(err, rules.ErrInvalidCron),
		errors.Is(err, rules.ErrInvalidPattern),
		errors.Is(err, rules.ErrUnknownTemplate),
		errors.Is(err, rules.ErrChannelNotSupported):
		status = http.StatusUnprocessableEntity
	}

	if status == http.StatusInternalServerError {
		s.log.Error("request failed", "error", err)
	}
	s.respond(w, status, errorResponse{Error: err.Error()})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.respond(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return false
	}
	return true
}

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, name))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

type submitEventRequest struct {
	Name       string         `json:"name"`
	Payload    map[string]any `json:"payload,omitempty"`
	Recipients []string       `json:"recipients,omitempty"`
}

type acceptedResponse struct {
	NotificationIDs []uuid.UUID `json:"notification_ids"`
	ActionFailures  []string    `json:"action_failures,omitempty"`
	RenderFailures  []string    `json:"render_failures,omitempty"`
}

func toAcceptedResponse(a engine.Accepted) acceptedResponse {
	resp := acceptedResponse{NotificationIDs: a.NotificationIDs}
	if resp.NotificationIDs == nil {
		resp.NotificationIDs = []uuid.UUID{}
	}
	for _, f := range a.ActionFailures {
		resp.ActionFailures = append(resp.ActionFailures, f.Error())
	}
	for _, f := range a.RenderFailures {
		resp.RenderFailures = append(resp.RenderFailures, f.Error())
	}
	return resp
}

func (s *Server) handleSubmitEvent(w http.ResponseWriter, r *http.Request) {
	var req submitEventRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Name == "" {
		s.respond(w, http.StatusUnprocessableEntity, errorResponse{Error: "event name is required"})
		return
	}

	accepted, err := s.engine.SubmitEvent(r.Context(), req.Name, req.Payload, req.Recipients)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respond(w, http.StatusAccepted, toAcceptedResponse(accepted))
}

type submitMetricRequest struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

func (s *Server) handleSubmitMetric(w http.ResponseWriter, r *http.Request) {
	var req submitMetricRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Name == "" {
		s.respond(w, http.StatusUnprocessableEntity, errorResponse{Error: "metric name is required"})
		return
	}

	accepted, err := s.engine.SubmitMetric(r.Context(), req.Name, req.Value)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respond(w, http.StatusAccepted, toAcceptedResponse(accepted))
}

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	recipientID := chi.URLParam(r, "recipientID")
	q := r.URL.Query()

	filter := notification.Filter{
		OnlyUnread: q.Get("unread") == "true",
	}
	if typ := q.Get("type"); typ != "" {
		filter.Types = []string{typ}
	}
	if limit, err := strconv.Atoi(q.Get("limit")); err == nil && limit > 0 {
		filter.Limit = limit
	}
	if offset, err := strconv.Atoi(q.Get("offset")); err == nil && offset > 0 {
		filter.Offset = offset
	}

	list, err := s.engine.ListForRecipient(r.Context(), recipientID, filter)
	if err != nil {
		s.respondError(w, err)
		return
	}
	if list == nil {
		list = []notification.Notification{}
	}
	s.respond(w, http.StatusOK, list)
}

type recipientRequest struct {
	RecipientID string `json:"recipient_id"`
	Action      string `json:"action,omitempty"`
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		s.respond(w, http.StatusBadRequest, errorResponse{Error: "invalid notification id"})
		return
	}
	var req recipientRequest
	if !s.decode(w, r, &req) {
		return
	}

	if err := s.engine.MarkRead(r.Context(), id, req.RecipientID); err != nil {
		s.respondError(w, err)
		return
	}
	s.respond(w, http.StatusNoContent, nil)
}

func (s *Server) handleMarkActedUpon(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		s.respond(w, http.StatusBadRequest, errorResponse{Error: "invalid notification id"})
		return
	}
	var req recipientRequest
	if !s.decode(w, r, &req) {
		return
	}

	if err := s.engine.MarkActedUpon(r.Context(), id, req.RecipientID, req.Action); err != nil {
		s.respondError(w, err)
		return
	}
	s.respond(w, http.StatusNoContent, nil)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		s.respond(w, http.StatusBadRequest, errorResponse{Error: "invalid notification id"})
		return
	}
	if err := s.engine.Cancel(r.Context(), id); err != nil {
		s.respondError(w, err)
		return
	}
	s.respond(w, http.StatusNoContent, nil)
}

func (s *Server) handleResubmit(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		s.respond(w, http.StatusBadRequest, errorResponse{Error: "invalid notification id"})
		return
	}
	clone, err := s.engine.Resubmit(r.Context(), id)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respond(w, http.StatusCreated, clone)
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	list, err := s.rules.List(r.Context())
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respond(w, http.StatusOK, list)
}

func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var rule rules.Rule
	if !s.decode(w, r, &rule) {
		return
	}
	if err := s.validator.Validate(r.Context(), rule); err != nil {
		s.respondError(w, err)
		return
	}
	created, err := s.rules.Create(r.Context(), rule)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respond(w, http.StatusCreated, created)
}

func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		s.respond(w, http.StatusBadRequest, errorResponse{Error: "invalid rule id"})
		return
	}
	rule, err := s.rules.Get(r.Context(), id)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respond(w, http.StatusOK, rule)
}

func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		s.respond(w, http.StatusBadRequest, errorResponse{Error: "invalid rule id"})
		return
	}
	var rule rules.Rule
	if !s.decode(w, r, &rule) {
		return
	}
	rule.ID = id
	if err := s.validator.Validate(r.Context(), rule); err != nil {
		s.respondError(w, err)
		return
	}
	updated, err := s.rules.Update(r.Context(), rule)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respond(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		s.respond(w, http.StatusBadRequest, errorResponse{Error: "invalid rule id"})
		return
	}
	if err := s.rules.Delete(r.Context(), id); err != nil {
		s.respondError(w, err)
		return
	}
	s.respond(w, http.StatusNoContent, nil)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	report := s.reports.Latest()
	if report == nil {
		// no sweep has run yet, aggregate on demand
		var err error
		report, err = s.reports.Sweep(r.Context(), time.Now())
		if err != nil {
			s.respondError(w, err)
			return
		}
	}
	s.respond(w, http.StatusOK, report)
}
