package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"waflow/internal/constants"
	apperrors "waflow/internal/errors"
	"waflow/internal/flowgraph"
	"waflow/internal/middleware"
	"waflow/internal/models"
	"waflow/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

const maxRequestBodyBytes = 1 << 20

type FlowStore interface {
	SaveFlow(ctx context.Context, flow *models.Flow) error
	GetFlow(ctx context.Context, id string) (*models.Flow, error)
}

type Server struct {
	router      *mux.Router
	logger      *logrus.Logger
	dispatcher  *service.Dispatcher
	flows       FlowStore
	validate    *validator.Validate
	verifyToken string
	port        int
	server      *http.Server
}

func NewServer(cfg *models.Config, dispatcher *service.Dispatcher, flows FlowStore, logger *logrus.Logger) *Server {
	s := &Server{
		router:      mux.NewRouter(),
		logger:      logger,
		dispatcher:  dispatcher,
		flows:       flows,
		validate:    validator.New(),
		verifyToken: cfg.Server.VerifyToken,
		port:        cfg.Server.Port,
	}

	s.router.Use(middleware.Observability(logger))
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth()).Methods(http.MethodGet)

	s.router.HandleFunc("/meta/webhook", s.handleWebhookVerification()).Methods(http.MethodGet)
	s.router.HandleFunc("/meta/webhook", s.handleWebhook()).Methods(http.MethodPost)

	flows := s.router.PathPrefix("/flows").Subrouter()
	flows.HandleFunc("", s.handleCreateFlow()).Methods(http.MethodPost)
	flows.HandleFunc("/{flowId}", s.handleGetFlow()).Methods(http.MethodGet)
	flows.HandleFunc("/{flowId}", s.handleUpdateFlow()).Methods(http.MethodPut)
	flows.HandleFunc("/{flowId}/trigger", s.handleTriggerFlow()).Methods(http.MethodPost)
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      s.router,
		ReadTimeout:  constants.DefaultServerReadTimeoutSec * time.Second,
		WriteTimeout: constants.DefaultServerWriteTimeoutSec * time.Second,
		IdleTimeout:  constants.DefaultServerIdleTimeoutSec * time.Second,
	}

	s.logger.Infof("Starting server on port %d", s.port)
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// handleWebhookVerification answers Meta's GET challenge handshake
func (s *Server) handleWebhookVerification() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		mode := query.Get("hub.mode")
		token := query.Get("hub.verify_token")
		challenge := query.Get("hub.challenge")

		echo, ok := service.VerifyWebhook(s.verifyToken, mode, token, challenge)
		if !ok {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		if echo == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(echo)); err != nil {
			s.logger.WithError(err).Warn("Failed to write webhook challenge")
		}
	}
}

// handleWebhook accepts Meta event deliveries. The event is acknowledged
// with 200 even when individual sessions fail; only malformed payloads are
// rejected.
func (s *Server) handleWebhook() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var envelope models.MetaWebhookEnvelope
		if err := decodeJSONBody(w, r, &envelope); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{
				"success": false,
				"error":   "malformed webhook payload",
			})
			return
		}

		s.dispatcher.HandleWebhook(r.Context(), &envelope)
		writeJSON(w, http.StatusOK, map[string]string{"status": "received"})
	}
}

func (s *Server) handleTriggerFlow() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flowID := mux.Vars(r)["flowId"]

		var req service.ManualTriggerRequest
		if err := decodeJSONBody(w, r, &req); err != nil {
			writeTriggerError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := s.validate.Struct(&req); err != nil {
			writeTriggerError(w, http.StatusBadRequest, "from is required")
			return
		}

		result, err := s.dispatcher.TriggerFlow(r.Context(), flowID, req)
		if err != nil {
			status := apperrors.HTTPStatusCode(err)
			writeTriggerError(w, status, apperrors.GetUserMessage(err))
			return
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success":   true,
			"flowId":    result.FlowID,
			"contactId": result.ContactID,
			"sessionId": result.SessionID,
		})
	}
}

type flowRequest struct {
	Name       string              `json:"name" validate:"required,min=1"`
	Trigger    string              `json:"trigger"`
	Status     string              `json:"status"`
	Channel    string              `json:"channel"`
	Definition json.RawMessage     `json:"definition"`
	MetaFlow   models.MetaFlowInfo `json:"metaFlow"`
}

func (s *Server) handleCreateFlow() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get("X-User-ID")
		if userID == "" {
			writeError(w, http.StatusUnauthorized, "missing X-User-ID header")
			return
		}

		flow, ok := s.decodeFlowRequest(w, r, &models.Flow{UserID: userID})
		if !ok {
			return
		}
		if err := s.flows.SaveFlow(r.Context(), flow); err != nil {
			s.logger.WithError(err).Error("Failed to save flow")
			writeError(w, http.StatusInternalServerError, "failed to save flow")
			return
		}
		writeJSON(w, http.StatusCreated, flow)
	}
}

func (s *Server) handleGetFlow() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get("X-User-ID")
		flow, err := s.flows.GetFlow(r.Context(), mux.Vars(r)["flowId"])
		if err != nil {
			s.logger.WithError(err).Error("Failed to load flow")
			writeError(w, http.StatusInternalServerError, "failed to load flow")
			return
		}
		if flow == nil || (userID != "" && flow.UserID != userID) {
			writeError(w, http.StatusNotFound, "flow not found")
			return
		}
		writeJSON(w, http.StatusOK, flow)
	}
}

func (s *Server) handleUpdateFlow() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get("X-User-ID")
		existing, err := s.flows.GetFlow(r.Context(), mux.Vars(r)["flowId"])
		if err != nil {
			s.logger.WithError(err).Error("Failed to load flow")
			writeError(w, http.StatusInternalServerError, "failed to load flow")
			return
		}
		if existing == nil || (userID != "" && existing.UserID != userID) {
			writeError(w, http.StatusNotFound, "flow not found")
			return
		}

		updated, ok := s.decodeFlowRequest(w, r, existing)
		if !ok {
			return
		}
		if err := s.flows.SaveFlow(r.Context(), updated); err != nil {
			s.logger.WithError(err).Error("Failed to save flow")
			writeError(w, http.StatusInternalServerError, "failed to save flow")
			return
		}
		writeJSON(w, http.StatusOK, updated)
	}
}

// decodeFlowRequest parses and validates a flow payload, passing the
// definition through the sanitizer
func (s *Server) decodeFlowRequest(w http.ResponseWriter, r *http.Request, base *models.Flow) (*models.Flow, bool) {
	var req flowRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return nil, false
	}
	if err := s.validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, "name is required")
		return nil, false
	}

	definition, err := flowgraph.Sanitize(req.Definition)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid flow definition")
		return nil, false
	}

	flow := *base
	flow.Name = req.Name
	flow.Trigger = req.Trigger
	flow.Definition = *definition
	flow.MetaFlow = req.MetaFlow
	if req.Status != "" {
		flow.Status = models.FlowStatus(req.Status)
	}
	if req.Channel != "" {
		flow.Channel = req.Channel
	}
	return &flow, true
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, target interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	return json.NewDecoder(r.Body).Decode(target)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}

func writeTriggerError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{
		"success": false,
		"error":   message,
		"status":  status,
	})
}
