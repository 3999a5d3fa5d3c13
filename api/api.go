// Package api exposes the orderflow engine over HTTP: the payment-provider
// webhook endpoint plus a few operational routes.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/cleanhouse123/orderflow"
	"github.com/cleanhouse123/orderflow/id"
	"github.com/cleanhouse123/orderflow/webhook"
)

// MaxWebhookBytes caps the size of a webhook body.
const MaxWebhookBytes = 1 << 20

// Handler serves the orderflow HTTP surface.
type Handler struct {
	engine *orderflow.Engine
	logger *slog.Logger
	router chi.Router
}

// New builds the router. A nil logger uses slog.Default.
func New(eng *orderflow.Engine, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{engine: eng, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", h.health)
	r.Post("/webhooks/payments", h.paymentWebhook)
	r.Route("/internal", func(r chi.Router) {
		r.Post("/schedules/run", h.runSchedules)
		r.Get("/webhooks", h.listWebhookEvents)
	})

	h.router = r
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// Mount attaches the handler under prefix on a parent chi router.
func (h *Handler) Mount(parent chi.Router, prefix string) {
	if prefix == "" || prefix == "/" {
		parent.Mount("/", h)
		return
	}
	parent.Mount(prefix, h)
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Store().Ping(r.Context()); err != nil {
		h.logger.Error("health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// paymentWebhook answers 200 for every delivery the engine can classify,
// including duplicates and unknown payments, so the provider stops
// retrying. Store failures answer 5xx and are redelivered.
func (h *Handler) paymentWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxWebhookBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, err)
			return
		}
		writeError(w, http.StatusBadRequest, err)
		return
	}

	res, err := h.engine.HandleWebhook(r.Context(), body)
	if err != nil {
		status := orderflow.HTTPStatus(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("webhook failed",
				"request_id", middleware.GetReqID(r.Context()),
				"error", err,
			)
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) runSchedules(w http.ResponseWriter, r *http.Request) {
	report, err := h.engine.ProcessSchedules(r.Context())
	if err != nil {
		h.logger.Error("scheduler pass failed", "error", err)
		writeError(w, orderflow.HTTPStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) listWebhookEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	paymentID, err := id.ParseOptional(q.Get("payment_id"), id.PrefixPayment)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	limit, err := intParam(q.Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	offset, err := intParam(q.Get("offset"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	events, err := h.engine.WebhookEvents(r.Context(), webhook.ListOpts{
		PaymentID: paymentID,
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		writeError(w, orderflow.HTTPStatus(err), err)
		return
	}
	if events == nil {
		events = []*webhook.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

func intParam(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, errors.New("orderflow: invalid integer parameter " + strconv.Quote(s))
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // client went away
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
