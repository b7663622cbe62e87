package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"paygate/internal/common/api"
	"paygate/internal/payment"
)

// Metrics
var (
	paymentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paygate_payments_total",
		Help: "Payment submissions by final status",
	}, []string{"status"})

	httpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "paygate_http_request_duration_seconds",
		Help:    "Request latency",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"method", "endpoint"})
)

// Handler handles payment HTTP requests
type Handler struct {
	processor *payment.Processor
}

// NewHandler creates a new payment handler
func NewHandler(processor *payment.Processor) *Handler {
	return &Handler{processor: processor}
}

// Routes returns the payment routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/payments", h.CreatePayment)
	r.Get("/payments/{id}", h.GetPayment)

	return r
}

// CreatePayment handles POST /payments
func (h *Handler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpLatency.WithLabelValues("POST", "/payments"))
	defer timer.ObserveDuration()

	var req payment.PaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.BadRequest(w, "invalid request body")
		return
	}

	// Ids are client-supplied for idempotent retries; generate one when
	// the client leaves it to us.
	if req.ID == "" {
		req.ID = ulid.Make().String()
	}

	record, err := h.processor.Submit(r.Context(), &req)
	if err != nil {
		var verr *payment.ValidationError
		if errors.As(err, &verr) {
			api.WriteErrorWithDetails(w, http.StatusUnprocessableEntity,
				api.ErrCodeValidation, "Validation failed", verr.Details())
			return
		}
		api.InternalError(w, "failed to process payment")
		return
	}

	paymentsTotal.WithLabelValues(string(record.Status)).Inc()
	api.WriteData(w, http.StatusOK, record)
}

// GetPayment handles GET /payments/{id}
func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpLatency.WithLabelValues("GET", "/payments/{id}"))
	defer timer.ObserveDuration()

	id := chi.URLParam(r, "id")
	if id == "" {
		api.BadRequest(w, "payment ID required")
		return
	}

	record, err := h.processor.GetStatus(r.Context(), id)
	if err != nil {
		if errors.Is(err, payment.ErrNotFound) {
			api.NotFound(w, "payment not found")
			return
		}
		api.InternalError(w, "failed to get payment")
		return
	}

	api.WriteData(w, http.StatusOK, record)
}
