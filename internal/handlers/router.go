package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/adiga-code/SimConnect/internal/notify"
	"github.com/adiga-code/SimConnect/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func NewRouter(
	authService service.AuthService,
	orderService service.OrderService,
	webhookService service.WebhookService,
	hub *notify.Hub,
	heartbeat time.Duration,
) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	authHandler := &AuthHandler{authService: authService}
	orderHandler := &OrderHandler{orderService: orderService}
	webhookHandler := &WebhookHandler{webhookService: webhookService}
	eventsHandler := &EventsHandler{hub: hub, heartbeat: heartbeat}

	r.Post("/api/user/register", authHandler.RegisterUser)
	r.Post("/api/user/login", authHandler.AuthUser)

	// Vendors do not authenticate; the pipeline itself validates payloads.
	r.Post("/api/webhook/sms/{vendor}", webhookHandler.IngestWebhook)

	r.Handle("/metrics", promhttp.Handler())

	authRequiredGroup := r.Group(nil)
	authRequiredGroup.Use(authHandler.Auth)
	authRequiredGroup.Post("/api/orders", orderHandler.CreateOrder)
	authRequiredGroup.Get("/api/orders", orderHandler.GetOrders)
	authRequiredGroup.Get("/api/orders/{orderID}", orderHandler.GetOrder)
	authRequiredGroup.Delete("/api/orders/{orderID}", orderHandler.CancelOrder)
	authRequiredGroup.Get("/api/orders/{orderID}/messages", orderHandler.GetOrderMessages)
	authRequiredGroup.Get("/api/user/balance", orderHandler.GetBalance)
	authRequiredGroup.Get("/api/events", eventsHandler.Stream)

	r.NotFound(func(writer http.ResponseWriter, request *http.Request) {
		http.Error(writer, "Wrong request", http.StatusBadRequest)
	})

	r.MethodNotAllowed(func(writer http.ResponseWriter, request *http.Request) {
		http.Error(writer, "Method not allowed", http.StatusBadRequest)
	})
	return r
}

func unmarshalRequest(writer http.ResponseWriter, req *http.Request, v any) bool {
	body, err := io.ReadAll(req.Body)
	if err != nil {
		http.Error(writer, err.Error(), http.StatusBadRequest)
		return false
	}
	if len(body) == 0 {
		http.Error(writer, "Request body is required", http.StatusBadRequest)
		return false
	}
	err = json.Unmarshal(body, v)
	if err != nil {
		http.Error(writer, "Failed to parse request body", http.StatusBadRequest)
		return false
	}
	return true
}

func marshalResponse(writer http.ResponseWriter, status int, response any) {
	respJSON, err := json.Marshal(response)
	if err != nil {
		zap.L().Error("error while serializing response", zap.Error(err))
		http.Error(writer, "Internal server error", http.StatusInternalServerError)
		return
	}
	writer.Header().Set("content-type", "application/json")
	writer.WriteHeader(status)
	writer.Write(respJSON)
}
