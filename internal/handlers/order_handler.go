package handlers

import (
	"errors"
	"net/http"

	"github.com/adiga-code/SimConnect/internal"
	"github.com/adiga-code/SimConnect/internal/service"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type OrderHandler struct {
	orderService service.OrderService
}

type CreateOrderRequest struct {
	CountryID string `json:"country_id"`
	ServiceID string `json:"service_id"`
}

type CancelOrderResponse struct {
	Cancelled bool `json:"cancelled"`
}

func (o *OrderHandler) CreateOrder(writer http.ResponseWriter, req *http.Request) {
	var createReq CreateOrderRequest
	if !unmarshalRequest(writer, req, &createReq) {
		return
	}
	if createReq.CountryID == "" || createReq.ServiceID == "" {
		http.Error(writer, "country_id and service_id are required", http.StatusBadRequest)
		return
	}
	userID := GetUserIDFromContext(req.Context())
	order, err := o.orderService.CreateOrder(req.Context(), userID, createReq.CountryID, createReq.ServiceID)
	switch {
	case errors.Is(err, service.ErrCountryNotFound) || errors.Is(err, service.ErrServiceNotFound):
		http.Error(writer, err.Error(), http.StatusNotFound)
		return
	case errors.Is(err, service.ErrUnavailable):
		http.Error(writer, err.Error(), http.StatusConflict)
		return
	case errors.Is(err, service.ErrInsufficientFunds):
		http.Error(writer, err.Error(), http.StatusPaymentRequired)
		return
	case errors.Is(err, service.ErrProvider):
		http.Error(writer, err.Error(), http.StatusBadGateway)
		return
	case err != nil:
		zap.L().Error("create order error", zap.Error(err))
		http.Error(writer, "Internal server error", http.StatusInternalServerError)
		return
	}
	marshalResponse(writer, http.StatusCreated, order)
}

func (o *OrderHandler) GetOrders(writer http.ResponseWriter, req *http.Request) {
	userID := GetUserIDFromContext(req.Context())
	orders, err := o.orderService.GetUserOrders(req.Context(), userID)
	if err != nil {
		zap.L().Error("get orders error", zap.Error(err))
		http.Error(writer, "Internal server error", http.StatusInternalServerError)
		return
	}
	if len(orders) == 0 {
		writer.WriteHeader(http.StatusNoContent)
		return
	}
	marshalResponse(writer, http.StatusOK, orders)
}

func (o *OrderHandler) GetOrder(writer http.ResponseWriter, req *http.Request) {
	userID := GetUserIDFromContext(req.Context())
	orderID := internal.OrderID(chi.URLParam(req, "orderID"))
	order, err := o.orderService.GetOrder(req.Context(), orderID, userID)
	if errors.Is(err, service.ErrOrderNotFound) {
		http.Error(writer, err.Error(), http.StatusNotFound)
		return
	} else if err != nil {
		zap.L().Error("get order error", zap.Error(err))
		http.Error(writer, "Internal server error", http.StatusInternalServerError)
		return
	}
	marshalResponse(writer, http.StatusOK, order)
}

func (o *OrderHandler) CancelOrder(writer http.ResponseWriter, req *http.Request) {
	userID := GetUserIDFromContext(req.Context())
	orderID := internal.OrderID(chi.URLParam(req, "orderID"))
	cancelled, err := o.orderService.CancelOrder(req.Context(), orderID, userID)
	if errors.Is(err, service.ErrOrderNotFound) {
		http.Error(writer, err.Error(), http.StatusNotFound)
		return
	} else if err != nil {
		zap.L().Error("cancel order error", zap.Error(err))
		http.Error(writer, "Internal server error", http.StatusInternalServerError)
		return
	}
	status := http.StatusOK
	if !cancelled {
		// Order already left the pending state, nothing was refunded.
		status = http.StatusConflict
	}
	marshalResponse(writer, status, CancelOrderResponse{Cancelled: cancelled})
}

func (o *OrderHandler) GetOrderMessages(writer http.ResponseWriter, req *http.Request) {
	userID := GetUserIDFromContext(req.Context())
	orderID := internal.OrderID(chi.URLParam(req, "orderID"))
	messages, err := o.orderService.GetOrderMessages(req.Context(), orderID, userID)
	if errors.Is(err, service.ErrOrderNotFound) {
		http.Error(writer, err.Error(), http.StatusNotFound)
		return
	} else if err != nil {
		zap.L().Error("get order messages error", zap.Error(err))
		http.Error(writer, "Internal server error", http.StatusInternalServerError)
		return
	}
	if len(messages) == 0 {
		writer.WriteHeader(http.StatusNoContent)
		return
	}
	marshalResponse(writer, http.StatusOK, messages)
}

func (o *OrderHandler) GetBalance(writer http.ResponseWriter, req *http.Request) {
	userID := GetUserIDFromContext(req.Context())
	balance, err := o.orderService.GetBalance(req.Context(), userID)
	if err != nil {
		zap.L().Error("get balance error", zap.Error(err))
		http.Error(writer, "Internal server error", http.StatusInternalServerError)
		return
	}
	marshalResponse(writer, http.StatusOK, balance)
}
