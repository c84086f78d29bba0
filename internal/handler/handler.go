// Package handler содержит HTTP-обработчики API сервиса химчистки.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/laundry-system/internal/middleware"
	"github.com/mmeshcher/laundry-system/internal/model"
	"github.com/mmeshcher/laundry-system/internal/pricelist"
	"github.com/mmeshcher/laundry-system/internal/repository"
	"github.com/mmeshcher/laundry-system/internal/service"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	AuthenticateOperator(login, password string) error
	CreateCustomer(ctx context.Context, in service.CustomerInput) (*model.Customer, error)
	UpdateCustomer(ctx context.Context, id int64, in service.CustomerInput) (*model.Customer, error)
	GetCustomer(ctx context.Context, id int64) (*model.Customer, error)
	ListCustomers(ctx context.Context) ([]model.Customer, error)
	DeleteCustomer(ctx context.Context, id int64) error
	Recharge(ctx context.Context, customerID int64, amount float64) (*service.RechargeResult, error)
	GetRechargesByCustomer(ctx context.Context, customerID int64) ([]model.RechargeRecord, error)
	CreateOrder(ctx context.Context, in service.OrderInput) (*model.Order, error)
	GetOrder(ctx context.Context, id int64) (*model.Order, []model.Clothes, error)
	ListOrders(ctx context.Context, f repository.OrderFilter) ([]model.Order, error)
	UpdateOrderStatus(ctx context.Context, id int64, status model.OrderStatus) error
	DeleteOrder(ctx context.Context, id int64) (float64, error)
	PriceList() []pricelist.Item
	GetReport(ctx context.Context, period model.ReportPeriod, ref time.Time) (*model.Report, error)
}

// Handler реализует HTTP-обработчики API сервиса химчистки.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

// writeError переводит ошибки бизнес-логики в HTTP-статусы. Ошибки валидации
// отдаются с собственным сообщением; частично применённые мутации логируются
// отдельно, поскольку требуют ручной сверки.
func (h *Handler) writeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, repository.ErrCustomerNotFound), errors.Is(err, repository.ErrOrderNotFound):
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	case errors.Is(err, repository.ErrInsufficientBalance):
		http.Error(w, http.StatusText(http.StatusPaymentRequired), http.StatusPaymentRequired)
	case errors.Is(err, repository.ErrInconsistentState):
		h.logger.Error("inconsistent state detected", zap.String("op", op), zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	default:
		h.logger.Error(op+" error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func idParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

type credentialsRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

// Login выполняет аутентификацию оператора и устанавливает cookie.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Login == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.AuthenticateOperator(req.Login, req.Password); err != nil {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	if err := h.authMiddleware.SetAuthCookie(w, req.Login); err != nil {
		h.logger.Error("set auth cookie error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// CreateCustomer создаёт нового клиента.
func (h *Handler) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	var req service.CustomerInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	customer, err := h.service.CreateCustomer(r.Context(), req)
	if err != nil {
		h.writeError(w, "create customer", err)
		return
	}

	h.writeJSON(w, customer)
}

// UpdateCustomer обновляет данные клиента.
func (h *Handler) UpdateCustomer(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req service.CustomerInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	customer, err := h.service.UpdateCustomer(r.Context(), id, req)
	if err != nil {
		h.writeError(w, "update customer", err)
		return
	}

	h.writeJSON(w, customer)
}

// GetCustomer возвращает клиента по идентификатору.
func (h *Handler) GetCustomer(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	customer, err := h.service.GetCustomer(r.Context(), id)
	if err != nil {
		h.writeError(w, "get customer", err)
		return
	}

	h.writeJSON(w, customer)
}

// ListCustomers возвращает список всех клиентов.
func (h *Handler) ListCustomers(w http.ResponseWriter, r *http.Request) {
	customers, err := h.service.ListCustomers(r.Context())
	if err != nil {
		h.writeError(w, "list customers", err)
		return
	}

	if len(customers) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	h.writeJSON(w, customers)
}

// DeleteCustomer удаляет клиента.
func (h *Handler) DeleteCustomer(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.DeleteCustomer(r.Context(), id); err != nil {
		h.writeError(w, "delete customer", err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

type rechargeRequest struct {
	Amount float64 `json:"amount"`
}

// Recharge проводит пополнение баланса клиента с начислением бонуса.
func (h *Handler) Recharge(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req rechargeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	result, err := h.service.Recharge(r.Context(), id, req.Amount)
	if err != nil {
		h.writeError(w, "recharge", err)
		return
	}

	h.writeJSON(w, result)
}

// GetRecharges возвращает историю пополнений клиента.
func (h *Handler) GetRecharges(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	records, err := h.service.GetRechargesByCustomer(r.Context(), id)
	if err != nil {
		h.writeError(w, "get recharges", err)
		return
	}

	if len(records) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	h.writeJSON(w, records)
}

// CreateOrder создаёт новый заказ с вещами.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req service.OrderInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	order, err := h.service.CreateOrder(r.Context(), req)
	if err != nil {
		h.writeError(w, "create order", err)
		return
	}

	h.writeJSON(w, order)
}

type orderDetailsResponse struct {
	model.Order
	Clothes []model.Clothes `json:"clothes"`
}

// GetOrder возвращает заказ вместе с его вещами.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	order, clothes, err := h.service.GetOrder(r.Context(), id)
	if err != nil {
		h.writeError(w, "get order", err)
		return
	}

	h.writeJSON(w, orderDetailsResponse{Order: *order, Clothes: clothes})
}

// ListOrders возвращает заказы по необязательным фильтрам status, pay_type,
// customer_id, from и to (даты в формате 2006-01-02, границы по дням включительно).
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	var f repository.OrderFilter

	q := r.URL.Query()
	f.Status = model.OrderStatus(q.Get("status"))
	f.PayType = model.PayType(q.Get("pay_type"))

	if v := q.Get("customer_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		f.CustomerID = id
	}

	if v := q.Get("from"); v != "" {
		day, err := time.ParseInLocation("2006-01-02", v, time.Local)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		f.From = day
	}

	if v := q.Get("to"); v != "" {
		day, err := time.ParseInLocation("2006-01-02", v, time.Local)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		f.To = day.AddDate(0, 0, 1)
	}

	orders, err := h.service.ListOrders(r.Context(), f)
	if err != nil {
		h.writeError(w, "list orders", err)
		return
	}

	if len(orders) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	h.writeJSON(w, orders)
}

type orderStatusRequest struct {
	Status model.OrderStatus `json:"status"`
}

// UpdateOrderStatus устанавливает статус заказа.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req orderStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.UpdateOrderStatus(r.Context(), id, req.Status); err != nil {
		h.writeError(w, "update order status", err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

type deleteOrderResponse struct {
	Refund float64 `json:"refund"`
}

// DeleteOrder удаляет заказ. Незавершённый предоплатный заказ возвращает
// стоимость на баланс клиента.
func (h *Handler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	refund, err := h.service.DeleteOrder(r.Context(), id)
	if err != nil {
		h.writeError(w, "delete order", err)
		return
	}

	h.writeJSON(w, deleteOrderResponse{Refund: refund})
}

// GetPriceList возвращает прейскурант.
func (h *Handler) GetPriceList(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, h.service.PriceList())
}

// GetDailyReport возвращает отчёт за день. Параметр date в формате 2006-01-02,
// по умолчанию — сегодня.
func (h *Handler) GetDailyReport(w http.ResponseWriter, r *http.Request) {
	ref := time.Now()
	if v := r.URL.Query().Get("date"); v != "" {
		day, err := time.ParseInLocation("2006-01-02", v, time.Local)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		ref = day
	}

	report, err := h.service.GetReport(r.Context(), model.ReportDaily, ref)
	if err != nil {
		h.writeError(w, "daily report", err)
		return
	}

	h.writeJSON(w, report)
}

// GetMonthlyReport возвращает отчёт за месяц. Параметр month в формате 2006-01,
// по умолчанию — текущий месяц.
func (h *Handler) GetMonthlyReport(w http.ResponseWriter, r *http.Request) {
	ref := time.Now()
	if v := r.URL.Query().Get("month"); v != "" {
		month, err := time.ParseInLocation("2006-01", v, time.Local)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		ref = month
	}

	report, err := h.service.GetReport(r.Context(), model.ReportMonthly, ref)
	if err != nil {
		h.writeError(w, "monthly report", err)
		return
	}

	h.writeJSON(w, report)
}
