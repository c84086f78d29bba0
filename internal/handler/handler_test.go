package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/laundry-system/internal/middleware"
	"github.com/mmeshcher/laundry-system/internal/model"
	"github.com/mmeshcher/laundry-system/internal/pricelist"
	"github.com/mmeshcher/laundry-system/internal/repository"
	"github.com/mmeshcher/laundry-system/internal/service"
)

type stubService struct {
	authErr error

	customer    *model.Customer
	customerErr error

	customers    []model.Customer
	customersErr error

	rechargeResult *service.RechargeResult
	rechargeErr    error

	order    *model.Order
	orderErr error

	clothes []model.Clothes

	orders    []model.Order
	ordersErr error

	refund    float64
	deleteErr error

	report    *model.Report
	reportErr error
}

func (s *stubService) AuthenticateOperator(login, password string) error { return s.authErr }

func (s *stubService) CreateCustomer(ctx context.Context, in service.CustomerInput) (*model.Customer, error) {
	return s.customer, s.customerErr
}

func (s *stubService) UpdateCustomer(ctx context.Context, id int64, in service.CustomerInput) (*model.Customer, error) {
	return s.customer, s.customerErr
}

func (s *stubService) GetCustomer(ctx context.Context, id int64) (*model.Customer, error) {
	return s.customer, s.customerErr
}

func (s *stubService) ListCustomers(ctx context.Context) ([]model.Customer, error) {
	return s.customers, s.customersErr
}

func (s *stubService) DeleteCustomer(ctx context.Context, id int64) error { return s.customerErr }

func (s *stubService) Recharge(ctx context.Context, customerID int64, amount float64) (*service.RechargeResult, error) {
	return s.rechargeResult, s.rechargeErr
}

func (s *stubService) GetRechargesByCustomer(ctx context.Context, customerID int64) ([]model.RechargeRecord, error) {
	return nil, nil
}

func (s *stubService) CreateOrder(ctx context.Context, in service.OrderInput) (*model.Order, error) {
	return s.order, s.orderErr
}

func (s *stubService) GetOrder(ctx context.Context, id int64) (*model.Order, []model.Clothes, error) {
	return s.order, s.clothes, s.orderErr
}

func (s *stubService) ListOrders(ctx context.Context, f repository.OrderFilter) ([]model.Order, error) {
	return s.orders, s.ordersErr
}

func (s *stubService) UpdateOrderStatus(ctx context.Context, id int64, status model.OrderStatus) error {
	return s.orderErr
}

func (s *stubService) DeleteOrder(ctx context.Context, id int64) (float64, error) {
	return s.refund, s.deleteErr
}

func (s *stubService) PriceList() []pricelist.Item {
	return pricelist.New().Items()
}

func (s *stubService) GetReport(ctx context.Context, period model.ReportPeriod, ref time.Time) (*model.Report, error) {
	return s.report, s.reportErr
}

func newTestHandler(t *testing.T, svc Service) *Handler {
	t.Helper()

	logger, err := zap.NewDevelopment()
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	auth := middleware.NewAuthMiddleware("test-secret")

	return NewHandler(svc, logger, auth)
}

func authorizedRequest(t *testing.T, h *Handler, method, target string, body []byte) *http.Request {
	t.Helper()

	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, bytes.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}

	rec := httptest.NewRecorder()
	if err := h.authMiddleware.SetAuthCookie(rec, "admin"); err != nil {
		t.Fatalf("set auth cookie: %v", err)
	}
	req.AddCookie(rec.Result().Cookies()[0])

	return req
}

func TestLogin_Success(t *testing.T) {
	h := newTestHandler(t, &stubService{})

	body, _ := json.Marshal(credentialsRequest{Login: "admin", Password: "admin1234"})
	req := httptest.NewRequest(http.MethodPost, "/api/login", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.Login(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	if len(res.Cookies()) == 0 {
		t.Fatalf("expected auth cookie to be set")
	}
}

func TestLogin_Unauthorized(t *testing.T) {
	h := newTestHandler(t, &stubService{authErr: service.ErrBadCredentials})

	body, _ := json.Marshal(credentialsRequest{Login: "admin", Password: "wrong"})
	req := httptest.NewRequest(http.MethodPost, "/api/login", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.Login(rec, req)

	if rec.Result().StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusUnauthorized)
	}
}

func TestRecharge_ValidationError(t *testing.T) {
	h := newTestHandler(t, &stubService{rechargeErr: service.ErrAmountNotMultiple})
	router := h.SetupRouter()

	body, _ := json.Marshal(rechargeRequest{Amount: 150})
	req := authorizedRequest(t, h, http.MethodPost, "/api/customers/1/recharge", body)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusBadRequest)
	}
}

func TestRecharge_Success(t *testing.T) {
	h := newTestHandler(t, &stubService{
		rechargeResult: &service.RechargeResult{Balance: 540, GiftAmount: 40},
	})
	router := h.SetupRouter()

	body, _ := json.Marshal(rechargeRequest{Amount: 200})
	req := authorizedRequest(t, h, http.MethodPost, "/api/customers/1/recharge", body)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	var got service.RechargeResult
	if err := json.NewDecoder(res.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.Balance != 540 || got.GiftAmount != 40 {
		t.Fatalf("unexpected result: %+v", got)
	}
}

func TestRecharge_CustomerNotFound(t *testing.T) {
	h := newTestHandler(t, &stubService{rechargeErr: repository.ErrCustomerNotFound})
	router := h.SetupRouter()

	body, _ := json.Marshal(rechargeRequest{Amount: 100})
	req := authorizedRequest(t, h, http.MethodPost, "/api/customers/99/recharge", body)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusNotFound)
	}
}

func TestCreateOrder_InsufficientBalance(t *testing.T) {
	h := newTestHandler(t, &stubService{orderErr: repository.ErrInsufficientBalance})
	router := h.SetupRouter()

	body, _ := json.Marshal(service.OrderInput{
		CustomerID: 1,
		PayType:    model.PayTypePrepaid,
		Items:      []service.OrderItem{{Kind: "鞋", Price: 15}},
	})
	req := authorizedRequest(t, h, http.MethodPost, "/api/orders", body)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusPaymentRequired {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusPaymentRequired)
	}
}

func TestListOrders_NoContent(t *testing.T) {
	h := newTestHandler(t, &stubService{})
	router := h.SetupRouter()

	req := authorizedRequest(t, h, http.MethodGet, "/api/orders", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusNoContent)
	}
}

func TestListOrders_Unauthorized(t *testing.T) {
	h := newTestHandler(t, &stubService{})
	router := h.SetupRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusUnauthorized)
	}
}

func TestDeleteOrder_ReturnsRefund(t *testing.T) {
	h := newTestHandler(t, &stubService{refund: 35})
	router := h.SetupRouter()

	req := authorizedRequest(t, h, http.MethodDelete, "/api/orders/5", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	var got deleteOrderResponse
	if err := json.NewDecoder(res.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.Refund != 35 {
		t.Fatalf("refund = %v, want 35", got.Refund)
	}
}

func TestGetDailyReport_JSONResponse(t *testing.T) {
	h := newTestHandler(t, &stubService{
		report: &model.Report{
			Label:          "2025-03-14",
			CashIncome:     150,
			RechargeIncome: 100,
			TotalIncome:    250,
			PendingOrders:  2,
		},
	})
	router := h.SetupRouter()

	req := authorizedRequest(t, h, http.MethodGet, "/api/reports/daily?date=2025-03-14", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	if ct := res.Header.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content-type = %q, want application/json", ct)
	}

	var got model.Report
	if err := json.NewDecoder(res.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.TotalIncome != 250 || got.Label != "2025-03-14" {
		t.Fatalf("unexpected report: %+v", got)
	}
}

func TestGetDailyReport_BadDate(t *testing.T) {
	h := newTestHandler(t, &stubService{})
	router := h.SetupRouter()

	req := authorizedRequest(t, h, http.MethodGet, "/api/reports/daily?date=14-03-2025", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusBadRequest)
	}
}

func TestGetPriceList(t *testing.T) {
	h := newTestHandler(t, &stubService{})
	router := h.SetupRouter()

	req := authorizedRequest(t, h, http.MethodGet, "/api/pricelist", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	var items []pricelist.Item
	if err := json.NewDecoder(res.Body).Decode(&items); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(items) == 0 {
		t.Fatalf("expected non-empty price list")
	}
}
