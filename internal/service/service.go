// Package service реализует бизнес-правила сервиса химчистки.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/mmeshcher/laundry-system/internal/model"
	"github.com/mmeshcher/laundry-system/internal/notify"
	"github.com/mmeshcher/laundry-system/internal/pricelist"
	"github.com/mmeshcher/laundry-system/internal/repository"
	"github.com/mmeshcher/laundry-system/internal/validation"
)

// ErrValidation — общая база ошибок валидации входных данных.
// Каждая конкретная ошибка несёт собственное сообщение для пользователя.
var (
	ErrValidation = errors.New("invalid input")

	ErrAmountNotNumber   = fmt.Errorf("%w: recharge amount is not a valid number", ErrValidation)
	ErrAmountNotPositive = fmt.Errorf("%w: recharge amount must be positive", ErrValidation)
	ErrAmountNotMultiple = fmt.Errorf("%w: recharge amount must be a multiple of 100", ErrValidation)
	ErrNameRequired      = fmt.Errorf("%w: customer name is required", ErrValidation)
	ErrNoItems           = fmt.Errorf("%w: order must contain at least one item", ErrValidation)
	ErrItemKindRequired  = fmt.Errorf("%w: item kind is required", ErrValidation)
	ErrItemPriceNegative = fmt.Errorf("%w: item price must not be negative", ErrValidation)
	ErrBadPayType        = fmt.Errorf("%w: unknown pay type", ErrValidation)
	ErrBadOrderStatus    = fmt.Errorf("%w: unknown order status", ErrValidation)
	ErrBadCredentials    = errors.New("invalid credentials")
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	CreateCustomer(ctx context.Context, name, phone, wechat, note string) (int64, error)
	UpdateCustomer(ctx context.Context, id int64, name, phone, wechat, note string) error
	GetCustomer(ctx context.Context, id int64) (*model.Customer, error)
	ListCustomers(ctx context.Context) ([]model.Customer, error)
	DeleteCustomer(ctx context.Context, id int64) error
	CreateRecharge(ctx context.Context, customerID, amountFen, giftFen int64) (int64, error)
	ListRechargesByCustomer(ctx context.Context, customerID int64) ([]model.RechargeRecord, error)
	CreateOrder(ctx context.Context, order repository.NewOrder, items []repository.NewClothes) (int64, error)
	GetOrder(ctx context.Context, id int64) (*model.Order, error)
	GetOrderClothes(ctx context.Context, orderID int64) ([]model.Clothes, error)
	ListOrders(ctx context.Context, f repository.OrderFilter) ([]model.Order, error)
	UpdateOrderStatus(ctx context.Context, id int64, status model.OrderStatus) error
	DeleteOrder(ctx context.Context, id int64) (int64, error)
	SumCashIncome(ctx context.Context, from, to time.Time) (int64, error)
	SumRechargeIncome(ctx context.Context, from, to time.Time) (int64, error)
	CountPendingOrders(ctx context.Context) (int, error)
	GetOrdersForPickupNotify(ctx context.Context, limit int) ([]repository.PickupOrder, error)
	MarkOrderNotified(ctx context.Context, orderID int64) error
}

// Service содержит бизнес-логику сервиса химчистки.
type Service struct {
	repo         Repository
	notifyClient *notify.Client
	prices       *pricelist.PriceList

	operatorLogin string
	operatorHash  []byte
}

// NewService создаёт новый сервис с указанным репозиторием, прейскурантом
// и учётными данными оператора. Клиент уведомлений может быть nil.
func NewService(repo Repository, prices *pricelist.PriceList, notifyClient *notify.Client, operatorLogin, operatorPassword string) *Service {
	return &Service{
		repo:          repo,
		notifyClient:  notifyClient,
		prices:        prices,
		operatorLogin: operatorLogin,
		operatorHash:  hashPassword(operatorLogin, operatorPassword),
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

func hashPassword(login, password string) []byte {
	sum := sha256.Sum256([]byte(login + ":" + password))
	return sum[:]
}

// AuthenticateOperator проверяет логин и пароль оператора.
func (s *Service) AuthenticateOperator(login, password string) error {
	if login != s.operatorLogin {
		return ErrBadCredentials
	}

	hashed := hashPassword(login, password)
	if hex.EncodeToString(hashed) != hex.EncodeToString(s.operatorHash) {
		return ErrBadCredentials
	}

	return nil
}

func yuanToFen(v float64) int64 {
	return int64(math.Round(v * 100))
}

// GiftAmount возвращает бонус за пополнение: 20% от суммы. Суммы в фэнях.
func GiftAmount(amountFen int64) int64 {
	return amountFen / 5
}

// RechargeResult содержит итог пополнения баланса.
type RechargeResult struct {
	Balance    float64 `json:"balance"`
	GiftAmount float64 `json:"gift_amount"`
}

// Recharge проводит пополнение баланса клиента: валидирует сумму, начисляет бонус
// и атомарно сохраняет запись о пополнении вместе с обновлением баланса.
// Порядок проверок фиксирован, при любой ошибке валидации мутаций не происходит.
func (s *Service) Recharge(ctx context.Context, customerID int64, amount float64) (*RechargeResult, error) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return nil, ErrAmountNotNumber
	}

	amountFen := yuanToFen(amount)
	if amountFen <= 0 {
		return nil, ErrAmountNotPositive
	}
	if !validation.IsValidRechargeAmount(amountFen) {
		return nil, ErrAmountNotMultiple
	}

	giftFen := GiftAmount(amountFen)

	newBalanceFen, err := s.repo.CreateRecharge(ctx, customerID, amountFen, giftFen)
	if err != nil {
		return nil, err
	}

	return &RechargeResult{
		Balance:    float64(newBalanceFen) / 100,
		GiftAmount: float64(giftFen) / 100,
	}, nil
}

// GetRechargesByCustomer возвращает историю пополнений клиента.
func (s *Service) GetRechargesByCustomer(ctx context.Context, customerID int64) ([]model.RechargeRecord, error) {
	return s.repo.ListRechargesByCustomer(ctx, customerID)
}

// CustomerInput содержит данные клиента для создания или обновления.
type CustomerInput struct {
	Name   string `json:"name"`
	Phone  string `json:"phone"`
	Wechat string `json:"wechat"`
	Note   string `json:"note"`
}

// CreateCustomer создаёт нового клиента с нулевым балансом.
func (s *Service) CreateCustomer(ctx context.Context, in CustomerInput) (*model.Customer, error) {
	if in.Name == "" {
		return nil, ErrNameRequired
	}

	id, err := s.repo.CreateCustomer(ctx, in.Name, in.Phone, in.Wechat, in.Note)
	if err != nil {
		return nil, err
	}

	return s.repo.GetCustomer(ctx, id)
}

// UpdateCustomer обновляет данные клиента. Баланс через этот метод не меняется.
func (s *Service) UpdateCustomer(ctx context.Context, id int64, in CustomerInput) (*model.Customer, error) {
	if in.Name == "" {
		return nil, ErrNameRequired
	}

	if err := s.repo.UpdateCustomer(ctx, id, in.Name, in.Phone, in.Wechat, in.Note); err != nil {
		return nil, err
	}

	return s.repo.GetCustomer(ctx, id)
}

// GetCustomer возвращает клиента по идентификатору.
func (s *Service) GetCustomer(ctx context.Context, id int64) (*model.Customer, error) {
	return s.repo.GetCustomer(ctx, id)
}

// ListCustomers возвращает всех клиентов.
func (s *Service) ListCustomers(ctx context.Context) ([]model.Customer, error) {
	return s.repo.ListCustomers(ctx)
}

// DeleteCustomer удаляет клиента.
func (s *Service) DeleteCustomer(ctx context.Context, id int64) error {
	return s.repo.DeleteCustomer(ctx, id)
}

// OrderItem описывает одну вещь при создании заказа. Цена в юанях:
// предзаполняется из прейскуранта, но допускает ручную корректировку.
type OrderItem struct {
	Kind         string  `json:"kind"`
	Price        float64 `json:"price"`
	DamageRemark string  `json:"damage_remark"`
	DamageImage  string  `json:"damage_image"`
}

// OrderInput содержит данные нового заказа.
type OrderInput struct {
	CustomerID int64         `json:"customer_id"`
	PayType    model.PayType `json:"pay_type"`
	Urgent     bool          `json:"urgent"`
	ExpectedAt *time.Time    `json:"expected_at"`
	Items      []OrderItem   `json:"items"`
}

// generateOrderNo строит читаемый номер заказа из текущей даты и младших
// разрядов времени. Уникальность не гарантируется, коллизии допустимы.
func generateOrderNo(now time.Time) string {
	return fmt.Sprintf("ORD-%s-%04d", now.Format("20060102"), now.UnixMilli()%10000)
}

// CreateOrder собирает и сохраняет новый заказ: валидирует вход, считает полную
// стоимость как сумму цен вещей и атомарно записывает заказ вместе с вещами.
// Предоплатный заказ в той же транзакции списывает стоимость с баланса клиента.
func (s *Service) CreateOrder(ctx context.Context, in OrderInput) (*model.Order, error) {
	if len(in.Items) == 0 {
		return nil, ErrNoItems
	}
	if !validation.IsValidPayType(in.PayType) {
		return nil, ErrBadPayType
	}

	var totalFen int64
	items := make([]repository.NewClothes, 0, len(in.Items))
	for _, item := range in.Items {
		if item.Kind == "" {
			return nil, ErrItemKindRequired
		}
		if item.Price < 0 {
			return nil, ErrItemPriceNegative
		}

		priceFen := yuanToFen(item.Price)
		totalFen += priceFen

		items = append(items, repository.NewClothes{
			Kind:         item.Kind,
			PriceFen:     priceFen,
			DamageRemark: item.DamageRemark,
			DamageImage:  item.DamageImage,
		})
	}

	order := repository.NewOrder{
		OrderNo:    generateOrderNo(time.Now()),
		CustomerID: in.CustomerID,
		TotalFen:   totalFen,
		PayType:    in.PayType,
		Urgent:     in.Urgent,
		ExpectedAt: in.ExpectedAt,
	}

	id, err := s.repo.CreateOrder(ctx, order, items)
	if err != nil {
		return nil, err
	}

	return s.repo.GetOrder(ctx, id)
}

// GetOrder возвращает заказ вместе с его вещами.
func (s *Service) GetOrder(ctx context.Context, id int64) (*model.Order, []model.Clothes, error) {
	order, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	clothes, err := s.repo.GetOrderClothes(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	return order, clothes, nil
}

// ListOrders возвращает заказы по фильтру.
func (s *Service) ListOrders(ctx context.Context, f repository.OrderFilter) ([]model.Order, error) {
	if f.Status != "" && !validation.IsValidOrderStatus(f.Status) {
		return nil, ErrBadOrderStatus
	}
	if f.PayType != "" && !validation.IsValidPayType(f.PayType) {
		return nil, ErrBadPayType
	}
	return s.repo.ListOrders(ctx, f)
}

// UpdateOrderStatus устанавливает статус заказа. Любое значение закрытого
// множества допустимо, порядок переходов не проверяется.
func (s *Service) UpdateOrderStatus(ctx context.Context, id int64, status model.OrderStatus) error {
	if !validation.IsValidOrderStatus(status) {
		return ErrBadOrderStatus
	}
	return s.repo.UpdateOrderStatus(ctx, id, status)
}

// DeleteOrder удаляет заказ вместе с вещами. Для незавершённых предоплатных
// заказов стоимость возвращается на баланс клиента. Возвращает сумму возврата в юанях.
func (s *Service) DeleteOrder(ctx context.Context, id int64) (float64, error) {
	refundFen, err := s.repo.DeleteOrder(ctx, id)
	if err != nil {
		return 0, err
	}
	return float64(refundFen) / 100, nil
}

// PriceList возвращает прейскурант.
func (s *Service) PriceList() []pricelist.Item {
	return s.prices.Items()
}

// reportWindow возвращает границы окна отчёта [from, to) и его метку
// по календарному дню или месяцу опорного времени в локальной тайм-зоне.
func reportWindow(period model.ReportPeriod, ref time.Time) (time.Time, time.Time, string) {
	ref = ref.Local()

	if period == model.ReportMonthly {
		from := time.Date(ref.Year(), ref.Month(), 1, 0, 0, 0, 0, ref.Location())
		return from, from.AddDate(0, 1, 0), from.Format("2006-01")
	}

	from := time.Date(ref.Year(), ref.Month(), ref.Day(), 0, 0, 0, 0, ref.Location())
	return from, from.AddDate(0, 0, 1), from.Format("2006-01-02")
}

// GetReport строит отчёт о выручке за день или месяц опорного времени.
// Счётчик незавершённых заказов намеренно не ограничен окном отчёта:
// это живой снимок текущей загрузки, а не итог периода.
func (s *Service) GetReport(ctx context.Context, period model.ReportPeriod, ref time.Time) (*model.Report, error) {
	from, to, label := reportWindow(period, ref)

	cashFen, err := s.repo.SumCashIncome(ctx, from, to)
	if err != nil {
		return nil, err
	}

	rechargeFen, err := s.repo.SumRechargeIncome(ctx, from, to)
	if err != nil {
		return nil, err
	}

	pending, err := s.repo.CountPendingOrders(ctx)
	if err != nil {
		return nil, err
	}

	orders, err := s.repo.ListOrders(ctx, repository.OrderFilter{From: from, To: to})
	if err != nil {
		return nil, err
	}

	return &model.Report{
		Label:          label,
		CashIncome:     float64(cashFen) / 100,
		RechargeIncome: float64(rechargeFen) / 100,
		TotalIncome:    float64(cashFen+rechargeFen) / 100,
		PendingOrders:  pending,
		Orders:         orders,
	}, nil
}

// StartPickupNotifications запускает фоновый процесс уведомления клиентов
// о готовности заказов к выдаче.
func (s *Service) StartPickupNotifications(ctx context.Context) {
	if s.notifyClient == nil {
		return
	}

	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.processNotifyBatch(ctx)
			}
		}
	}()
}

func (s *Service) processNotifyBatch(ctx context.Context) {
	orders, err := s.repo.GetOrdersForPickupNotify(ctx, 100)
	if err != nil {
		return
	}

	for _, o := range orders {
		err := s.notifyClient.SendPickupReady(ctx, notify.PickupMessage{
			OrderNo:      o.OrderNo,
			CustomerName: o.CustomerName,
			Phone:        o.Phone,
			Wechat:       o.Wechat,
		})
		if err != nil {
			continue
		}

		_ = s.repo.MarkOrderNotified(ctx, o.OrderID)
	}
}
