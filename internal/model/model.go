// Package model содержит доменные сущности сервиса химчистки.
package model

import "time"

// Customer представляет клиента химчистки с предоплаченным балансом.
type Customer struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone,omitempty"`
	Wechat    string    `json:"wechat,omitempty"`
	Balance   float64   `json:"balance"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// OrderStatus описывает статус обработки заказа.
type OrderStatus string

const (
	OrderStatusUnwashed OrderStatus = "UNWASHED"
	OrderStatusWashed   OrderStatus = "WASHED"
	OrderStatusFinished OrderStatus = "FINISHED"
)

// PayType описывает способ оплаты заказа.
type PayType string

const (
	PayTypeCash    PayType = "CASH"
	PayTypePrepaid PayType = "PREPAID"
	PayTypeUnpaid  PayType = "UNPAID"
)

// Order описывает заказ клиента на чистку вещей.
type Order struct {
	ID         int64       `json:"id"`
	OrderNo    string      `json:"order_no"`
	CustomerID int64       `json:"customer_id"`
	TotalPrice float64     `json:"total_price"`
	Prepaid    float64     `json:"prepaid"`
	PayType    PayType     `json:"pay_type"`
	Urgent     bool        `json:"urgent"`
	Status     OrderStatus `json:"status"`
	ExpectedAt *time.Time  `json:"expected_at,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
}

// Clothes описывает одну вещь в составе заказа.
// Цена фиксируется в момент добавления и не меняется при изменении прейскуранта.
type Clothes struct {
	ID           int64       `json:"id"`
	OrderID      int64       `json:"order_id"`
	Kind         string      `json:"kind"`
	Price        float64     `json:"price"`
	DamageRemark string      `json:"damage_remark,omitempty"`
	DamageImage  string      `json:"damage_image,omitempty"`
	Status       OrderStatus `json:"status"`
	CreatedAt    time.Time   `json:"created_at"`
}

// RechargeRecord описывает факт пополнения баланса клиента с бонусом.
// Запись неизменяема после создания.
type RechargeRecord struct {
	ID             int64     `json:"id"`
	CustomerID     int64     `json:"customer_id"`
	RechargeAmount float64   `json:"recharge_amount"`
	GiftAmount     float64   `json:"gift_amount"`
	CreatedAt      time.Time `json:"created_at"`
}

// ReportPeriod задаёт гранулярность отчёта о выручке.
type ReportPeriod string

const (
	ReportDaily   ReportPeriod = "DAILY"
	ReportMonthly ReportPeriod = "MONTHLY"
)

// Report содержит итоги выручки за день или месяц.
// PendingOrders считается по всем заказам независимо от окна отчёта.
type Report struct {
	Label          string  `json:"label"`
	CashIncome     float64 `json:"cash_income"`
	RechargeIncome float64 `json:"recharge_income"`
	TotalIncome    float64 `json:"total_income"`
	PendingOrders  int     `json:"pending_orders"`
	Orders         []Order `json:"orders"`
}
