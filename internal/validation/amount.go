// Package validation содержит функции валидации входных данных.
package validation

import "github.com/mmeshcher/laundry-system/internal/model"

// IsValidRechargeAmount проверяет сумму пополнения в фэнях:
// сумма должна быть положительной и кратной 100 юаням.
func IsValidRechargeAmount(amountFen int64) bool {
	return amountFen > 0 && amountFen%10000 == 0
}

// IsValidOrderStatus проверяет принадлежность статуса закрытому множеству.
func IsValidOrderStatus(s model.OrderStatus) bool {
	switch s {
	case model.OrderStatusUnwashed, model.OrderStatusWashed, model.OrderStatusFinished:
		return true
	}
	return false
}

// IsValidPayType проверяет принадлежность способа оплаты закрытому множеству.
func IsValidPayType(p model.PayType) bool {
	switch p {
	case model.PayTypeCash, model.PayTypePrepaid, model.PayTypeUnpaid:
		return true
	}
	return false
}
