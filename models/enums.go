package models

import (
	"fmt"

	"github.com/mmdatafocus/retail_backend/utils"
)

type OrderStatus string

const (
	OrderStatusPending  OrderStatus = "Pending"
	OrderStatusPaid     OrderStatus = "Paid"
	OrderStatusCanceled OrderStatus = "Canceled"
)

func ParseOrderStatus(s string) (OrderStatus, error) {
	switch s {
	case "Pending":
		return OrderStatusPending, nil
	case "Paid":
		return OrderStatusPaid, nil
	case "Canceled":
		return OrderStatusCanceled, nil
	default:
		return "", fmt.Errorf("%w: invalid order status", utils.ErrValidation)
	}
}

type PurchaseStatus string

const (
	PurchaseStatusPending   PurchaseStatus = "Pending"
	PurchaseStatusConfirmed PurchaseStatus = "Confirmed"
	PurchaseStatusCanceled  PurchaseStatus = "Canceled"
)

func ParsePurchaseStatus(s string) (PurchaseStatus, error) {
	switch s {
	case "Pending":
		return PurchaseStatusPending, nil
	case "Confirmed":
		return PurchaseStatusConfirmed, nil
	case "Canceled":
		return PurchaseStatusCanceled, nil
	default:
		return "", fmt.Errorf("%w: invalid purchase status", utils.ErrValidation)
	}
}

type PaymentMethod string

const (
	PaymentMethodCash         PaymentMethod = "Cash"
	PaymentMethodCard         PaymentMethod = "Card"
	PaymentMethodBankTransfer PaymentMethod = "BankTransfer"
	PaymentMethodEWallet      PaymentMethod = "EWallet"
)

func ParsePaymentMethod(s string) (PaymentMethod, error) {
	methods := map[string]PaymentMethod{
		"Cash":         PaymentMethodCash,
		"Card":         PaymentMethodCard,
		"BankTransfer": PaymentMethodBankTransfer,
		"EWallet":      PaymentMethodEWallet,
	}
	m, ok := methods[s]
	if !ok {
		return "", fmt.Errorf("%w: invalid payment method", utils.ErrValidation)
	}
	return m, nil
}

type PromotionKind string

const (
	PromotionKindPercent PromotionKind = "Percent"
	PromotionKindFixed   PromotionKind = "Fixed"
)

func ParsePromotionKind(s string) (PromotionKind, error) {
	switch s {
	case "Percent":
		return PromotionKindPercent, nil
	case "Fixed":
		return PromotionKindFixed, nil
	default:
		return "", fmt.Errorf("%w: invalid promotion kind", utils.ErrValidation)
	}
}

type PromotionStatus string

const (
	PromotionStatusActive   PromotionStatus = "Active"
	PromotionStatusInactive PromotionStatus = "Inactive"
)

// reference_type values on stock movements
type StockReferenceType string

const (
	StockReferenceTypeSale       StockReferenceType = "SO"
	StockReferenceTypePurchase   StockReferenceType = "PO"
	StockReferenceTypeAdjustment StockReferenceType = "ADJ"
)
