package models

import (
	"context"
	"time"

	"github.com/mmdatafocus/retail_backend/config"
	"github.com/shopspring/decimal"
)

// Payment is written exclusively by Checkout; there is no standalone
// create-payment operation.
type Payment struct {
	ID            int             `gorm:"primary_key" json:"id"`
	OrderId       int             `gorm:"index;not null" json:"order_id"`
	PaymentNumber string          `gorm:"size:100;not null" json:"payment_number"`
	SequenceNo    int64           `gorm:"not null" json:"sequence_no"`
	Amount        decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
	Method        PaymentMethod   `gorm:"type:enum('Cash','Card','BankTransfer','EWallet');not null" json:"method"`
	PaidAt        time.Time       `gorm:"not null" json:"paid_at"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func GetPaymentByOrder(ctx context.Context, orderId int) (*Payment, error) {
	db := config.GetDB()
	var payment Payment
	err := db.WithContext(ctx).Where("order_id = ?", orderId).First(&payment).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}
