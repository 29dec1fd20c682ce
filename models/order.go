package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mmdatafocus/retail_backend/config"
	"github.com/mmdatafocus/retail_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Order carries the cart and its lifecycle. Stock for each line is deducted
// the moment the line is added, not at checkout; Cancel intentionally keeps
// that deduction (see RecordAdjustment for the manual correction path).
type Order struct {
	ID             int             `gorm:"primary_key" json:"id"`
	OrderNumber    string          `gorm:"size:100;not null" json:"order_number"`
	SequenceNo     int64           `gorm:"not null" json:"sequence_no"`
	CustomerId     int             `gorm:"index" json:"customer_id"`
	UserId         int             `gorm:"index" json:"user_id"`
	Status         OrderStatus     `gorm:"type:enum('Pending','Paid','Canceled');not null;default:'Pending'" json:"status"`
	OrderDate      time.Time       `gorm:"not null" json:"order_date"`
	PromotionId    *int            `gorm:"default:null" json:"promotion_id"`
	PromotionCode  string          `gorm:"size:100" json:"promotion_code"`
	TotalAmount    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_amount"`
	DiscountAmount decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"discount_amount"`
	FinalAmount    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"final_amount"`
	Notes          string          `gorm:"type:text" json:"notes"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
	Items          []OrderItem     `gorm:"foreignKey:OrderId" json:"items"`
}

type OrderItem struct {
	ID        int             `gorm:"primary_key" json:"id"`
	OrderId   int             `gorm:"index;not null" json:"order_id"`
	ProductId int             `gorm:"index;not null" json:"product_id"`
	Quantity  int             `gorm:"not null" json:"quantity"`
	UnitPrice decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"unit_price"`
	Subtotal  decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"subtotal"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewOrder struct {
	CustomerId int        `json:"customer_id"`
	OrderDate  *time.Time `json:"order_date"`
	Notes      string     `json:"notes"`
}

type NewOrderItem struct {
	ProductId int `json:"product_id" binding:"required"`
	Quantity  int `json:"quantity" binding:"required"`
}

type NewPayment struct {
	Amount decimal.Decimal `json:"amount" binding:"required"`
	Method PaymentMethod   `json:"method" binding:"required"`
}

type OrdersConnection struct {
	Edges    []Edge[Order] `json:"edges"`
	PageInfo *PageInfo     `json:"pageInfo"`
}

func (o Order) GetCursor() string {
	return o.CreatedAt.Format("2006-01-02 15:04:05.000000")
}

func (o Order) GetId() int {
	return o.ID
}

func (input NewOrder) validate(ctx context.Context) error {
	if input.CustomerId > 0 {
		if err := utils.ValidateResourceId[Customer](ctx, input.CustomerId); err != nil {
			return fmt.Errorf("%w: customer not found", utils.ErrNotFound)
		}
	}
	return nil
}

func CreateOrder(ctx context.Context, input *NewOrder) (*Order, error) {
	db := config.GetDB()

	if err := input.validate(ctx); err != nil {
		return nil, err
	}

	orderDate := time.Now()
	if input.OrderDate != nil {
		orderDate = *input.OrderDate
	}
	userId, _ := utils.GetUserIdFromContext(ctx)

	order := Order{
		CustomerId:     input.CustomerId,
		UserId:         userId,
		Status:         OrderStatusPending,
		OrderDate:      orderDate,
		Notes:          input.Notes,
		TotalAmount:    decimal.Zero,
		DiscountAmount: decimal.Zero,
		FinalAmount:    decimal.Zero,
	}

	tx := db.WithContext(ctx).Begin()
	seqNo, err := utils.GetSequence[Order](ctx)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	order.SequenceNo = seqNo
	order.OrderNumber = "SO-" + fmt.Sprint(seqNo)

	if err := tx.Create(&order).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// lockOrder fetches the order FOR UPDATE so item edits, promotion changes
// and checkout serialize per order.
func lockOrder(tx *gorm.DB, orderId int) (*Order, error) {
	var order Order
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&order, orderId).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrNotFound
		}
		return nil, err
	}
	return &order, nil
}

func requirePendingOrder(order *Order) error {
	if order.Status != OrderStatusPending {
		return fmt.Errorf("%w: order is %s", utils.ErrInvalidState, order.Status)
	}
	return nil
}

// recomputeOrderTotals re-derives total, discount and final from the items
// currently on the order. The discount is re-evaluated against the fresh
// total so growing or shrinking the cart keeps the numbers consistent.
func recomputeOrderTotals(tx *gorm.DB, order *Order) error {
	var total decimal.Decimal
	var items []OrderItem
	if err := tx.Where("order_id = ?", order.ID).Find(&items).Error; err != nil {
		return err
	}
	for _, item := range items {
		total = total.Add(item.Subtotal)
	}

	discount := decimal.Zero
	if order.PromotionId != nil {
		var promotion Promotion
		if err := tx.First(&promotion, *order.PromotionId).Error; err != nil {
			return err
		}
		discount = CalculateDiscount(promotion.Kind, promotion.Value, total)
	}

	order.TotalAmount = total
	order.DiscountAmount = discount
	order.FinalAmount = total.Sub(discount)

	return tx.Model(order).Updates(map[string]interface{}{
		"total_amount":    order.TotalAmount,
		"discount_amount": order.DiscountAmount,
		"final_amount":    order.FinalAmount,
	}).Error
}

// AddOrderItem reserves stock for the line immediately and snapshots the
// product price at add time. Adding a product already on the order merges
// into the existing line and keeps the original snapshot price.
func AddOrderItem(ctx context.Context, orderId int, input *NewOrderItem) (*Order, error) {
	db := config.GetDB()

	if input.Quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", utils.ErrValidation)
	}

	product, err := GetProduct(ctx, input.ProductId)
	if err != nil {
		return nil, fmt.Errorf("%w: product not found", utils.ErrNotFound)
	}
	if product.IsActive != nil && !*product.IsActive {
		return nil, fmt.Errorf("%w: product is inactive", utils.ErrValidation)
	}

	tx := db.WithContext(ctx).Begin()

	order, err := lockOrder(tx, orderId)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := requirePendingOrder(order); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := reserveStock(tx, input.ProductId, input.Quantity); err != nil {
		tx.Rollback()
		return nil, err
	}

	var existing OrderItem
	err = tx.Where("order_id = ? AND product_id = ?", orderId, input.ProductId).
		First(&existing).Error
	switch {
	case err == nil:
		existing.Quantity += input.Quantity
		existing.Subtotal = existing.UnitPrice.Mul(decimal.NewFromInt(int64(existing.Quantity)))
		if err := tx.Save(&existing).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		item := OrderItem{
			OrderId:   orderId,
			ProductId: input.ProductId,
			Quantity:  input.Quantity,
			UnitPrice: product.Price,
			Subtotal:  product.Price.Mul(decimal.NewFromInt(int64(input.Quantity))),
		}
		if err := tx.Create(&item).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
	default:
		tx.Rollback()
		return nil, err
	}

	if err := recomputeOrderTotals(tx, order); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return GetOrder(ctx, orderId)
}

// UpdateOrderItem moves the line to the new quantity; only the delta is
// reserved or released, and the snapshot price never changes.
func UpdateOrderItem(ctx context.Context, orderId int, itemId int, quantity int) (*Order, error) {
	db := config.GetDB()

	if quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", utils.ErrValidation)
	}

	tx := db.WithContext(ctx).Begin()

	order, err := lockOrder(tx, orderId)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := requirePendingOrder(order); err != nil {
		tx.Rollback()
		return nil, err
	}

	var item OrderItem
	if err := tx.Where("id = ? AND order_id = ?", itemId, orderId).First(&item).Error; err != nil {
		tx.Rollback()
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: order item not found", utils.ErrNotFound)
		}
		return nil, err
	}

	delta := quantity - item.Quantity
	if delta > 0 {
		if err := reserveStock(tx, item.ProductId, delta); err != nil {
			tx.Rollback()
			return nil, err
		}
	} else if delta < 0 {
		if err := releaseStock(tx, item.ProductId, -delta); err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	item.Quantity = quantity
	item.Subtotal = item.UnitPrice.Mul(decimal.NewFromInt(int64(quantity)))
	if err := tx.Save(&item).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := recomputeOrderTotals(tx, order); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return GetOrder(ctx, orderId)
}

// DeleteOrderItem removes the line and returns its full quantity to stock.
func DeleteOrderItem(ctx context.Context, orderId int, itemId int) (*Order, error) {
	db := config.GetDB()

	tx := db.WithContext(ctx).Begin()

	order, err := lockOrder(tx, orderId)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := requirePendingOrder(order); err != nil {
		tx.Rollback()
		return nil, err
	}

	var item OrderItem
	if err := tx.Where("id = ? AND order_id = ?", itemId, orderId).First(&item).Error; err != nil {
		tx.Rollback()
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: order item not found", utils.ErrNotFound)
		}
		return nil, err
	}

	if err := releaseStock(tx, item.ProductId, item.Quantity); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Delete(&item).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := recomputeOrderTotals(tx, order); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return GetOrder(ctx, orderId)
}

// ApplyPromotion attaches the promotion after running its eligibility rules
// against the order's current total. Only one promotion per order; applying
// a new code replaces the old one.
func ApplyPromotion(ctx context.Context, orderId int, code string) (*Order, error) {
	db := config.GetDB()

	tx := db.WithContext(ctx).Begin()

	order, err := lockOrder(tx, orderId)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := requirePendingOrder(order); err != nil {
		tx.Rollback()
		return nil, err
	}

	var itemCount int64
	if err := tx.Model(&OrderItem{}).Where("order_id = ?", orderId).Count(&itemCount).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if itemCount == 0 {
		tx.Rollback()
		return nil, fmt.Errorf("%w: order has no items", utils.ErrValidation)
	}

	// read the promotion from the database, not the cache; used_count must
	// be current when checking the limit
	var promotion Promotion
	if err := tx.Where("code = ?", code).First(&promotion).Error; err != nil {
		tx.Rollback()
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: promotion not found", utils.ErrNotFound)
		}
		return nil, err
	}

	if err := promotion.CheckUsable(order.TotalAmount, time.Now()); err != nil {
		tx.Rollback()
		return nil, err
	}

	order.PromotionId = &promotion.ID
	order.PromotionCode = promotion.Code
	if err := tx.Model(order).Updates(map[string]interface{}{
		"promotion_id":   promotion.ID,
		"promotion_code": promotion.Code,
	}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := recomputeOrderTotals(tx, order); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return GetOrder(ctx, orderId)
}

func RemovePromotion(ctx context.Context, orderId int) (*Order, error) {
	db := config.GetDB()

	tx := db.WithContext(ctx).Begin()

	order, err := lockOrder(tx, orderId)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := requirePendingOrder(order); err != nil {
		tx.Rollback()
		return nil, err
	}
	if order.PromotionId == nil {
		tx.Rollback()
		return nil, fmt.Errorf("%w: order has no promotion attached", utils.ErrValidation)
	}

	order.PromotionId = nil
	order.PromotionCode = ""
	if err := tx.Model(order).Updates(map[string]interface{}{
		"promotion_id":   nil,
		"promotion_code": "",
	}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := recomputeOrderTotals(tx, order); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return GetOrder(ctx, orderId)
}

// Checkout settles a Pending order: totals are re-derived one last time, the
// tendered amount must match the final amount exactly, the promotion (if
// any) is re-checked and its usage
// taken, a Payment row is written and the order flips to Paid, all in one
// transaction. A short redis lock shortcuts duplicate submits; the MySQL
// row lock stays authoritative.
func Checkout(ctx context.Context, orderId int, input *NewPayment) (*Order, error) {
	db := config.GetDB()

	if _, err := ParsePaymentMethod(string(input.Method)); err != nil {
		return nil, err
	}

	if config.CheckoutLockEnabled() {
		lock, err := utils.ObtainOperationLock(ctx, "checkout", orderId, "order", "Checkout")
		if err != nil {
			return nil, err
		}
		if lock != nil {
			defer func() { _ = lock.Release(ctx) }()
		}
	}

	tx := db.WithContext(ctx).Begin()

	order, err := lockOrder(tx, orderId)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := requirePendingOrder(order); err != nil {
		tx.Rollback()
		return nil, err
	}

	var itemCount int64
	if err := tx.Model(&OrderItem{}).Where("order_id = ?", orderId).Count(&itemCount).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if itemCount == 0 {
		tx.Rollback()
		return nil, fmt.Errorf("%w: order has no items", utils.ErrValidation)
	}

	// settle against freshly derived totals, not the stored columns
	if err := recomputeOrderTotals(tx, order); err != nil {
		tx.Rollback()
		return nil, err
	}

	if order.PromotionId != nil {
		var promotion Promotion
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&promotion, *order.PromotionId).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
		if err := promotion.CheckUsable(order.TotalAmount, time.Now()); err != nil {
			tx.Rollback()
			return nil, err
		}
		if err := incrementPromotionUsage(tx, promotion.ID); err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	if !input.Amount.Equal(order.FinalAmount) {
		tx.Rollback()
		return nil, fmt.Errorf("%w: payment amount %s does not match order amount %s",
			utils.ErrValidation, input.Amount, order.FinalAmount)
	}

	seqNo, err := utils.GetSequence[Payment](ctx)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	payment := Payment{
		OrderId:       orderId,
		PaymentNumber: "PAY-" + fmt.Sprint(seqNo),
		SequenceNo:    seqNo,
		Amount:        input.Amount,
		Method:        input.Method,
		PaidAt:        time.Now(),
	}
	if err := tx.Create(&payment).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Model(order).Update("status", OrderStatusPaid).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	order.Status = OrderStatusPaid

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return GetOrder(ctx, orderId)
}

// CancelOrder flips Pending to Canceled. The stock deducted for its items
// is NOT returned; recovery is a manual inventory adjustment.
func CancelOrder(ctx context.Context, orderId int) (*Order, error) {
	db := config.GetDB()

	tx := db.WithContext(ctx).Begin()

	order, err := lockOrder(tx, orderId)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := requirePendingOrder(order); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Model(order).Update("status", OrderStatusCanceled).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	order.Status = OrderStatusCanceled

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return GetOrder(ctx, orderId)
}

func GetOrder(ctx context.Context, orderId int) (*Order, error) {
	return utils.FetchModel[Order](ctx, orderId, "Items")
}

func PaginateOrders(ctx context.Context, limit int, after *string, status *OrderStatus, customerId int, userId int) (*OrdersConnection, error) {
	db := config.GetDB()

	if limit <= 0 {
		limit = config.SearchLimit
	}

	dbCtx := db.WithContext(ctx).Model(&Order{}).Preload("Items")
	if status != nil {
		dbCtx = dbCtx.Where("status = ?", *status)
	}
	if customerId > 0 {
		dbCtx = dbCtx.Where("customer_id = ?", customerId)
	}
	if userId > 0 {
		dbCtx = dbCtx.Where("user_id = ?", userId)
	}

	edges, pageInfo, err := FetchPageCompositeCursor[Order](dbCtx, limit, after, "created_at", "<")
	if err != nil {
		return nil, err
	}
	return &OrdersConnection{Edges: edges, PageInfo: pageInfo}, nil
}
