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

// Purchase is an inbound receipt. Unlike orders, nothing touches inventory
// at create time; the whole delivery lands on Confirm in one transaction.
type Purchase struct {
	ID             int             `gorm:"primary_key" json:"id"`
	PurchaseNumber string          `gorm:"size:100;not null" json:"purchase_number"`
	SequenceNo     int64           `gorm:"not null" json:"sequence_no"`
	SupplierId     int             `gorm:"index" json:"supplier_id"`
	UserId         int             `gorm:"index" json:"user_id"`
	Status         PurchaseStatus  `gorm:"type:enum('Pending','Confirmed','Canceled');not null;default:'Pending'" json:"status"`
	PurchaseDate   time.Time       `gorm:"not null" json:"purchase_date"`
	TotalCost      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_cost"`
	Notes          string          `gorm:"type:text" json:"notes"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
	Items          []PurchaseItem  `gorm:"foreignKey:PurchaseId" json:"items"`
}

type PurchaseItem struct {
	ID         int             `gorm:"primary_key" json:"id"`
	PurchaseId int             `gorm:"index;not null" json:"purchase_id"`
	ProductId  int             `gorm:"index;not null" json:"product_id"`
	Quantity   int             `gorm:"not null" json:"quantity"`
	UnitCost   decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"unit_cost"`
	Subtotal   decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"subtotal"`
}

type NewPurchase struct {
	SupplierId   int               `json:"supplier_id"`
	PurchaseDate *time.Time        `json:"purchase_date"`
	Notes        string            `json:"notes"`
	Items        []NewPurchaseItem `json:"items" binding:"required,dive"`
}

type NewPurchaseItem struct {
	ProductId int             `json:"product_id" binding:"required"`
	Quantity  int             `json:"quantity" binding:"required"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
}

type PurchasesConnection struct {
	Edges    []Edge[Purchase] `json:"edges"`
	PageInfo *PageInfo        `json:"pageInfo"`
}

func (p Purchase) GetCursor() string {
	return p.CreatedAt.Format("2006-01-02 15:04:05.000000")
}

func (p Purchase) GetId() int {
	return p.ID
}

func (input NewPurchase) validate(ctx context.Context) error {
	if len(input.Items) == 0 {
		return fmt.Errorf("%w: purchase needs at least one item", utils.ErrValidation)
	}
	if input.SupplierId > 0 {
		if err := utils.ValidateResourceId[Supplier](ctx, input.SupplierId); err != nil {
			return fmt.Errorf("%w: supplier not found", utils.ErrNotFound)
		}
	}
	var productIds []int
	for _, item := range input.Items {
		if item.Quantity <= 0 {
			return fmt.Errorf("%w: item quantity must be positive", utils.ErrValidation)
		}
		if item.UnitCost.IsNegative() {
			return fmt.Errorf("%w: item unit cost must not be negative", utils.ErrValidation)
		}
		productIds = append(productIds, item.ProductId)
	}
	if err := utils.ValidateResourcesId[Product](ctx, productIds); err != nil {
		return fmt.Errorf("%w: product not found", utils.ErrNotFound)
	}
	return nil
}

func CreatePurchase(ctx context.Context, input *NewPurchase) (*Purchase, error) {
	db := config.GetDB()

	if err := input.validate(ctx); err != nil {
		return nil, err
	}

	purchaseDate := time.Now()
	if input.PurchaseDate != nil {
		purchaseDate = *input.PurchaseDate
	}
	userId, _ := utils.GetUserIdFromContext(ctx)

	var totalCost decimal.Decimal
	var items []PurchaseItem
	for _, item := range input.Items {
		subtotal := item.UnitCost.Mul(decimal.NewFromInt(int64(item.Quantity)))
		totalCost = totalCost.Add(subtotal)
		items = append(items, PurchaseItem{
			ProductId: item.ProductId,
			Quantity:  item.Quantity,
			UnitCost:  item.UnitCost,
			Subtotal:  subtotal,
		})
	}

	purchase := Purchase{
		SupplierId:   input.SupplierId,
		UserId:       userId,
		Status:       PurchaseStatusPending,
		PurchaseDate: purchaseDate,
		TotalCost:    totalCost,
		Notes:        input.Notes,
		Items:        items,
	}

	tx := db.WithContext(ctx).Begin()
	seqNo, err := utils.GetSequence[Purchase](ctx)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	purchase.SequenceNo = seqNo
	purchase.PurchaseNumber = "PO-" + fmt.Sprint(seqNo)

	if err := tx.Create(&purchase).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &purchase, nil
}

func lockPurchase(tx *gorm.DB, purchaseId int) (*Purchase, error) {
	var purchase Purchase
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&purchase, purchaseId).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrNotFound
		}
		return nil, err
	}
	return &purchase, nil
}

// ConfirmPurchase receives every line into stock and flips the purchase to
// Confirmed in one transaction; either all counters move or none do.
func ConfirmPurchase(ctx context.Context, purchaseId int) (*Purchase, error) {
	db := config.GetDB()

	tx := db.WithContext(ctx).Begin()

	purchase, err := lockPurchase(tx, purchaseId)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if purchase.Status != PurchaseStatusPending {
		tx.Rollback()
		return nil, fmt.Errorf("%w: purchase is %s", utils.ErrInvalidState, purchase.Status)
	}

	var items []PurchaseItem
	if err := tx.Where("purchase_id = ?", purchaseId).Find(&items).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	for _, item := range items {
		if err := receiveStock(tx, item.ProductId, item.Quantity); err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	if err := tx.Model(purchase).Update("status", PurchaseStatusConfirmed).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	purchase.Status = PurchaseStatusConfirmed

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return GetPurchase(ctx, purchaseId)
}

// CancelPurchase marks an undelivered purchase Canceled; inventory is
// untouched since nothing was received.
func CancelPurchase(ctx context.Context, purchaseId int) (*Purchase, error) {
	db := config.GetDB()

	tx := db.WithContext(ctx).Begin()

	purchase, err := lockPurchase(tx, purchaseId)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if purchase.Status != PurchaseStatusPending {
		tx.Rollback()
		return nil, fmt.Errorf("%w: purchase is %s", utils.ErrInvalidState, purchase.Status)
	}

	if err := tx.Model(purchase).Update("status", PurchaseStatusCanceled).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	purchase.Status = PurchaseStatusCanceled

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return GetPurchase(ctx, purchaseId)
}

func GetPurchase(ctx context.Context, purchaseId int) (*Purchase, error) {
	return utils.FetchModel[Purchase](ctx, purchaseId, "Items")
}

func PaginatePurchases(ctx context.Context, limit int, after *string, status *PurchaseStatus, supplierId int) (*PurchasesConnection, error) {
	db := config.GetDB()

	if limit <= 0 {
		limit = config.SearchLimit
	}

	dbCtx := db.WithContext(ctx).Model(&Purchase{}).Preload("Items")
	if status != nil {
		dbCtx = dbCtx.Where("status = ?", *status)
	}
	if supplierId > 0 {
		dbCtx = dbCtx.Where("supplier_id = ?", supplierId)
	}

	edges, pageInfo, err := FetchPageCompositeCursor[Purchase](dbCtx, limit, after, "created_at", "<")
	if err != nil {
		return nil, err
	}
	return &PurchasesConnection{Edges: edges, PageInfo: pageInfo}, nil
}
