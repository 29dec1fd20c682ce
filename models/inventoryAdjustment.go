package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/mmdatafocus/retail_backend/config"
	"github.com/mmdatafocus/retail_backend/utils"
	"gorm.io/gorm"
)

func isDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}

// InventoryAdjustment is an append-only signed movement with a mandatory
// reason. The counter moves and the log row lands in the same transaction,
// so the log always explains the counter.
type InventoryAdjustment struct {
	ID             int       `gorm:"primary_key" json:"id"`
	ProductId      int       `gorm:"index;not null" json:"product_id" binding:"required"`
	Quantity       int       `gorm:"not null" json:"quantity"`
	Reason         string    `gorm:"size:255;not null" json:"reason" binding:"required"`
	Notes          string    `gorm:"type:text" json:"notes"`
	UserId         int       `gorm:"index" json:"user_id"`
	IdempotencyKey *string   `gorm:"size:100;uniqueIndex;default:null" json:"idempotency_key"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
}

type NewInventoryAdjustment struct {
	ProductId      int    `json:"product_id" binding:"required"`
	Quantity       int    `json:"quantity" binding:"required"`
	Reason         string `json:"reason" binding:"required"`
	Notes          string `json:"notes"`
	IdempotencyKey string `json:"idempotency_key"`
}

type InventoryAdjustmentsConnection struct {
	Edges    []Edge[InventoryAdjustment] `json:"edges"`
	PageInfo *PageInfo                   `json:"pageInfo"`
}

func (a InventoryAdjustment) GetCursor() string {
	return a.CreatedAt.Format("2006-01-02 15:04:05.000000")
}

func (a InventoryAdjustment) GetId() int {
	return a.ID
}

func (input NewInventoryAdjustment) validate() error {
	if input.Quantity == 0 {
		return fmt.Errorf("%w: adjustment quantity must not be zero", utils.ErrValidation)
	}
	if input.Reason == "" {
		return fmt.Errorf("%w: adjustment reason is required", utils.ErrValidation)
	}
	return nil
}

func findAdjustmentByKey(ctx context.Context, db *gorm.DB, key string) (*InventoryAdjustment, error) {
	var existing InventoryAdjustment
	err := db.WithContext(ctx).Where("idempotency_key = ?", key).First(&existing).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &existing, nil
}

// RecordAdjustment applies a signed stock correction immediately. A positive
// quantity on a product with no counter seeds one; a negative quantity on a
// missing counter, or one that would drive stock below zero, is a Conflict.
// Replaying the same idempotency key returns the stored adjustment without
// moving stock again.
func RecordAdjustment(ctx context.Context, input *NewInventoryAdjustment) (*InventoryAdjustment, error) {
	db := config.GetDB()
	logger := config.GetLogger()

	if err := input.validate(); err != nil {
		return nil, err
	}

	if input.IdempotencyKey != "" {
		existing, err := findAdjustmentByKey(ctx, db, input.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
	}

	if err := utils.ValidateResourceId[Product](ctx, input.ProductId); err != nil {
		return nil, fmt.Errorf("%w: product not found", utils.ErrNotFound)
	}

	userId, _ := utils.GetUserIdFromContext(ctx)

	tx := db.WithContext(ctx).Begin()

	inventory, err := lockInventory(tx, input.ProductId)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if inventory == nil {
		if input.Quantity < 0 {
			tx.Rollback()
			return nil, fmt.Errorf("%w: cannot deduct from product %d with no inventory record",
				utils.ErrConflict, input.ProductId)
		}
		inventory, err = firstOrCreateInventory(tx, input.ProductId)
		if err != nil {
			tx.Rollback()
			return nil, err
		}
	}
	if inventory.Quantity+input.Quantity < 0 {
		tx.Rollback()
		return nil, fmt.Errorf("%w: adjustment would drive product %d stock below zero",
			utils.ErrConflict, input.ProductId)
	}

	if err := applyInventoryDelta(tx, inventory.ID, input.Quantity); err != nil {
		tx.Rollback()
		return nil, err
	}

	adjustment := InventoryAdjustment{
		ProductId:      input.ProductId,
		Quantity:       input.Quantity,
		Reason:         input.Reason,
		Notes:          input.Notes,
		UserId:         userId,
		IdempotencyKey: utils.NilIfEmpty(input.IdempotencyKey),
	}
	if err := tx.Create(&adjustment).Error; err != nil {
		tx.Rollback()
		// a concurrent replay may have landed the key first
		if input.IdempotencyKey != "" && isDuplicateKeyErr(err) {
			existing, ferr := findAdjustmentByKey(ctx, db, input.IdempotencyKey)
			if ferr == nil && existing != nil {
				return existing, nil
			}
		}
		config.LogError(logger, "inventoryAdjustment", "RecordAdjustment", "creating log row", input, err)
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &adjustment, nil
}

func PaginateAdjustments(ctx context.Context, limit int, after *string, productId int) (*InventoryAdjustmentsConnection, error) {
	db := config.GetDB()

	if limit <= 0 {
		limit = config.SearchLimit
	}

	dbCtx := db.WithContext(ctx).Model(&InventoryAdjustment{})
	if productId > 0 {
		dbCtx = dbCtx.Where("product_id = ?", productId)
	}

	edges, pageInfo, err := FetchPageCompositeCursor[InventoryAdjustment](dbCtx, limit, after, "created_at", "<")
	if err != nil {
		return nil, err
	}
	return &InventoryAdjustmentsConnection{Edges: edges, PageInfo: pageInfo}, nil
}
