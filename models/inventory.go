package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mmdatafocus/retail_backend/config"
	"github.com/mmdatafocus/retail_backend/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Inventory is the current on-hand counter per product. Movements are
// written elsewhere (order items, purchase items, adjustments); this row is
// the live total those movements add up to.
type Inventory struct {
	ID        int       `gorm:"primary_key" json:"id"`
	ProductId int       `gorm:"uniqueIndex;not null" json:"product_id" binding:"required"`
	Quantity  int       `gorm:"not null;default:0" json:"quantity"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// lockInventory fetches the inventory row FOR UPDATE so concurrent
// mutations on the same product serialize. Returns nil when no row exists.
func lockInventory(tx *gorm.DB, productId int) (*Inventory, error) {
	var inventory Inventory
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("product_id = ?", productId).
		First(&inventory).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &inventory, nil
}

// firstOrCreateInventory locks the row, seeding a zero-quantity row first
// when the product has never had stock.
func firstOrCreateInventory(tx *gorm.DB, productId int) (*Inventory, error) {
	inventory, err := lockInventory(tx, productId)
	if err != nil {
		return nil, err
	}
	if inventory != nil {
		return inventory, nil
	}
	inventory = &Inventory{ProductId: productId, Quantity: 0}
	if err := tx.Create(inventory).Error; err != nil {
		return nil, err
	}
	// re-read under lock; another tx may have created it first
	return lockInventory(tx, productId)
}

// applyInventoryDelta moves the counter with a relative update so the value
// written is derived from the locked row, never a stale in-memory copy.
func applyInventoryDelta(tx *gorm.DB, inventoryId int, delta int) error {
	return tx.Model(&Inventory{}).
		Where("id = ?", inventoryId).
		Update("quantity", gorm.Expr("quantity + ?", delta)).Error
}

// reserveStock deducts qty from on-hand inside the caller's transaction.
// Ordering a product that has never been stocked is a Conflict; ordering
// more than on-hand is InsufficientStock.
func reserveStock(tx *gorm.DB, productId int, qty int) error {
	inventory, err := lockInventory(tx, productId)
	if err != nil {
		return err
	}
	if inventory == nil {
		return fmt.Errorf("%w: no inventory record for product %d", utils.ErrConflict, productId)
	}
	if inventory.Quantity < qty {
		return fmt.Errorf("%w: product %d has %d on hand, requested %d",
			utils.ErrInsufficientStock, productId, inventory.Quantity, qty)
	}
	return applyInventoryDelta(tx, inventory.ID, -qty)
}

// releaseStock returns qty to on-hand (item removed or quantity lowered).
func releaseStock(tx *gorm.DB, productId int, qty int) error {
	inventory, err := lockInventory(tx, productId)
	if err != nil {
		return err
	}
	if inventory == nil {
		return fmt.Errorf("%w: no inventory record for product %d", utils.ErrConflict, productId)
	}
	return applyInventoryDelta(tx, inventory.ID, qty)
}

// receiveStock adds purchased qty, seeding the row on first receipt.
func receiveStock(tx *gorm.DB, productId int, qty int) error {
	inventory, err := firstOrCreateInventory(tx, productId)
	if err != nil {
		return err
	}
	return applyInventoryDelta(tx, inventory.ID, qty)
}

func GetInventory(ctx context.Context, productId int) (*Inventory, error) {
	db := config.GetDB()
	var inventory Inventory
	err := db.WithContext(ctx).Where("product_id = ?", productId).First(&inventory).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrNotFound
		}
		return nil, err
	}
	return &inventory, nil
}

// ListInventoriesBelow returns counters strictly under the threshold,
// lowest first, for restock review.
func ListInventoriesBelow(ctx context.Context, threshold int) ([]*Inventory, error) {
	db := config.GetDB()
	var inventories []*Inventory
	err := db.WithContext(ctx).
		Where("quantity < ?", threshold).
		Order("quantity, product_id").
		Find(&inventories).Error
	if err != nil {
		return nil, err
	}
	return inventories, nil
}
