package models

import (
	"context"
	"fmt"
	"time"

	"github.com/mmdatafocus/retail_backend/config"
	"github.com/mmdatafocus/retail_backend/utils"
	"github.com/shopspring/decimal"
)

type Product struct {
	ID        int             `gorm:"primary_key" json:"id"`
	Name      string          `gorm:"size:255;not null" json:"name" binding:"required"`
	Sku       string          `gorm:"size:100;uniqueIndex;not null" json:"sku" binding:"required"`
	Unit      string          `gorm:"size:50" json:"unit"`
	Price     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"price"`
	IsActive  *bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewProduct struct {
	Name  string          `json:"name" binding:"required"`
	Sku   string          `json:"sku" binding:"required"`
	Unit  string          `json:"unit"`
	Price decimal.Decimal `json:"price"`
}

func (input NewProduct) validate(ctx context.Context, exceptId int) error {
	if input.Price.IsNegative() {
		return fmt.Errorf("%w: price must not be negative", utils.ErrValidation)
	}
	if err := utils.ValidateUnique[Product](ctx, "sku", input.Sku, exceptId); err != nil {
		return fmt.Errorf("%w: duplicate sku", utils.ErrConflict)
	}
	return nil
}

func CreateProduct(ctx context.Context, input *NewProduct) (*Product, error) {
	db := config.GetDB()

	if err := input.validate(ctx, 0); err != nil {
		return nil, err
	}

	product := Product{
		Name:     input.Name,
		Sku:      input.Sku,
		Unit:     input.Unit,
		Price:    input.Price,
		IsActive: utils.NewTrue(),
	}
	if err := db.WithContext(ctx).Create(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func UpdateProduct(ctx context.Context, id int, input *NewProduct) (*Product, error) {
	db := config.GetDB()
	logger := config.GetLogger()

	if err := input.validate(ctx, id); err != nil {
		return nil, err
	}
	existing, err := utils.FetchModel[Product](ctx, id)
	if err != nil {
		return nil, err
	}

	existing.Name = input.Name
	existing.Sku = input.Sku
	existing.Unit = input.Unit
	existing.Price = input.Price

	if err := db.WithContext(ctx).Save(existing).Error; err != nil {
		return nil, err
	}

	if err := utils.RemoveRedisItem[Product](id); err != nil {
		config.LogError(logger, "product", "UpdateProduct", "clearing cache", id, err)
	}
	return existing, nil
}

func ToggleProductActive(ctx context.Context, id int, isActive bool) (*Product, error) {
	db := config.GetDB()
	logger := config.GetLogger()

	existing, err := utils.FetchModel[Product](ctx, id)
	if err != nil {
		return nil, err
	}
	existing.IsActive = &isActive
	if err := db.WithContext(ctx).Model(existing).Update("is_active", isActive).Error; err != nil {
		return nil, err
	}

	if err := utils.RemoveRedisItem[Product](id); err != nil {
		config.LogError(logger, "product", "ToggleProductActive", "clearing cache", id, err)
	}
	return existing, nil
}

// GetProduct reads through the redis cache when enabled.
func GetProduct(ctx context.Context, id int) (*Product, error) {
	logger := config.GetLogger()

	if config.ProductCacheEnabled() {
		cached, err := utils.RetrieveRedis[Product](id)
		if err != nil {
			config.LogError(logger, "product", "GetProduct", "reading cache", id, err)
		}
		if cached != nil {
			return cached, nil
		}
	}

	product, err := utils.FetchModel[Product](ctx, id)
	if err != nil {
		return nil, err
	}

	if config.ProductCacheEnabled() {
		if err := utils.StoreRedis[Product](product, product.ID); err != nil {
			config.LogError(logger, "product", "GetProduct", "writing cache", id, err)
		}
	}
	return product, nil
}

func ListProducts(ctx context.Context) ([]*Product, error) {
	return utils.FetchAllModels[Product](ctx)
}
