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
)

type Promotion struct {
	ID             int             `gorm:"primary_key" json:"id"`
	Code           string          `gorm:"size:100;uniqueIndex;not null" json:"code" binding:"required"`
	Kind           PromotionKind   `gorm:"type:enum('Percent','Fixed');not null" json:"kind" binding:"required"`
	Value          decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"value"`
	StartsAt       time.Time       `gorm:"not null" json:"starts_at" binding:"required"`
	EndsAt         time.Time       `gorm:"not null" json:"ends_at" binding:"required"`
	MinOrderAmount decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"min_order_amount"`
	UsageLimit     int             `gorm:"not null;default:0" json:"usage_limit"`
	UsedCount      int             `gorm:"not null;default:0" json:"used_count"`
	Status         PromotionStatus `gorm:"type:enum('Active','Inactive');not null;default:'Active'" json:"status"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewPromotion struct {
	Code           string          `json:"code" binding:"required"`
	Kind           PromotionKind   `json:"kind" binding:"required"`
	Value          decimal.Decimal `json:"value"`
	StartsAt       time.Time       `json:"starts_at" binding:"required"`
	EndsAt         time.Time       `json:"ends_at" binding:"required"`
	MinOrderAmount decimal.Decimal `json:"min_order_amount"`
	UsageLimit     int             `json:"usage_limit"`
}

var oneHundred = decimal.NewFromInt(100)

func (input NewPromotion) validate(ctx context.Context) error {
	switch input.Kind {
	case PromotionKindPercent:
		if !input.Value.IsPositive() || input.Value.GreaterThan(oneHundred) {
			return fmt.Errorf("%w: percent value must be between 0 and 100", utils.ErrValidation)
		}
	case PromotionKindFixed:
		if !input.Value.IsPositive() {
			return fmt.Errorf("%w: fixed value must be positive", utils.ErrValidation)
		}
	default:
		return fmt.Errorf("%w: invalid promotion kind", utils.ErrValidation)
	}
	if !input.EndsAt.After(input.StartsAt) {
		return fmt.Errorf("%w: promotion window must end after it starts", utils.ErrValidation)
	}
	if input.UsageLimit < 0 {
		return fmt.Errorf("%w: usage limit must not be negative", utils.ErrValidation)
	}
	if input.MinOrderAmount.IsNegative() {
		return fmt.Errorf("%w: minimum order amount must not be negative", utils.ErrValidation)
	}
	if err := utils.ValidateUnique[Promotion](ctx, "code", input.Code, 0); err != nil {
		return fmt.Errorf("%w: duplicate promotion code", utils.ErrConflict)
	}
	return nil
}

func CreatePromotion(ctx context.Context, input *NewPromotion) (*Promotion, error) {
	db := config.GetDB()

	if err := input.validate(ctx); err != nil {
		return nil, err
	}

	promotion := Promotion{
		Code:           input.Code,
		Kind:           input.Kind,
		Value:          input.Value,
		StartsAt:       input.StartsAt,
		EndsAt:         input.EndsAt,
		MinOrderAmount: input.MinOrderAmount,
		UsageLimit:     input.UsageLimit,
		UsedCount:      0,
		Status:         PromotionStatusActive,
	}
	if err := db.WithContext(ctx).Create(&promotion).Error; err != nil {
		return nil, err
	}
	return &promotion, nil
}

// CalculateDiscount is the pure discount rule. Percent takes value% of the
// amount, Fixed takes the value itself; either way the discount is clamped
// to [0, amount] so a promotion can never push a total negative.
func CalculateDiscount(kind PromotionKind, value decimal.Decimal, amount decimal.Decimal) decimal.Decimal {
	if !amount.IsPositive() {
		return decimal.Zero
	}

	var discount decimal.Decimal
	switch kind {
	case PromotionKindPercent:
		discount = amount.Mul(value).Div(oneHundred)
	case PromotionKindFixed:
		discount = value
	default:
		return decimal.Zero
	}

	if discount.IsNegative() {
		return decimal.Zero
	}
	if discount.GreaterThan(amount) {
		return amount
	}
	return discount
}

// CheckUsable runs the eligibility rules in a fixed order so callers get a
// stable first-failure: status, then window, then minimum amount, then usage.
// The first two are states of the promotion itself and surface as
// InvalidState; the last two depend on the order and surface as validation
// failures.
func (p Promotion) CheckUsable(orderAmount decimal.Decimal, at time.Time) error {
	if p.Status != PromotionStatusActive {
		return fmt.Errorf("%w: promotion is not active", utils.ErrInvalidState)
	}
	if at.Before(p.StartsAt) || at.After(p.EndsAt) {
		return fmt.Errorf("%w: promotion is outside its validity window", utils.ErrInvalidState)
	}
	if orderAmount.LessThan(p.MinOrderAmount) {
		return fmt.Errorf("%w: order amount below promotion minimum", utils.ErrValidation)
	}
	if p.UsageLimit > 0 && p.UsedCount >= p.UsageLimit {
		return fmt.Errorf("%w: promotion usage limit reached", utils.ErrValidation)
	}
	return nil
}

// GetPromotionByCode reads through the redis cache when enabled.
func GetPromotionByCode(ctx context.Context, code string) (*Promotion, error) {
	db := config.GetDB()
	logger := config.GetLogger()

	if config.PromotionCacheEnabled() {
		cached, err := utils.RetrieveRedisByCode[Promotion](code)
		if err != nil {
			config.LogError(logger, "promotion", "GetPromotionByCode", "reading cache", code, err)
		}
		if cached != nil {
			return cached, nil
		}
	}

	var promotion Promotion
	err := db.WithContext(ctx).Where("code = ?", code).First(&promotion).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrNotFound
		}
		return nil, err
	}

	if config.PromotionCacheEnabled() {
		if err := utils.StoreRedisByCode[Promotion](&promotion, code); err != nil {
			config.LogError(logger, "promotion", "GetPromotionByCode", "writing cache", code, err)
		}
	}
	return &promotion, nil
}

func GetPromotion(ctx context.Context, id int) (*Promotion, error) {
	return utils.FetchModel[Promotion](ctx, id)
}

// ValidatePromotion is the advisory pre-check: would this code apply to an
// order of the given amount right now. It may read a cached row, so the
// answer is not binding; ApplyPromotion and Checkout re-check against the
// database before anything is committed.
func ValidatePromotion(ctx context.Context, code string, orderAmount decimal.Decimal, at time.Time) (*Promotion, decimal.Decimal, error) {
	promotion, err := GetPromotionByCode(ctx, code)
	if err != nil {
		return nil, decimal.Zero, err
	}
	if err := promotion.CheckUsable(orderAmount, at); err != nil {
		return nil, decimal.Zero, err
	}
	discount := CalculateDiscount(promotion.Kind, promotion.Value, orderAmount)
	return promotion, discount, nil
}

// incrementPromotionUsage bumps used_count inside the caller's transaction.
// The WHERE clause re-checks the limit so two concurrent checkouts cannot
// both take the last slot; zero rows affected means the limit is gone.
func incrementPromotionUsage(tx *gorm.DB, promotionId int) error {
	result := tx.Model(&Promotion{}).
		Where("id = ? AND (usage_limit = 0 OR used_count < usage_limit)", promotionId).
		Update("used_count", gorm.Expr("used_count + 1"))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: promotion usage limit reached", utils.ErrConflict)
	}
	return nil
}

// DeactivateExpiredPromotions flips Active promotions whose window has
// passed to Inactive. Safe to run repeatedly; a second sweep matches
// nothing. Returns how many rows were flipped.
func DeactivateExpiredPromotions(ctx context.Context, at time.Time) (int64, error) {
	db := config.GetDB()
	logger := config.GetLogger()

	result := db.WithContext(ctx).Model(&Promotion{}).
		Where("status = ? AND ends_at < ?", PromotionStatusActive, at).
		Update("status", PromotionStatusInactive)
	if result.Error != nil {
		config.LogError(logger, "promotion", "DeactivateExpiredPromotions", "sweeping expired", at, result.Error)
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
