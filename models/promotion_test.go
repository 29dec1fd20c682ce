package models

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mmdatafocus/retail_backend/utils"
	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestCalculateDiscountPercent(t *testing.T) {
	cases := []struct {
		name   string
		value  string
		amount string
		want   string
	}{
		{"ten percent", "10", "200", "20"},
		{"hundred percent equals amount", "100", "59.99", "59.99"},
		{"fractional percent", "12.5", "80", "10"},
		{"zero amount", "10", "0", "0"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := CalculateDiscount(PromotionKindPercent, d(tc.value), d(tc.amount))
			if !got.Equal(d(tc.want)) {
				t.Fatalf("got %s, want %s", got, tc.want)
			}
		})
	}
}

func TestCalculateDiscountFixed(t *testing.T) {
	// fixed discount larger than the order clamps to the order amount
	got := CalculateDiscount(PromotionKindFixed, d("50"), d("30"))
	if !got.Equal(d("30")) {
		t.Fatalf("got %s, want 30", got)
	}

	got = CalculateDiscount(PromotionKindFixed, d("50"), d("120"))
	if !got.Equal(d("50")) {
		t.Fatalf("got %s, want 50", got)
	}
}

func TestCalculateDiscountNeverNegative(t *testing.T) {
	if got := CalculateDiscount(PromotionKindFixed, d("10"), d("-5")); !got.IsZero() {
		t.Fatalf("negative amount: got %s, want 0", got)
	}
	if got := CalculateDiscount(PromotionKindPercent, d("-10"), d("100")); !got.IsZero() {
		t.Fatalf("negative value: got %s, want 0", got)
	}
}

func testPromotion() Promotion {
	now := time.Now()
	return Promotion{
		ID:             1,
		Code:           "WELCOME10",
		Kind:           PromotionKindPercent,
		Value:          d("10"),
		StartsAt:       now.Add(-24 * time.Hour),
		EndsAt:         now.Add(24 * time.Hour),
		MinOrderAmount: d("100"),
		UsageLimit:     5,
		UsedCount:      0,
		Status:         PromotionStatusActive,
	}
}

func TestCheckUsablePasses(t *testing.T) {
	p := testPromotion()
	if err := p.CheckUsable(d("150"), time.Now()); err != nil {
		t.Fatalf("expected usable, got %v", err)
	}
}

func TestCheckUsableOrderedFailures(t *testing.T) {
	now := time.Now()

	// inactive wins over every later rule
	p := testPromotion()
	p.Status = PromotionStatusInactive
	p.UsedCount = p.UsageLimit
	err := p.CheckUsable(d("1"), now.Add(48*time.Hour))
	if err == nil || !strings.Contains(err.Error(), "not active") {
		t.Fatalf("expected not-active failure first, got %v", err)
	}
	if !errors.Is(err, utils.ErrInvalidState) {
		t.Fatalf("inactive promotion should be an invalid-state error, got %v", err)
	}

	// window failure before minimum amount
	p = testPromotion()
	err = p.CheckUsable(d("1"), now.Add(48*time.Hour))
	if err == nil || !strings.Contains(err.Error(), "window") {
		t.Fatalf("expected window failure, got %v", err)
	}
	if !errors.Is(err, utils.ErrInvalidState) {
		t.Fatalf("out-of-window promotion should be an invalid-state error, got %v", err)
	}

	// minimum amount before usage
	p = testPromotion()
	p.UsedCount = p.UsageLimit
	err = p.CheckUsable(d("1"), now)
	if err == nil || !strings.Contains(err.Error(), "minimum") {
		t.Fatalf("expected minimum failure, got %v", err)
	}
	if !errors.Is(err, utils.ErrValidation) {
		t.Fatalf("below-minimum order should be a validation error, got %v", err)
	}

	// usage last
	p = testPromotion()
	p.UsedCount = p.UsageLimit
	err = p.CheckUsable(d("150"), now)
	if err == nil || !strings.Contains(err.Error(), "usage limit") {
		t.Fatalf("expected usage-limit failure, got %v", err)
	}
	if !errors.Is(err, utils.ErrValidation) {
		t.Fatalf("exhausted usage should be a validation error, got %v", err)
	}
}

func TestCheckUsableUnlimitedUsage(t *testing.T) {
	p := testPromotion()
	p.UsageLimit = 0
	p.UsedCount = 100000
	if err := p.CheckUsable(d("150"), time.Now()); err != nil {
		t.Fatalf("usage_limit=0 means unlimited, got %v", err)
	}
}

func TestCheckUsableWindowBoundaries(t *testing.T) {
	p := testPromotion()

	if err := p.CheckUsable(d("150"), p.StartsAt); err != nil {
		t.Fatalf("start instant should be inside window, got %v", err)
	}
	if err := p.CheckUsable(d("150"), p.EndsAt); err != nil {
		t.Fatalf("end instant should be inside window, got %v", err)
	}
	if err := p.CheckUsable(d("150"), p.EndsAt.Add(time.Second)); err == nil {
		t.Fatal("past end should fail")
	}
	if err := p.CheckUsable(d("150"), p.StartsAt.Add(-time.Second)); err == nil {
		t.Fatal("before start should fail")
	}
}

func TestCheckUsableMinAmountBoundary(t *testing.T) {
	p := testPromotion()
	// exactly the minimum qualifies
	if err := p.CheckUsable(d("100"), time.Now()); err != nil {
		t.Fatalf("amount equal to minimum should qualify, got %v", err)
	}
	if err := p.CheckUsable(d("99.99"), time.Now()); err == nil {
		t.Fatal("amount below minimum should fail")
	}
}
