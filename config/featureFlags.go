package config

import (
	"os"
	"strings"
)

func boolFromEnv(key string, def bool) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	if v == "" {
		return def
	}
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

// CheckoutLockEnabled guards the redis lock taken around order checkout.
// The MySQL row locks stay authoritative either way; the redis lock only
// shortcuts duplicate submits before they reach the database.
func CheckoutLockEnabled() bool {
	return boolFromEnv("FEATURE_CHECKOUT_LOCK", true)
}

// PromotionCacheEnabled toggles redis caching of promotion lookups by code.
func PromotionCacheEnabled() bool {
	return boolFromEnv("FEATURE_PROMOTION_CACHE", true)
}

// ProductCacheEnabled toggles redis caching of product reads.
func ProductCacheEnabled() bool {
	return boolFromEnv("FEATURE_PRODUCT_CACHE", true)
}
