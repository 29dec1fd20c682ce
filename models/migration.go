package models

import (
	"log"

	"github.com/mmdatafocus/retail_backend/config"
)

// MigrateTable runs gorm auto-migration for every table in the schema.
func MigrateTable() {
	db := config.GetDB()
	err := db.AutoMigrate(
		&User{},
		&Customer{},
		&Supplier{},
		&Product{},
		&Inventory{},
		&Order{},
		&OrderItem{},
		&Payment{},
		&Promotion{},
		&Purchase{},
		&PurchaseItem{},
		&InventoryAdjustment{},
	)
	if err != nil {
		log.Printf("auto migration failed: %v", err)
	}
}
