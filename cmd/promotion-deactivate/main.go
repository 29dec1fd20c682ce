package main

import (
	"context"
	"log"
	"time"

	"github.com/mmdatafocus/retail_backend/config"
	"github.com/mmdatafocus/retail_backend/models"
)

// Sweeps Active promotions whose window has passed. Intended to run on a
// schedule (cron); safe to run as often as needed.
func main() {
	config.ConnectDatabaseWithRetry()

	count, err := models.DeactivateExpiredPromotions(context.Background(), time.Now())
	if err != nil {
		log.Fatalf("sweep failed: %v", err)
	}
	log.Printf("deactivated %d expired promotion(s)", count)
}
