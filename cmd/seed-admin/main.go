package main

import (
	"context"
	"log"
	"os"

	"github.com/mmdatafocus/retail_backend/config"
	"github.com/mmdatafocus/retail_backend/models"
)

// Creates the initial admin user from ADMIN_USERNAME / ADMIN_PASSWORD.
func main() {
	username := os.Getenv("ADMIN_USERNAME")
	password := os.Getenv("ADMIN_PASSWORD")
	if username == "" || password == "" {
		log.Fatal("ADMIN_USERNAME and ADMIN_PASSWORD are required")
	}

	config.ConnectDatabaseWithRetry()
	models.MigrateTable()

	user, err := models.CreateUser(context.Background(), &models.NewUser{
		Username: username,
		Password: password,
		Name:     "Administrator",
		Role:     "admin",
	})
	if err != nil {
		log.Fatalf("seeding admin failed: %v", err)
	}
	log.Printf("created admin user %s (id=%d)", user.Username, user.ID)
}
