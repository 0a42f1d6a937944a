package main

import (
	"context"
	"flag"
	"log"
	"os"

	"bitbucket.org/backstitch/garments_backend/config"
	"bitbucket.org/backstitch/garments_backend/models"
	"github.com/joho/godotenv"
)

// Creates the initial admin user. Intended for first deploy; fails if the
// username is already taken.
func main() {
	username := flag.String("username", "admin", "admin username")
	name := flag.String("name", "Administrator", "display name")
	flag.Parse()

	godotenv.Load()

	password := os.Getenv("SEED_ADMIN_PASSWORD")
	if password == "" {
		log.Fatal("SEED_ADMIN_PASSWORD is required")
	}

	config.ConnectDatabaseWithRetry()

	models.MigrateTable()

	active := true
	user, err := models.CreateUser(context.Background(), models.SystemActor, &models.NewUser{
		Username: *username,
		Name:     *name,
		Password: password,
		IsActive: &active,
		Role:     models.UserRoleAdmin,
	})
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("admin user created: id=%d username=%s", user.ID, user.Username)
}
