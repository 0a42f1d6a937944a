package models

import (
	"log"

	"bitbucket.org/backstitch/garments_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Product{},
		&InwardLog{}, &SalesLog{},
		&Order{}, &PendingOrder{},
		&ProductColorStock{},
		&History{},
		&User{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
