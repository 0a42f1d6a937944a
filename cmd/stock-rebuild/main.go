package main

import (
	"context"
	"flag"
	"log"

	"bitbucket.org/backstitch/garments_backend/config"
	"bitbucket.org/backstitch/garments_backend/workflow"
	"github.com/joho/godotenv"
)

// Rebuilds the derived stock ledger by replaying inward and sales logs.
// Run against a quiesced database; concurrent writers are fenced per product
// by the rebuild lock but the result is only meaningful if no new events
// arrive mid-replay.
func main() {
	productId := flag.Int("product", 0, "rebuild a single product id (0 = all products)")
	flag.Parse()

	godotenv.Load()
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	logger := config.GetLogger()
	ctx := context.Background()

	var err error
	if *productId > 0 {
		err = workflow.RebuildStockForProduct(ctx, logger, *productId)
	} else {
		err = workflow.RebuildAllStock(ctx, logger)
	}
	if err != nil {
		log.Fatal(err)
	}
	log.Println("stock rebuild complete")
}
