package models_test

import (
	"context"
	"testing"

	"bitbucket.org/backstitch/garments_backend/models"
)

// Deleting a movement log must undo exactly the stock it applied: each kept
// row returns to the value it had before the log existed, regardless of other
// logs around it.
func TestStockLedger_DeleteRestoresStock(t *testing.T) {
	ctx, actor := setupIntegration(t)

	product, err := models.CreateProduct(ctx, actor, &models.NewProduct{
		Name:   "Oxford Shirt",
		Sku:    "OX-400",
		Sizes:  models.StringList{"S", "M"},
		Colors: models.ColorList{{Color: "Rust", ColourCode: 9}},
	})
	if err != nil {
		t.Fatal(err)
	}

	first, err := models.CreateInwardLog(ctx, actor, &models.NewInwardLog{
		ProductId: product.ID,
		Color:     "Rust",
		Sizes:     models.SizeMap{"S": 5, "M": 3},
		Date:      "2025-06-01",
		Category:  models.InwardCategorySupply,
	})
	if err != nil {
		t.Fatal(err)
	}
	second, err := models.CreateInwardLog(ctx, actor, &models.NewInwardLog{
		ProductId: product.ID,
		Color:     "Rust",
		Sizes:     models.SizeMap{"S": 4},
		Date:      "2025-06-02",
		Category:  models.InwardCategorySupply,
	})
	if err != nil {
		t.Fatal(err)
	}

	matrix := stockFor(t, ctx, product.ID)
	if matrix["Rust"]["S"] != 9 || matrix["Rust"]["M"] != 3 {
		t.Fatalf("after two supplies stock = %v, want S:9 M:3", matrix["Rust"])
	}

	// Deleting the first log must leave exactly the second's contribution.
	if _, err := models.DeleteInwardLogById(ctx, actor, first.ID); err != nil {
		t.Fatal(err)
	}
	matrix = stockFor(t, ctx, product.ID)
	if matrix["Rust"]["S"] != 4 || matrix["Rust"]["M"] != 0 {
		t.Fatalf("after deleting first supply stock = %v, want S:4 M:0", matrix["Rust"])
	}

	// Create-then-delete nets to zero on every affected row.
	if _, err := models.DeleteInwardLogById(ctx, actor, second.ID); err != nil {
		t.Fatal(err)
	}
	matrix = stockFor(t, ctx, product.ID)
	if matrix["Rust"]["S"] != 0 || matrix["Rust"]["M"] != 0 {
		t.Fatalf("after deleting both supplies stock = %v, want all zero", matrix["Rust"])
	}
}

func TestStockLedger_SalesLogRoundTrip(t *testing.T) {
	ctx, actor := setupIntegration(t)

	product, err := models.CreateProduct(ctx, actor, &models.NewProduct{
		Name:   "Chino",
		Sku:    "CH-500",
		Sizes:  models.StringList{"M", "L"},
		Colors: models.ColorList{{Color: "Khaki", ColourCode: 4}},
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := models.CreateInwardLog(ctx, actor, &models.NewInwardLog{
		ProductId: product.ID,
		Color:     "Khaki",
		Sizes:     models.SizeMap{"M": 10},
		Date:      "2025-06-01",
		Category:  models.InwardCategorySupply,
	}); err != nil {
		t.Fatal(err)
	}

	sale, err := models.CreateSalesLog(ctx, actor, &models.NewSalesLog{
		ProductId: product.ID,
		Color:     "Khaki",
		Sizes:     models.SizeMap{"M": 4},
		Date:      "2025-06-05",
	})
	if err != nil {
		t.Fatal(err)
	}
	if matrix := stockFor(t, ctx, product.ID); matrix["Khaki"]["M"] != 6 {
		t.Fatalf("after sale stock = %v, want M:6", matrix["Khaki"])
	}

	if _, err := models.DeleteSalesLogById(ctx, actor, sale.ID); err != nil {
		t.Fatal(err)
	}
	if matrix := stockFor(t, ctx, product.ID); matrix["Khaki"]["M"] != 10 {
		t.Fatalf("deleting the sale must restore stock, got %v want M:10", matrix["Khaki"])
	}
}

func stockFor(t *testing.T, ctx context.Context, productId int) models.StockMatrix {
	t.Helper()
	matrix, err := models.GetStockMatrix(ctx, productId)
	if err != nil {
		t.Fatal(err)
	}
	return matrix
}
