package models_test

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"bitbucket.org/backstitch/garments_backend/config"
	"bitbucket.org/backstitch/garments_backend/models"
	"bitbucket.org/backstitch/garments_backend/workflow"
	"github.com/shopspring/decimal"
)

// End-to-end fulfillment flow against a real MySQL + Redis: order numbers are
// sequential per financial year, every order gets a pending shadow, partial
// deliveries convert into sales logs and converge, and the stock ledger
// reflects supplies minus sales.
func TestOrderFulfillment_EndToEnd(t *testing.T) {
	ctx, actor := setupIntegration(t)

	product, err := models.CreateProduct(ctx, actor, &models.NewProduct{
		Name:      "Crew Tee",
		Sku:       "CT-100",
		UnitPrice: decimal.NewFromInt(350),
		Sizes:     models.StringList{"S", "M", "L"},
		Colors:    models.ColorList{{Color: "Navy", ColourCode: 12}},
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	// Stock in 20 S / 20 M.
	_, err = models.CreateInwardLog(ctx, actor, &models.NewInwardLog{
		ProductId: product.ID,
		Color:     "Navy",
		Sizes:     models.SizeMap{"S": 20, "M": 20},
		Date:      "2025-06-01",
		Category:  models.InwardCategorySupply,
	})
	if err != nil {
		t.Fatalf("create inward log: %v", err)
	}

	first, err := models.CreateOrder(ctx, actor, &models.NewOrder{
		ProductId:  product.ID,
		Date:       "2025-06-10",
		Color:      "Navy",
		Sizes:      models.SizeMap{"S": 10, "M": 6},
		AgencyName: "North Agency",
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if first.OrderNumber != 1 || first.FinancialYear != "2025-26" {
		t.Fatalf("first order got number %d / %s, want 1 / 2025-26", first.OrderNumber, first.FinancialYear)
	}

	second, err := models.CreateOrder(ctx, actor, &models.NewOrder{
		ProductId: product.ID,
		Date:      "2025-06-11",
		Color:     "Navy",
		Sizes:     models.SizeMap{"S": 2},
	})
	if err != nil {
		t.Fatalf("create second order: %v", err)
	}
	if second.OrderNumber != 2 {
		t.Fatalf("second order got number %d, want 2", second.OrderNumber)
	}

	pending := pendingFor(t, ctx, product.ID, first.OrderNumber)
	if pending.Sizes["S"] != 10 || pending.Sizes["M"] != 6 {
		t.Fatalf("pending mirror must copy the order sizes, got %v", pending.Sizes)
	}

	// Partial delivery; over-asking on M gets clamped.
	result, err := workflow.DeliverPendingOrder(ctx, actor, pending.ID, models.SizeMap{"S": 4, "M": 100}, "2025-06-20")
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if result.Status != models.DeliveryStatusPartiallyDelivered {
		t.Fatalf("status = %s, want partially_delivered", result.Status)
	}
	if result.Delivered["M"] != 6 {
		t.Fatalf("M must clamp to the pending 6, delivered %v", result.Delivered)
	}
	if result.Remaining["S"] != 6 {
		t.Fatalf("remaining = %v, want S:6", result.Remaining)
	}
	if _, ok := result.Remaining["M"]; ok {
		t.Fatalf("fully delivered size must leave the remainder, got %v", result.Remaining)
	}

	// Second delivery completes the order and removes the pending row.
	result, err = workflow.DeliverPendingOrder(ctx, actor, pending.ID, models.SizeMap{"S": 6}, "2025-06-25")
	if err != nil {
		t.Fatalf("second deliver: %v", err)
	}
	if result.Status != models.DeliveryStatusDelivered || result.Action != "removed" {
		t.Fatalf("final delivery = %s/%s, want delivered/removed", result.Status, result.Action)
	}
	if p, _ := models.GetPendingOrder(ctx, pending.ID); p != nil {
		t.Fatalf("pending row must be gone after full delivery")
	}

	fully, delivered, err := first.DeliveredStatus(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !fully {
		t.Fatalf("order must read as fully delivered, delivered=%v", delivered)
	}

	// Ledger: supply 20/20 minus sales 10/6.
	matrix, err := models.GetStockMatrix(ctx, product.ID)
	if err != nil {
		t.Fatal(err)
	}
	if matrix["Navy"]["S"] != 10 || matrix["Navy"]["M"] != 14 {
		t.Fatalf("stock matrix = %v, want Navy S:10 M:14", matrix["Navy"])
	}

	// A fully delivered order rejects further edits.
	newSizes := models.SizeMap{"S": 12, "M": 6}
	if _, err := models.UpdateOrderById(ctx, actor, first.ID, &models.UpdateOrder{Sizes: newSizes}); err != models.ErrOrderFullyDelivered {
		t.Fatalf("edit of fully delivered order: err = %v, want ErrOrderFullyDelivered", err)
	}
}

func TestOrderUpdate_SyncsPendingMirror(t *testing.T) {
	ctx, actor := setupIntegration(t)

	product, err := models.CreateProduct(ctx, actor, &models.NewProduct{
		Name:   "Polo",
		Sku:    "PL-200",
		Sizes:  models.StringList{"S", "M"},
		Colors: models.ColorList{{Color: "Black", ColourCode: 3}},
	})
	if err != nil {
		t.Fatal(err)
	}

	order, err := models.CreateOrder(ctx, actor, &models.NewOrder{
		ProductId: product.ID,
		Date:      "2025-05-01",
		Color:     "Black",
		Sizes:     models.SizeMap{"S": 8, "M": 4},
	})
	if err != nil {
		t.Fatal(err)
	}

	pending := pendingFor(t, ctx, product.ID, order.OrderNumber)
	if _, err := workflow.DeliverPendingOrder(ctx, actor, pending.ID, models.SizeMap{"S": 3}, "2025-05-10"); err != nil {
		t.Fatal(err)
	}

	// Below the delivered quantity: rejected, nothing changes.
	bad := models.SizeMap{"S": 2, "M": 4}
	if _, err := models.UpdateOrderById(ctx, actor, order.ID, &models.UpdateOrder{Sizes: bad}); err != models.ErrQuantityBelowDelivered {
		t.Fatalf("err = %v, want ErrQuantityBelowDelivered", err)
	}

	// Valid edit: pending recomputes as new ordered minus delivered.
	good := models.SizeMap{"S": 10, "M": 2}
	if _, err := models.UpdateOrderById(ctx, actor, order.ID, &models.UpdateOrder{Sizes: good}); err != nil {
		t.Fatal(err)
	}
	pending = pendingFor(t, ctx, product.ID, order.OrderNumber)
	if pending.Sizes["S"] != 7 || pending.Sizes["M"] != 2 {
		t.Fatalf("pending after edit = %v, want S:7 M:2", pending.Sizes)
	}
}

func TestOrdersBulk_ReservesDistinctNumbers(t *testing.T) {
	ctx, actor := setupIntegration(t)

	product, err := models.CreateProduct(ctx, actor, &models.NewProduct{
		Name:   "Hoodie",
		Sku:    "HD-300",
		Sizes:  models.StringList{"M"},
		Colors: models.ColorList{{Color: "Grey", ColourCode: 7}},
	})
	if err != nil {
		t.Fatal(err)
	}

	inputs := []*models.NewOrder{
		{ProductId: product.ID, Date: "2025-06-01", Color: "Grey", Sizes: models.SizeMap{"M": 1}},
		{ProductId: product.ID, Date: "2025-06-02", Color: "Grey", Sizes: models.SizeMap{"M": 2}},
		{ProductId: product.ID, Date: "2026-02-01", Color: "Grey", Sizes: models.SizeMap{"M": 3}},
		{ProductId: product.ID, Date: "2026-04-01", Color: "Grey", Sizes: models.SizeMap{"M": 4}},
	}
	orders, err := models.CreateOrdersBulk(ctx, actor, inputs)
	if err != nil {
		t.Fatalf("bulk create: %v", err)
	}

	seen := map[string]bool{}
	for _, o := range orders {
		key := models.OrderKey(o.OrderNumber, o.FinancialYear)
		if seen[key] {
			t.Fatalf("duplicate order key %s in one batch", key)
		}
		seen[key] = true
	}
	// Feb 2026 is still FY 2025-26; Apr 2026 starts 2026-27 at number 1.
	if orders[2].FinancialYear != "2025-26" || orders[2].OrderNumber != 3 {
		t.Fatalf("order 3 got %d/%s, want 3/2025-26", orders[2].OrderNumber, orders[2].FinancialYear)
	}
	if orders[3].FinancialYear != "2026-27" || orders[3].OrderNumber != 1 {
		t.Fatalf("order 4 got %d/%s, want 1/2026-27", orders[3].OrderNumber, orders[3].FinancialYear)
	}
}

// A pending row whose parent order is gone must still deliver, falling back
// to subtracting from its own sizes.
func TestDelivery_OrphanedPendingRow(t *testing.T) {
	ctx, actor := setupIntegration(t)

	product, err := models.CreateProduct(ctx, actor, &models.NewProduct{
		Name:   "Linen Shirt",
		Sku:    "LN-600",
		Sizes:  models.StringList{"S", "M"},
		Colors: models.ColorList{{Color: "Sand", ColourCode: 5}},
	})
	if err != nil {
		t.Fatal(err)
	}

	// Left behind by out-of-band cleanup: no order carries this number.
	orphan := models.PendingOrder{
		ProductId:     product.ID,
		Date:          time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
		Color:         "Sand",
		ColourCode:    5,
		Sizes:         models.SizeMap{"S": 5, "M": 2},
		OrderNumber:   99,
		FinancialYear: "2025-26",
	}
	if err := config.GetDB().WithContext(ctx).Create(&orphan).Error; err != nil {
		t.Fatal(err)
	}

	result, err := workflow.DeliverPendingOrder(ctx, actor, orphan.ID, models.SizeMap{"S": 2}, "2025-07-15")
	if err != nil {
		t.Fatalf("orphan delivery must still land: %v", err)
	}
	if result.Status != models.DeliveryStatusPartiallyDelivered {
		t.Fatalf("status = %s, want partially_delivered", result.Status)
	}
	if result.Remaining["S"] != 3 || result.Remaining["M"] != 2 {
		t.Fatalf("remaining = %v, want S:3 M:2", result.Remaining)
	}

	// Delivering the rest removes the orphan like any other pending row.
	result, err = workflow.DeliverPendingOrder(ctx, actor, orphan.ID, models.SizeMap{"S": 3, "M": 2}, "2025-07-20")
	if err != nil {
		t.Fatal(err)
	}
	if result.Status != models.DeliveryStatusDelivered || result.Action != "removed" {
		t.Fatalf("final orphan delivery = %s/%s, want delivered/removed", result.Status, result.Action)
	}
	if p, _ := models.GetPendingOrder(ctx, orphan.ID); p != nil {
		t.Fatalf("orphan row must be gone after full delivery")
	}
}

// Concurrent creators must never mint the same (order_number, financial_year):
// the sequence lock is held until the inserting transaction commits.
func TestOrdersConcurrent_DistinctNumbers(t *testing.T) {
	ctx, actor := setupIntegration(t)

	product, err := models.CreateProduct(ctx, actor, &models.NewProduct{
		Name:   "Jacket",
		Sku:    "JK-700",
		Sizes:  models.StringList{"M"},
		Colors: models.ColorList{{Color: "Olive", ColourCode: 8}},
	})
	if err != nil {
		t.Fatal(err)
	}

	const writers = 6
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := models.CreateOrder(ctx, actor, &models.NewOrder{
				ProductId: product.ID,
				Date:      "2025-07-01",
				Color:     "Olive",
				Sizes:     models.SizeMap{"M": 1},
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent create: %v", err)
		}
	}

	orders, err := models.GetOrdersByProduct(ctx, product.ID, models.OrderFilter{}, 100, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(orders) != writers {
		t.Fatalf("got %d orders, want %d", len(orders), writers)
	}
	seen := map[int]bool{}
	for _, o := range orders {
		if seen[o.OrderNumber] {
			t.Fatalf("order number %d minted twice", o.OrderNumber)
		}
		seen[o.OrderNumber] = true
	}
}

func pendingFor(t *testing.T, ctx context.Context, productId int, orderNumber int) *models.PendingOrder {
	t.Helper()
	pendings, err := models.GetPendingOrdersByProduct(ctx, productId, 100, 0)
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range pendings {
		if p.OrderNumber == orderNumber {
			return p
		}
	}
	t.Fatalf("no pending order for order number %d", orderNumber)
	return nil
}

func setupIntegration(t *testing.T) (context.Context, models.Actor) {
	t.Helper()
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "garments_test")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	return context.Background(), models.Actor{UserId: 1, UserName: "test"}
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("garments-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("garments-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=garments_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
