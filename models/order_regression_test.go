package models_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/mmdatafocus/retail_backend/config"
	"github.com/mmdatafocus/retail_backend/models"
	"github.com/mmdatafocus/retail_backend/models/reports"
	"github.com/mmdatafocus/retail_backend/utils"
	"github.com/shopspring/decimal"
)

// setupIntegration boots throwaway MySQL + redis containers, wires env and
// connects the config singletons. Skips unless INTEGRATION_TESTS is set.
func setupIntegration(t *testing.T) context.Context {
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
	t.Setenv("DB_NAME", "retail_test")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	models.MigrateTable()

	ctx := context.Background()
	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetUsernameInContext(ctx, "test@local")
	return ctx
}

func mustCreateProduct(t *testing.T, ctx context.Context, sku string, price string) *models.Product {
	t.Helper()
	p, err := models.CreateProduct(ctx, &models.NewProduct{
		Name:  "Test " + sku,
		Sku:   sku,
		Unit:  "pc",
		Price: decimal.RequireFromString(price),
	})
	if err != nil {
		t.Fatalf("CreateProduct(%s): %v", sku, err)
	}
	return p
}

func mustStock(t *testing.T, ctx context.Context, productId int, qty int) {
	t.Helper()
	purchase, err := models.CreatePurchase(ctx, &models.NewPurchase{
		Items: []models.NewPurchaseItem{
			{ProductId: productId, Quantity: qty, UnitCost: decimal.NewFromInt(1)},
		},
	})
	if err != nil {
		t.Fatalf("CreatePurchase: %v", err)
	}
	if _, err := models.ConfirmPurchase(ctx, purchase.ID); err != nil {
		t.Fatalf("ConfirmPurchase: %v", err)
	}
}

func onHand(t *testing.T, ctx context.Context, productId int) int {
	t.Helper()
	inv, err := models.GetInventory(ctx, productId)
	if err != nil {
		t.Fatalf("GetInventory(%d): %v", productId, err)
	}
	return inv.Quantity
}

func TestOrderFulfillmentFlow(t *testing.T) {
	ctx := setupIntegration(t)

	cola := mustCreateProduct(t, ctx, "COLA-001", "1.50")
	chips := mustCreateProduct(t, ctx, "CHIPS-001", "3.25")
	mustStock(t, ctx, cola.ID, 20)
	mustStock(t, ctx, chips.ID, 5)

	order, err := models.CreateOrder(ctx, &models.NewOrder{})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if order.Status != models.OrderStatusPending {
		t.Fatalf("new order status = %s, want Pending", order.Status)
	}
	if !strings.HasPrefix(order.OrderNumber, "SO-") {
		t.Fatalf("order number %q missing SO- prefix", order.OrderNumber)
	}

	// adding deducts immediately
	order, err = models.AddOrderItem(ctx, order.ID, &models.NewOrderItem{ProductId: cola.ID, Quantity: 4})
	if err != nil {
		t.Fatalf("AddOrderItem: %v", err)
	}
	if got := onHand(t, ctx, cola.ID); got != 16 {
		t.Fatalf("on hand after add = %d, want 16", got)
	}
	if !order.TotalAmount.Equal(decimal.RequireFromString("6.00")) {
		t.Fatalf("total = %s, want 6.00", order.TotalAmount)
	}

	// oversell is rejected and nothing changes
	_, err = models.AddOrderItem(ctx, order.ID, &models.NewOrderItem{ProductId: chips.ID, Quantity: 6})
	if !errors.Is(err, utils.ErrInsufficientStock) {
		t.Fatalf("oversell: got %v, want InsufficientStock", err)
	}
	if got := onHand(t, ctx, chips.ID); got != 5 {
		t.Fatalf("on hand after rejected add = %d, want 5", got)
	}

	// merging lines keeps the price snapshot and reserves only the delta
	order, err = models.AddOrderItem(ctx, order.ID, &models.NewOrderItem{ProductId: cola.ID, Quantity: 2})
	if err != nil {
		t.Fatalf("AddOrderItem(merge): %v", err)
	}
	if len(order.Items) != 1 {
		t.Fatalf("expected merged single line, got %d", len(order.Items))
	}
	if order.Items[0].Quantity != 6 {
		t.Fatalf("merged quantity = %d, want 6", order.Items[0].Quantity)
	}
	if got := onHand(t, ctx, cola.ID); got != 14 {
		t.Fatalf("on hand after merge = %d, want 14", got)
	}

	// lowering the quantity releases the delta
	order, err = models.UpdateOrderItem(ctx, order.ID, order.Items[0].ID, 3)
	if err != nil {
		t.Fatalf("UpdateOrderItem: %v", err)
	}
	if got := onHand(t, ctx, cola.ID); got != 17 {
		t.Fatalf("on hand after decrease = %d, want 17", got)
	}

	// deleting a line restores its full quantity
	order, err = models.AddOrderItem(ctx, order.ID, &models.NewOrderItem{ProductId: chips.ID, Quantity: 2})
	if err != nil {
		t.Fatalf("AddOrderItem(chips): %v", err)
	}
	var chipsItem *models.OrderItem
	for i := range order.Items {
		if order.Items[i].ProductId == chips.ID {
			chipsItem = &order.Items[i]
		}
	}
	if chipsItem == nil {
		t.Fatal("chips line missing")
	}
	order, err = models.DeleteOrderItem(ctx, order.ID, chipsItem.ID)
	if err != nil {
		t.Fatalf("DeleteOrderItem: %v", err)
	}
	if got := onHand(t, ctx, chips.ID); got != 5 {
		t.Fatalf("on hand after delete = %d, want 5", got)
	}

	// promotion: 3 x 1.50 = 4.50 total, 10% off = 0.45
	_, err = models.CreatePromotion(ctx, &models.NewPromotion{
		Code:       "TEN",
		Kind:       models.PromotionKindPercent,
		Value:      decimal.NewFromInt(10),
		StartsAt:   time.Now().Add(-time.Hour),
		EndsAt:     time.Now().Add(time.Hour),
		UsageLimit: 1,
	})
	if err != nil {
		t.Fatalf("CreatePromotion: %v", err)
	}
	order, err = models.ApplyPromotion(ctx, order.ID, "TEN")
	if err != nil {
		t.Fatalf("ApplyPromotion: %v", err)
	}
	want := decimal.RequireFromString("4.05")
	if !order.FinalAmount.Equal(want) {
		t.Fatalf("final = %s, want %s", order.FinalAmount, want)
	}

	// checkout demands the exact final amount
	_, err = models.Checkout(ctx, order.ID, &models.NewPayment{
		Amount: decimal.RequireFromString("4.50"),
		Method: models.PaymentMethodCash,
	})
	if !errors.Is(err, utils.ErrValidation) {
		t.Fatalf("wrong amount: got %v, want ValidationError", err)
	}

	order, err = models.Checkout(ctx, order.ID, &models.NewPayment{
		Amount: want,
		Method: models.PaymentMethodCash,
	})
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	if order.Status != models.OrderStatusPaid {
		t.Fatalf("status after checkout = %s, want Paid", order.Status)
	}

	payment, err := models.GetPaymentByOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("GetPaymentByOrder: %v", err)
	}
	if !payment.Amount.Equal(want) {
		t.Fatalf("payment amount = %s, want %s", payment.Amount, want)
	}
	if !strings.HasPrefix(payment.PaymentNumber, "PAY-") {
		t.Fatalf("payment number %q missing PAY- prefix", payment.PaymentNumber)
	}

	promo, err := models.GetPromotion(ctx, *order.PromotionId)
	if err != nil {
		t.Fatalf("GetPromotion: %v", err)
	}
	if promo.UsedCount != 1 {
		t.Fatalf("used_count = %d, want 1", promo.UsedCount)
	}

	// a paid order is closed to every mutation
	if _, err := models.AddOrderItem(ctx, order.ID, &models.NewOrderItem{ProductId: cola.ID, Quantity: 1}); !errors.Is(err, utils.ErrInvalidState) {
		t.Fatalf("add to paid order: got %v, want InvalidState", err)
	}
	if _, err := models.Checkout(ctx, order.ID, &models.NewPayment{Amount: want, Method: models.PaymentMethodCash}); !errors.Is(err, utils.ErrInvalidState) {
		t.Fatalf("double checkout: got %v, want InvalidState", err)
	}
	if _, err := models.CancelOrder(ctx, order.ID); !errors.Is(err, utils.ErrInvalidState) {
		t.Fatalf("cancel paid order: got %v, want InvalidState", err)
	}

	// ledger replay agrees with the live counter
	report, err := reports.GetStockLedger(ctx, cola.ID,
		time.Now().Add(-24*time.Hour), time.Now().Add(24*time.Hour))
	if err != nil {
		t.Fatalf("GetStockLedger: %v", err)
	}
	if report.EndingBalance != onHand(t, ctx, cola.ID) {
		t.Fatalf("ledger ending %d != counter %d", report.EndingBalance, onHand(t, ctx, cola.ID))
	}
}

func TestCancelOrderKeepsDeductedStock(t *testing.T) {
	ctx := setupIntegration(t)

	soap := mustCreateProduct(t, ctx, "SOAP-001", "2.00")
	mustStock(t, ctx, soap.ID, 10)

	order, err := models.CreateOrder(ctx, &models.NewOrder{})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if _, err := models.AddOrderItem(ctx, order.ID, &models.NewOrderItem{ProductId: soap.ID, Quantity: 4}); err != nil {
		t.Fatalf("AddOrderItem: %v", err)
	}

	window := func() (time.Time, time.Time) {
		return time.Now().Add(-24 * time.Hour), time.Now().Add(24 * time.Hour)
	}
	ledgerEnding := func() int {
		from, to := window()
		report, err := reports.GetStockLedger(ctx, soap.ID, from, to)
		if err != nil {
			t.Fatalf("GetStockLedger: %v", err)
		}
		return report.EndingBalance
	}

	// the pending order has already moved the counter, but an unpaid order
	// is not a sale; the ledger sees only the receipt
	if got := onHand(t, ctx, soap.ID); got != 6 {
		t.Fatalf("on hand while pending = %d, want 6", got)
	}
	if got := ledgerEnding(); got != 10 {
		t.Fatalf("ledger ending while pending = %d, want 10", got)
	}

	order, err = models.CancelOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("CancelOrder: %v", err)
	}
	if order.Status != models.OrderStatusCanceled {
		t.Fatalf("status = %s, want Canceled", order.Status)
	}

	// cancel does not release the deduction; recovery is a manual adjustment
	if got := onHand(t, ctx, soap.ID); got != 6 {
		t.Fatalf("on hand after cancel = %d, want 6 (deduction kept)", got)
	}

	// a canceled order stays out of the ledger's sale stream
	if got := ledgerEnding(); got != 10 {
		t.Fatalf("ledger ending after cancel = %d, want 10", got)
	}

	// the manual correction path
	adj, err := models.RecordAdjustment(ctx, &models.NewInventoryAdjustment{
		ProductId: soap.ID,
		Quantity:  4,
		Reason:    "canceled order restock",
	})
	if err != nil {
		t.Fatalf("RecordAdjustment: %v", err)
	}
	if adj.Quantity != 4 {
		t.Fatalf("adjustment quantity = %d, want 4", adj.Quantity)
	}
	if got := onHand(t, ctx, soap.ID); got != 10 {
		t.Fatalf("on hand after correction = %d, want 10", got)
	}

	// the correction replays as an adjustment; the canceled sale never does
	if got := ledgerEnding(); got != 14 {
		t.Fatalf("ledger ending after correction = %d, want 14", got)
	}
}

func TestPurchaseLifecycle(t *testing.T) {
	ctx := setupIntegration(t)

	tea := mustCreateProduct(t, ctx, "TEA-001", "5.00")

	purchase, err := models.CreatePurchase(ctx, &models.NewPurchase{
		Items: []models.NewPurchaseItem{
			{ProductId: tea.ID, Quantity: 30, UnitCost: decimal.NewFromInt(2)},
		},
	})
	if err != nil {
		t.Fatalf("CreatePurchase: %v", err)
	}
	if purchase.Status != models.PurchaseStatusPending {
		t.Fatalf("status = %s, want Pending", purchase.Status)
	}
	if !strings.HasPrefix(purchase.PurchaseNumber, "PO-") {
		t.Fatalf("purchase number %q missing PO- prefix", purchase.PurchaseNumber)
	}

	// pending purchases have not touched stock
	if _, err := models.GetInventory(ctx, tea.ID); !errors.Is(err, utils.ErrNotFound) {
		t.Fatalf("inventory before confirm: got %v, want NotFound", err)
	}

	purchase, err = models.ConfirmPurchase(ctx, purchase.ID)
	if err != nil {
		t.Fatalf("ConfirmPurchase: %v", err)
	}
	if purchase.Status != models.PurchaseStatusConfirmed {
		t.Fatalf("status = %s, want Confirmed", purchase.Status)
	}
	if got := onHand(t, ctx, tea.ID); got != 30 {
		t.Fatalf("on hand after confirm = %d, want 30", got)
	}

	// a settled purchase cannot move again
	if _, err := models.ConfirmPurchase(ctx, purchase.ID); !errors.Is(err, utils.ErrInvalidState) {
		t.Fatalf("double confirm: got %v, want InvalidState", err)
	}
	if _, err := models.CancelPurchase(ctx, purchase.ID); !errors.Is(err, utils.ErrInvalidState) {
		t.Fatalf("cancel confirmed: got %v, want InvalidState", err)
	}

	// canceling a pending purchase leaves stock alone
	second, err := models.CreatePurchase(ctx, &models.NewPurchase{
		Items: []models.NewPurchaseItem{
			{ProductId: tea.ID, Quantity: 10, UnitCost: decimal.NewFromInt(2)},
		},
	})
	if err != nil {
		t.Fatalf("CreatePurchase(second): %v", err)
	}
	if _, err := models.CancelPurchase(ctx, second.ID); err != nil {
		t.Fatalf("CancelPurchase: %v", err)
	}
	if got := onHand(t, ctx, tea.ID); got != 30 {
		t.Fatalf("on hand after cancel = %d, want 30", got)
	}
}

func TestAdjustmentRules(t *testing.T) {
	ctx := setupIntegration(t)

	rice := mustCreateProduct(t, ctx, "RICE-001", "8.00")

	// negative before any inventory record exists
	_, err := models.RecordAdjustment(ctx, &models.NewInventoryAdjustment{
		ProductId: rice.ID,
		Quantity:  -1,
		Reason:    "damage",
	})
	if !errors.Is(err, utils.ErrConflict) {
		t.Fatalf("negative-from-nothing: got %v, want Conflict", err)
	}

	// zero quantity and missing reason are validation failures
	if _, err := models.RecordAdjustment(ctx, &models.NewInventoryAdjustment{ProductId: rice.ID, Quantity: 0, Reason: "x"}); !errors.Is(err, utils.ErrValidation) {
		t.Fatalf("zero quantity: got %v, want ValidationError", err)
	}
	if _, err := models.RecordAdjustment(ctx, &models.NewInventoryAdjustment{ProductId: rice.ID, Quantity: 5}); !errors.Is(err, utils.ErrValidation) {
		t.Fatalf("missing reason: got %v, want ValidationError", err)
	}

	// a positive adjustment seeds the counter
	if _, err := models.RecordAdjustment(ctx, &models.NewInventoryAdjustment{
		ProductId: rice.ID,
		Quantity:  8,
		Reason:    "opening stock",
	}); err != nil {
		t.Fatalf("seed adjustment: %v", err)
	}
	if got := onHand(t, ctx, rice.ID); got != 8 {
		t.Fatalf("on hand after seed = %d, want 8", got)
	}

	// driving below zero is a conflict and changes nothing
	_, err = models.RecordAdjustment(ctx, &models.NewInventoryAdjustment{
		ProductId: rice.ID,
		Quantity:  -9,
		Reason:    "damage",
	})
	if !errors.Is(err, utils.ErrConflict) {
		t.Fatalf("underflow: got %v, want Conflict", err)
	}
	if got := onHand(t, ctx, rice.ID); got != 8 {
		t.Fatalf("on hand after rejected underflow = %d, want 8", got)
	}

	// replaying an idempotency key returns the stored row, no double move
	first, err := models.RecordAdjustment(ctx, &models.NewInventoryAdjustment{
		ProductId:      rice.ID,
		Quantity:       -3,
		Reason:         "shrinkage",
		IdempotencyKey: "adj-key-1",
	})
	if err != nil {
		t.Fatalf("keyed adjustment: %v", err)
	}
	replay, err := models.RecordAdjustment(ctx, &models.NewInventoryAdjustment{
		ProductId:      rice.ID,
		Quantity:       -3,
		Reason:         "shrinkage",
		IdempotencyKey: "adj-key-1",
	})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if replay.ID != first.ID {
		t.Fatalf("replay returned row %d, want %d", replay.ID, first.ID)
	}
	if got := onHand(t, ctx, rice.ID); got != 5 {
		t.Fatalf("on hand after replay = %d, want 5 (single application)", got)
	}
}

func TestPromotionUsageLimitAtCheckout(t *testing.T) {
	ctx := setupIntegration(t)

	milk := mustCreateProduct(t, ctx, "MILK-001", "10.00")
	mustStock(t, ctx, milk.ID, 50)

	_, err := models.CreatePromotion(ctx, &models.NewPromotion{
		Code:       "ONCE",
		Kind:       models.PromotionKindFixed,
		Value:      decimal.NewFromInt(2),
		StartsAt:   time.Now().Add(-time.Hour),
		EndsAt:     time.Now().Add(time.Hour),
		UsageLimit: 1,
	})
	if err != nil {
		t.Fatalf("CreatePromotion: %v", err)
	}

	// an empty order can neither take nor shed a promotion
	bare, err := models.CreateOrder(ctx, &models.NewOrder{})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if _, err := models.ApplyPromotion(ctx, bare.ID, "ONCE"); !errors.Is(err, utils.ErrValidation) {
		t.Fatalf("apply to empty order: got %v, want ValidationError", err)
	}
	if _, err := models.RemovePromotion(ctx, bare.ID); !errors.Is(err, utils.ErrValidation) {
		t.Fatalf("remove with none attached: got %v, want ValidationError", err)
	}

	buildOrder := func() *models.Order {
		order, err := models.CreateOrder(ctx, &models.NewOrder{})
		if err != nil {
			t.Fatalf("CreateOrder: %v", err)
		}
		if _, err := models.AddOrderItem(ctx, order.ID, &models.NewOrderItem{ProductId: milk.ID, Quantity: 1}); err != nil {
			t.Fatalf("AddOrderItem: %v", err)
		}
		order, err = models.ApplyPromotion(ctx, order.ID, "ONCE")
		if err != nil {
			t.Fatalf("ApplyPromotion: %v", err)
		}
		return order
	}

	first := buildOrder()
	second := buildOrder()

	if _, err := models.Checkout(ctx, first.ID, &models.NewPayment{
		Amount: decimal.RequireFromString("8.00"),
		Method: models.PaymentMethodCard,
	}); err != nil {
		t.Fatalf("first checkout: %v", err)
	}

	// the limit is enforced at checkout, not apply time
	_, err = models.Checkout(ctx, second.ID, &models.NewPayment{
		Amount: decimal.RequireFromString("8.00"),
		Method: models.PaymentMethodCard,
	})
	if err == nil {
		t.Fatal("second checkout should fail once the limit is taken")
	}
	if !errors.Is(err, utils.ErrValidation) && !errors.Is(err, utils.ErrConflict) {
		t.Fatalf("second checkout: got %v, want ValidationError or Conflict", err)
	}

	// the failed checkout left the order Pending
	second, err = models.GetOrder(ctx, second.ID)
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if second.Status != models.OrderStatusPending {
		t.Fatalf("status after failed checkout = %s, want Pending", second.Status)
	}
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("retail-test-redis-%d", time.Now().UnixNano())
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
	// wait until ready
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
	name := fmt.Sprintf("retail-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=retail_test",
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
	// wait until ready
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
	// Example: "127.0.0.1:49154\n"
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
