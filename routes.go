package main

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/retail_backend/middlewares"
	"github.com/mmdatafocus/retail_backend/models"
	"github.com/mmdatafocus/retail_backend/models/reports"
	"github.com/mmdatafocus/retail_backend/utils"
)

// respondError maps the models error kinds onto HTTP statuses. Anything not
// matching a known kind is treated as a storage failure.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, utils.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error(), "kind": "NotFound"})
	case errors.Is(err, utils.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "kind": "ValidationError"})
	case errors.Is(err, utils.ErrInvalidState):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "kind": "InvalidState"})
	case errors.Is(err, utils.ErrInsufficientStock):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "kind": "InsufficientStock"})
	case errors.Is(err, utils.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "kind": "Conflict"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func pathId(c *gin.Context, name string) (int, bool) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

func queryIntDefault(c *gin.Context, name string, def int) int {
	v := c.Query(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func afterCursor(c *gin.Context) *string {
	after := c.Query("after")
	if after == "" {
		return nil
	}
	return &after
}

/* auth */

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func loginHandler(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	token, user, err := models.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "user": user})
}

func createUserHandler(c *gin.Context) {
	var input models.NewUser
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	user, err := models.CreateUser(c.Request.Context(), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

/* customers & suppliers */

func createCustomerHandler(c *gin.Context) {
	var input models.NewCustomer
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	customer, err := models.CreateCustomer(c.Request.Context(), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, customer)
}

func updateCustomerHandler(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	var input models.NewCustomer
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	customer, err := models.UpdateCustomer(c.Request.Context(), id, &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, customer)
}

func listCustomersHandler(c *gin.Context) {
	customers, err := models.ListCustomers(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, customers)
}

func createSupplierHandler(c *gin.Context) {
	var input models.NewSupplier
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	supplier, err := models.CreateSupplier(c.Request.Context(), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, supplier)
}

func updateSupplierHandler(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	var input models.NewSupplier
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	supplier, err := models.UpdateSupplier(c.Request.Context(), id, &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, supplier)
}

func listSuppliersHandler(c *gin.Context) {
	suppliers, err := models.ListSuppliers(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, suppliers)
}

/* products & inventory */

func createProductHandler(c *gin.Context) {
	var input models.NewProduct
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	product, err := models.CreateProduct(c.Request.Context(), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, product)
}

func updateProductHandler(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	var input models.NewProduct
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	product, err := models.UpdateProduct(c.Request.Context(), id, &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func getProductHandler(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	product, err := models.GetProduct(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func listProductsHandler(c *gin.Context) {
	products, err := models.ListProducts(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, products)
}

func getInventoryHandler(c *gin.Context) {
	productId, ok := pathId(c, "productId")
	if !ok {
		return
	}
	inventory, err := models.GetInventory(c.Request.Context(), productId)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, inventory)
}

func listLowStockHandler(c *gin.Context) {
	threshold := queryIntDefault(c, "threshold", 10)
	inventories, err := models.ListInventoriesBelow(c.Request.Context(), threshold)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, inventories)
}

/* orders */

func createOrderHandler(c *gin.Context) {
	var input models.NewOrder
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	order, err := models.CreateOrder(c.Request.Context(), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

func addOrderItemHandler(c *gin.Context) {
	orderId, ok := pathId(c, "id")
	if !ok {
		return
	}
	var input models.NewOrderItem
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	order, err := models.AddOrderItem(c.Request.Context(), orderId, &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

type updateOrderItemRequest struct {
	Quantity int `json:"quantity" binding:"required"`
}

func updateOrderItemHandler(c *gin.Context) {
	orderId, ok := pathId(c, "id")
	if !ok {
		return
	}
	itemId, ok := pathId(c, "itemId")
	if !ok {
		return
	}
	var req updateOrderItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	order, err := models.UpdateOrderItem(c.Request.Context(), orderId, itemId, req.Quantity)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func deleteOrderItemHandler(c *gin.Context) {
	orderId, ok := pathId(c, "id")
	if !ok {
		return
	}
	itemId, ok := pathId(c, "itemId")
	if !ok {
		return
	}
	order, err := models.DeleteOrderItem(c.Request.Context(), orderId, itemId)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

type applyPromotionRequest struct {
	Code string `json:"code" binding:"required"`
}

func applyPromotionHandler(c *gin.Context) {
	orderId, ok := pathId(c, "id")
	if !ok {
		return
	}
	var req applyPromotionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	order, err := models.ApplyPromotion(c.Request.Context(), orderId, req.Code)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func removePromotionHandler(c *gin.Context) {
	orderId, ok := pathId(c, "id")
	if !ok {
		return
	}
	order, err := models.RemovePromotion(c.Request.Context(), orderId)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func checkoutHandler(c *gin.Context) {
	orderId, ok := pathId(c, "id")
	if !ok {
		return
	}
	var input models.NewPayment
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	ctx, span := tracer.Start(c.Request.Context(), "checkout")
	defer span.End()
	order, err := models.Checkout(ctx, orderId, &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func cancelOrderHandler(c *gin.Context) {
	orderId, ok := pathId(c, "id")
	if !ok {
		return
	}
	order, err := models.CancelOrder(c.Request.Context(), orderId)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func getOrderHandler(c *gin.Context) {
	orderId, ok := pathId(c, "id")
	if !ok {
		return
	}
	order, err := models.GetOrder(c.Request.Context(), orderId)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func paginateOrdersHandler(c *gin.Context) {
	limit := queryIntDefault(c, "limit", 0)
	var status *models.OrderStatus
	if s := c.Query("status"); s != "" {
		parsed, err := models.ParseOrderStatus(s)
		if err != nil {
			respondError(c, err)
			return
		}
		status = &parsed
	}
	customerId := queryIntDefault(c, "customer_id", 0)
	userId := queryIntDefault(c, "user_id", 0)

	conn, err := models.PaginateOrders(c.Request.Context(), limit, afterCursor(c), status, customerId, userId)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, conn)
}

/* purchases */

func createPurchaseHandler(c *gin.Context) {
	var input models.NewPurchase
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	purchase, err := models.CreatePurchase(c.Request.Context(), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, purchase)
}

func confirmPurchaseHandler(c *gin.Context) {
	purchaseId, ok := pathId(c, "id")
	if !ok {
		return
	}
	purchase, err := models.ConfirmPurchase(c.Request.Context(), purchaseId)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, purchase)
}

func cancelPurchaseHandler(c *gin.Context) {
	purchaseId, ok := pathId(c, "id")
	if !ok {
		return
	}
	purchase, err := models.CancelPurchase(c.Request.Context(), purchaseId)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, purchase)
}

func getPurchaseHandler(c *gin.Context) {
	purchaseId, ok := pathId(c, "id")
	if !ok {
		return
	}
	purchase, err := models.GetPurchase(c.Request.Context(), purchaseId)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, purchase)
}

func paginatePurchasesHandler(c *gin.Context) {
	limit := queryIntDefault(c, "limit", 0)
	var status *models.PurchaseStatus
	if s := c.Query("status"); s != "" {
		parsed, err := models.ParsePurchaseStatus(s)
		if err != nil {
			respondError(c, err)
			return
		}
		status = &parsed
	}
	supplierId := queryIntDefault(c, "supplier_id", 0)

	conn, err := models.PaginatePurchases(c.Request.Context(), limit, afterCursor(c), status, supplierId)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, conn)
}

/* promotions */

func createPromotionHandler(c *gin.Context) {
	var input models.NewPromotion
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	promotion, err := models.CreatePromotion(c.Request.Context(), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, promotion)
}

func getPromotionByCodeHandler(c *gin.Context) {
	code := c.Param("code")
	promotion, err := models.GetPromotionByCode(c.Request.Context(), code)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, promotion)
}

func validatePromotionHandler(c *gin.Context) {
	code := c.Param("code")
	amount, err := utils.ParseDecimal(c.Query("amount"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount"})
		return
	}
	promotion, discount, err := models.ValidatePromotion(c.Request.Context(), code, amount, time.Now())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"promotion": promotion, "discount": discount})
}

func deactivateExpiredPromotionsHandler(c *gin.Context) {
	count, err := models.DeactivateExpiredPromotions(c.Request.Context(), time.Now())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deactivated": count})
}

/* adjustments */

func recordAdjustmentHandler(c *gin.Context) {
	var input models.NewInventoryAdjustment
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if input.IdempotencyKey == "" {
		input.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}
	adjustment, err := models.RecordAdjustment(c.Request.Context(), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, adjustment)
}

func paginateAdjustmentsHandler(c *gin.Context) {
	limit := queryIntDefault(c, "limit", 0)
	productId := queryIntDefault(c, "product_id", 0)
	conn, err := models.PaginateAdjustments(c.Request.Context(), limit, afterCursor(c), productId)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, conn)
}

/* reports */

func stockLedgerHandler(c *gin.Context) {
	productId, ok := pathId(c, "productId")
	if !ok {
		return
	}
	from, err := time.Parse(time.RFC3339, c.Query("from"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from date"})
		return
	}
	to, err := time.Parse(time.RFC3339, c.Query("to"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to date"})
		return
	}
	if !to.After(from) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "to must be after from"})
		return
	}

	report, err := reports.GetStockLedger(c.Request.Context(), productId, from, to)
	if err != nil {
		respondError(c, err)
		return
	}

	if c.Query("format") == "xlsx" {
		c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Header("Content-Disposition", "attachment; filename=stock-ledger.xlsx")
		if err := reports.WriteStockLedgerExcel(c.Writer, report); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to write file"})
		}
		return
	}
	c.JSON(http.StatusOK, report)
}

func registerRoutes(r *gin.Engine) {
	r.POST("/login", loginHandler)

	api := r.Group("/api")
	api.Use(middlewares.RequireAuth())

	api.POST("/users", createUserHandler)

	api.POST("/customers", createCustomerHandler)
	api.PUT("/customers/:id", updateCustomerHandler)
	api.GET("/customers", listCustomersHandler)

	api.POST("/suppliers", createSupplierHandler)
	api.PUT("/suppliers/:id", updateSupplierHandler)
	api.GET("/suppliers", listSuppliersHandler)

	api.POST("/products", createProductHandler)
	api.PUT("/products/:id", updateProductHandler)
	api.GET("/products/:id", getProductHandler)
	api.GET("/products", listProductsHandler)

	api.GET("/inventories/:productId", getInventoryHandler)
	api.GET("/inventories/low-stock", listLowStockHandler)

	api.POST("/orders", createOrderHandler)
	api.GET("/orders", paginateOrdersHandler)
	api.GET("/orders/:id", getOrderHandler)
	api.POST("/orders/:id/items", addOrderItemHandler)
	api.PUT("/orders/:id/items/:itemId", updateOrderItemHandler)
	api.DELETE("/orders/:id/items/:itemId", deleteOrderItemHandler)
	api.POST("/orders/:id/promotion", applyPromotionHandler)
	api.DELETE("/orders/:id/promotion", removePromotionHandler)
	api.POST("/orders/:id/checkout", checkoutHandler)
	api.POST("/orders/:id/cancel", cancelOrderHandler)

	api.POST("/purchases", createPurchaseHandler)
	api.GET("/purchases", paginatePurchasesHandler)
	api.GET("/purchases/:id", getPurchaseHandler)
	api.POST("/purchases/:id/confirm", confirmPurchaseHandler)
	api.POST("/purchases/:id/cancel", cancelPurchaseHandler)

	api.POST("/promotions", createPromotionHandler)
	api.GET("/promotions/:code", getPromotionByCodeHandler)
	api.GET("/promotions/:code/validate", validatePromotionHandler)
	api.POST("/promotions/deactivate-expired", deactivateExpiredPromotionsHandler)

	api.POST("/adjustments", recordAdjustmentHandler)
	api.GET("/adjustments", paginateAdjustmentsHandler)

	api.GET("/reports/stock-ledger/:productId", stockLedgerHandler)
}
