package main

import (
	"net/http"

	"bitbucket.org/backstitch/garments_backend/middlewares"
	"bitbucket.org/backstitch/garments_backend/models"
	"bitbucket.org/backstitch/garments_backend/models/reports"
	"bitbucket.org/backstitch/garments_backend/utils"
	"bitbucket.org/backstitch/garments_backend/workflow"
	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"
)

const excelContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// --- auth ---

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func loginHandler(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	info, err := models.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, info)
}

func signupHandler(c *gin.Context) {
	var input models.NewUser
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	user, err := models.CreateUser(c.Request.Context(), middlewares.ActorFromContext(c), &input)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

func meHandler(c *gin.Context) {
	username, _ := utils.GetUserNameFromContext(c.Request.Context())
	user, err := models.GetUserByUsername(c.Request.Context(), username)
	if err != nil {
		abortWithError(c, err)
		return
	}
	user.PrepareGive()
	c.JSON(http.StatusOK, user)
}

// --- products ---

func createProductHandler(c *gin.Context) {
	var input models.NewProduct
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	product, err := models.CreateProduct(c.Request.Context(), middlewares.ActorFromContext(c), &input)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, product)
}

func listProductsHandler(c *gin.Context) {
	limit, offset := pagination(c)
	products, err := models.GetProducts(c.Request.Context(), limit, offset)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, products)
}

func getProductHandler(c *gin.Context) {
	id, ok := pathId(c, "product_id")
	if !ok {
		return
	}
	product, err := models.GetProduct(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func updateProductHandler(c *gin.Context) {
	id, ok := pathId(c, "product_id")
	if !ok {
		return
	}
	var input models.UpdateProduct
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	product, err := models.UpdateProductById(c.Request.Context(), middlewares.ActorFromContext(c), id, &input)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func deleteProductHandler(c *gin.Context) {
	id, ok := pathId(c, "product_id")
	if !ok {
		return
	}
	if _, err := models.DeleteProductById(c.Request.Context(), middlewares.ActorFromContext(c), id); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// --- inward logs ---

func createInwardLogHandler(c *gin.Context) {
	var input models.NewInwardLog
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	log, err := models.CreateInwardLog(c.Request.Context(), middlewares.ActorFromContext(c), &input)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, log)
}

func listInwardLogsHandler(c *gin.Context) {
	productId, ok := pathId(c, "product_id")
	if !ok {
		return
	}
	limit, offset := pagination(c)
	logs, err := models.GetInwardLogsByProduct(c.Request.Context(), productId, limit, offset)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, logs)
}

func updateInwardLogHandler(c *gin.Context) {
	id, ok := pathId(c, "log_id")
	if !ok {
		return
	}
	var input models.UpdateInwardLog
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	log, err := models.UpdateInwardLogById(c.Request.Context(), middlewares.ActorFromContext(c), id, &input)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, log)
}

func deleteInwardLogHandler(c *gin.Context) {
	id, ok := pathId(c, "log_id")
	if !ok {
		return
	}
	log, err := models.DeleteInwardLogById(c.Request.Context(), middlewares.ActorFromContext(c), id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, log)
}

// --- sales logs ---

func createSalesLogHandler(c *gin.Context) {
	var input models.NewSalesLog
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	log, err := models.CreateSalesLog(c.Request.Context(), middlewares.ActorFromContext(c), &input)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, log)
}

func listSalesLogsHandler(c *gin.Context) {
	productId, ok := pathId(c, "product_id")
	if !ok {
		return
	}
	limit, offset := pagination(c)
	logs, err := models.GetSalesLogsByProduct(c.Request.Context(), productId, limit, offset)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, logs)
}

func updateSalesLogHandler(c *gin.Context) {
	id, ok := pathId(c, "log_id")
	if !ok {
		return
	}
	var input models.UpdateSalesLog
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	log, err := models.UpdateSalesLogById(c.Request.Context(), middlewares.ActorFromContext(c), id, &input)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, log)
}

func deleteSalesLogHandler(c *gin.Context) {
	id, ok := pathId(c, "log_id")
	if !ok {
		return
	}
	log, err := models.DeleteSalesLogById(c.Request.Context(), middlewares.ActorFromContext(c), id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, log)
}

// --- orders ---

type orderResponse struct {
	*models.Order
	FullyDelivered bool `json:"fully_delivered"`
}

func toOrderResponse(c *gin.Context, order *models.Order) (*orderResponse, error) {
	full, _, err := order.DeliveredStatus(c.Request.Context())
	if err != nil {
		return nil, err
	}
	return &orderResponse{Order: order, FullyDelivered: full}, nil
}

func createOrderHandler(c *gin.Context) {
	productId, ok := pathId(c, "product_id")
	if !ok {
		return
	}
	var input models.NewOrder
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	input.ProductId = productId
	order, err := models.CreateOrder(c.Request.Context(), middlewares.ActorFromContext(c), &input)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, orderResponse{Order: order})
}

func createOrdersBulkHandler(c *gin.Context) {
	productId, ok := pathId(c, "product_id")
	if !ok {
		return
	}
	var inputs []*models.NewOrder
	if err := c.ShouldBindJSON(&inputs); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	for _, input := range inputs {
		input.ProductId = productId
	}
	orders, err := models.CreateOrdersBulk(c.Request.Context(), middlewares.ActorFromContext(c), inputs)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"created": len(orders), "orders": orders})
}

func listOrdersByProductHandler(c *gin.Context) {
	productId, ok := pathId(c, "product_id")
	if !ok {
		return
	}
	limit, offset := pagination(c)

	var filter models.OrderFilter
	if v := c.Query("start_date"); v != "" {
		d, err := utils.ParseDate(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		filter.StartDate = &d
	}
	if v := c.Query("end_date"); v != "" {
		d, err := utils.ParseDate(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		filter.EndDate = &d
	}
	filter.AgencyName = c.Query("agency_name")
	filter.StoreName = c.Query("store_name")

	orders, err := models.GetOrdersByProduct(c.Request.Context(), productId, filter, limit, offset)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

func listAllOrdersHandler(c *gin.Context) {
	limit, offset := pagination(c)
	orders, err := models.GetAllOrders(c.Request.Context(), limit, offset)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

func getOrderHandler(c *gin.Context) {
	id, ok := pathId(c, "order_id")
	if !ok {
		return
	}
	order, err := models.GetOrder(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	resp, err := toOrderResponse(c, order)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func updateOrderHandler(c *gin.Context) {
	id, ok := pathId(c, "order_id")
	if !ok {
		return
	}
	var input models.UpdateOrder
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	order, err := models.UpdateOrderById(c.Request.Context(), middlewares.ActorFromContext(c), id, &input)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func deleteOrderHandler(c *gin.Context) {
	id, ok := pathId(c, "order_id")
	if !ok {
		return
	}
	if _, err := models.DeleteOrderById(c.Request.Context(), middlewares.ActorFromContext(c), id); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func deleteOrdersBulkHandler(c *gin.Context) {
	productId, ok := pathId(c, "product_id")
	if !ok {
		return
	}
	if err := utils.ValidateResourceId[models.Product](c.Request.Context(), productId); err != nil {
		abortWithError(c, err)
		return
	}
	dateStr := c.Query("date")
	if dateStr == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date is required"})
		return
	}
	date, err := utils.ParseDate(dateStr)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	deleted, err := models.DeleteOrdersBulk(c.Request.Context(), middlewares.ActorFromContext(c),
		date, c.Query("agency_name"), c.Query("store_name"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

// --- pending orders & delivery ---

func listPendingOrdersHandler(c *gin.Context) {
	productId, ok := pathId(c, "product_id")
	if !ok {
		return
	}
	limit, offset := pagination(c)
	pending, err := models.GetPendingOrdersByProduct(c.Request.Context(), productId, limit, offset)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, pending)
}

type deliverRequest struct {
	DeliveredSizes models.SizeMap `json:"delivered_sizes" binding:"required"`
	DeliveryDate   string         `json:"delivery_date" binding:"required"`
}

func deliverPendingOrderHandler(c *gin.Context) {
	id, ok := pathId(c, "pending_order_id")
	if !ok {
		return
	}
	var req deliverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	result, err := workflow.DeliverPendingOrder(c.Request.Context(), middlewares.ActorFromContext(c),
		id, req.DeliveredSizes, req.DeliveryDate)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// --- stock ---

func getStockMatrixHandler(c *gin.Context) {
	productId, ok := pathId(c, "product_id")
	if !ok {
		return
	}
	matrix, err := models.GetStockMatrix(c.Request.Context(), productId)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, matrix)
}

func getStockRowsHandler(c *gin.Context) {
	productId, ok := pathId(c, "product_id")
	if !ok {
		return
	}
	rows, err := models.GetStockRows(c.Request.Context(), productId)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

// --- reports ---

func writeExcel(c *gin.Context, f *excelize.File, filename string) {
	c.Header("Content-Type", excelContentType)
	c.Header("Content-Disposition", "attachment; filename="+filename)
	if err := f.Write(c.Writer); err != nil {
		_ = c.Error(err)
	}
}

func exportOrdersHandler(c *gin.Context) {
	var headers reports.ExportHeaders
	if err := c.ShouldBindJSON(&headers); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	f, err := reports.ExportOrdersExcel(c.Request.Context(), headers)
	if err != nil {
		abortWithError(c, err)
		return
	}
	writeExcel(c, f, "orders.xlsx")
}

func exportPendingOrdersHandler(c *gin.Context) {
	var headers reports.ExportHeaders
	if err := c.ShouldBindJSON(&headers); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	f, err := reports.ExportPendingOrdersExcel(c.Request.Context(), headers)
	if err != nil {
		abortWithError(c, err)
		return
	}
	writeExcel(c, f, "pending_orders.xlsx")
}
