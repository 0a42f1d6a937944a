package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"bitbucket.org/backstitch/garments_backend/config"
	"bitbucket.org/backstitch/garments_backend/middlewares"
	"bitbucket.org/backstitch/garments_backend/models"
	"bitbucket.org/backstitch/garments_backend/utils"
	"bitbucket.org/backstitch/garments_backend/workflow"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

const defaultPort = "8080"

func main() {
	godotenv.Load()
	logger := config.GetLogger()

	port := os.Getenv("PORT")
	if port == "" {
		port = defaultPort
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if strings.EqualFold(os.Getenv("GIN_MODE"), "release") {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(corsMiddleware())
	r.Use(middlewares.AuthMiddleware())
	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	registerRoutes(r)

	// Start listening immediately; dependencies connect once the port is open
	// so container health checks pass during slow DB cold starts.
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()

	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	// Publish committed audit rows after the fact.
	dispatcherCtx, cancelDispatcher := context.WithCancel(context.Background())
	defer cancelDispatcher()
	go workflow.NewAuditDispatcher(db, logger).Run(dispatcherCtx)

	logger.WithFields(logrus.Fields{"info": "Connection Established"}).Info("listening on port ", port)

	select {
	case <-sigCtx.Done():
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	cancelDispatcher()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}

func registerRoutes(r *gin.Engine) {
	v1 := r.Group("/api/v1")

	auth := v1.Group("/auth")
	auth.POST("/login", loginHandler)
	auth.POST("/signup", middlewares.RequireAuth(), signupHandler)
	auth.GET("/me", middlewares.RequireAuth(), meHandler)

	secured := v1.Group("", middlewares.RequireAuth())

	products := secured.Group("/products")
	products.POST("", createProductHandler)
	products.GET("", listProductsHandler)
	products.GET("/:product_id", getProductHandler)
	products.PUT("/:product_id", updateProductHandler)
	products.DELETE("/:product_id", deleteProductHandler)

	products.POST("/:product_id/orders", createOrderHandler)
	products.GET("/:product_id/orders", listOrdersByProductHandler)
	products.POST("/:product_id/orders/bulk", createOrdersBulkHandler)
	products.DELETE("/:product_id/orders/bulk", deleteOrdersBulkHandler)
	products.GET("/:product_id/pending-orders", listPendingOrdersHandler)

	inward := secured.Group("/inward")
	inward.POST("", createInwardLogHandler)
	inward.GET("/:product_id", listInwardLogsHandler)
	inward.PUT("/:log_id", updateInwardLogHandler)
	inward.DELETE("/:log_id", deleteInwardLogHandler)

	sales := secured.Group("/sales")
	sales.POST("", createSalesLogHandler)
	sales.GET("/:product_id", listSalesLogsHandler)
	sales.PUT("/:log_id", updateSalesLogHandler)
	sales.DELETE("/:log_id", deleteSalesLogHandler)

	orders := secured.Group("/orders")
	orders.GET("", listAllOrdersHandler)
	orders.GET("/:order_id", getOrderHandler)
	orders.PUT("/:order_id", updateOrderHandler)
	orders.DELETE("/:order_id", deleteOrderHandler)

	secured.POST("/pending-orders/:pending_order_id/deliver", deliverPendingOrderHandler)

	stock := secured.Group("/stock")
	stock.GET("/:product_id", getStockMatrixHandler)
	stock.GET("/:product_id/rows", getStockRowsHandler)

	rpt := secured.Group("/reports")
	rpt.POST("/orders/export-excel", exportOrdersHandler)
	rpt.POST("/pending-orders/export-excel", exportPendingOrdersHandler)
}

func corsMiddleware() gin.HandlerFunc {
	cfg := cors.DefaultConfig()
	origins := splitAndTrim(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	cfg.AllowHeaders = append(cfg.AllowHeaders, "Authorization")
	return cors.New(cfg)
}

// customErrorLogger logs only requests that ended with errors
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 {
			logger.Error(c.Errors.String())
		}
	}
}

func splitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func pathId(c *gin.Context, name string) (int, bool) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

func pagination(c *gin.Context) (limit int, offset int) {
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "100"))
	offset, _ = strconv.Atoi(c.DefaultQuery("skip", "0"))
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func abortWithError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, utils.ErrorRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
	case errors.Is(err, models.ErrDuplicateOrderNumber),
		errors.Is(err, models.ErrOrderFullyDelivered),
		errors.Is(err, models.ErrQuantityBelowDelivered):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	}
	_ = c.Error(err)
}
