package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"storefront-service/internal/apperr"
	"storefront-service/internal/models"
	"storefront-service/internal/service"
	"storefront-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// CartService is the cart surface the handlers depend on
type CartService interface {
	GetCart(ctx context.Context, userID int64) (*service.Cart, error)
	AddItem(ctx context.Context, userID, productID int64, quantity int) (*models.CartLine, error)
	UpdateItem(ctx context.Context, userID, cartItemID int64, quantity int) (*models.CartLine, error)
	RemoveItem(ctx context.Context, userID, cartItemID int64) error
	ClearCart(ctx context.Context, userID int64) error
}

// OrderService is the order surface the handlers depend on
type OrderService interface {
	PlaceOrder(ctx context.Context, userID int64, idempotencyKey string) (*models.Order, error)
	ListOrders(ctx context.Context, userID int64) ([]models.Order, error)
	GetOrder(ctx context.Context, userID, orderID int64) (*models.Order, error)
}

// ProductService is the catalog surface the handlers depend on
type ProductService interface {
	ListProducts(ctx context.Context) ([]models.Product, error)
	ListProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error)
	GetProduct(ctx context.Context, id int64) (*models.Product, error)
}

// ReportService is the admin report surface the handlers depend on
type ReportService interface {
	SendDailyReport(ctx context.Context, day time.Time) (*models.DailySales, error)
}

// Handler contains HTTP handlers
type Handler struct {
	carts    CartService
	orders   OrderService
	products ProductService
	reports  ReportService
	logger   *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(carts CartService, orders OrderService, products ProductService, reports ReportService) *Handler {
	return &Handler{
		carts:    carts,
		orders:   orders,
		products: products,
		reports:  reports,
		logger:   util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	v1.Use(identityMiddleware())
	{
		v1.GET("/products", h.listProducts)
		v1.GET("/products/:id", h.getProduct)

		v1.GET("/cart", h.getCart)
		v1.POST("/cart/add", h.addToCart)
		v1.PUT("/cart/:id", h.updateCartItem)
		v1.DELETE("/cart/:id", h.removeCartItem)
		v1.DELETE("/cart", h.clearCart)

		v1.POST("/orders", h.placeOrder)
		v1.GET("/orders", h.listOrders)
		v1.GET("/orders/:id", h.getOrder)

		v1.POST("/admin/report", h.triggerReport)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// listProducts handles the catalog listing, optionally filtered by a
// comma-separated ids query parameter.
func (h *Handler) listProducts(c *gin.Context) {
	var (
		products []models.Product
		err      error
	)
	if raw := c.Query("ids"); raw != "" {
		ids, ok := parseIDList(raw)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ids parameter"})
			return
		}
		products, err = h.products.ListProductsByIDs(c.Request.Context(), ids)
	} else {
		products, err = h.products.ListProducts(c.Request.Context())
	}
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products})
}

// parseIDList parses a comma-separated id list like "1,2,3".
func parseIDList(raw string) ([]int64, bool) {
	parts := strings.Split(raw, ",")
	ids := make([]int64, 0, len(parts))
	for _, part := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil || id <= 0 {
			return nil, false
		}
		ids = append(ids, id)
	}
	return ids, true
}

// getProduct handles a single product lookup
func (h *Handler) getProduct(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	product, err := h.products.GetProduct(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"product": product})
}

// getCart handles the cart snapshot
func (h *Handler) getCart(c *gin.Context) {
	cart, err := h.carts.GetCart(c.Request.Context(), currentUser(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cart)
}

type addToCartRequest struct {
	ProductID int64 `json:"product_id" binding:"required"`
	Quantity  int   `json:"quantity" binding:"required,min=1"`
}

// addToCart handles adding a product to the cart
func (h *Handler) addToCart(c *gin.Context) {
	var req addToCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	item, err := h.carts.AddItem(c.Request.Context(), currentUser(c), req.ProductID, req.Quantity)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":   "Product added to cart successfully.",
		"cart_item": item,
	})
}

type updateCartRequest struct {
	Quantity int `json:"quantity" binding:"required,min=1"`
}

// updateCartItem handles replacing a cart item's quantity
func (h *Handler) updateCartItem(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req updateCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	item, err := h.carts.UpdateItem(c.Request.Context(), currentUser(c), id, req.Quantity)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":   "Cart updated successfully.",
		"cart_item": item,
	})
}

// removeCartItem handles deleting one cart item
func (h *Handler) removeCartItem(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.carts.RemoveItem(c.Request.Context(), currentUser(c), id); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Item removed from cart successfully."})
}

// clearCart handles emptying the cart
func (h *Handler) clearCart(c *gin.Context) {
	if err := h.carts.ClearCart(c.Request.Context(), currentUser(c)); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Cart cleared successfully."})
}

// placeOrder handles checkout
func (h *Handler) placeOrder(c *gin.Context) {
	idempotencyKey := c.GetHeader("Idempotency-Key")

	order, err := h.orders.PlaceOrder(c.Request.Context(), currentUser(c), idempotencyKey)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message": "Order placed successfully.",
		"order":   order,
	})
}

// listOrders handles the user's order history
func (h *Handler) listOrders(c *gin.Context) {
	orders, err := h.orders.ListOrders(c.Request.Context(), currentUser(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

// getOrder handles a single order lookup
func (h *Handler) getOrder(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	order, err := h.orders.GetOrder(c.Request.Context(), currentUser(c), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": order})
}

// triggerReport fires the daily sales report for today, standing in for
// the scheduled job when an operator wants it now.
func (h *Handler) triggerReport(c *gin.Context) {
	sales, err := h.reports.SendDailyReport(c.Request.Context(), time.Now().UTC())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"report": sales})
}

// respondError maps coded business errors to 4xx responses with their
// message; everything else is a generic 500 logged for the operator.
func (h *Handler) respondError(c *gin.Context, err error) {
	var appErr *apperr.Error
	if errors.As(err, &appErr) && apperr.IsBusiness(err) {
		c.JSON(statusForCode(appErr.Code), gin.H{"error": appErr.Message})
		return
	}

	h.logger.Error("Request failed",
		zap.String("path", c.FullPath()),
		zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
}

func statusForCode(code apperr.Code) int {
	switch code {
	case apperr.CodeNotFound:
		return http.StatusNotFound
	case apperr.CodeForbidden:
		return http.StatusForbidden
	case apperr.CodeConflict:
		return http.StatusConflict
	case apperr.CodeInsufficientStock, apperr.CodeEmptyCart, apperr.CodeValidation:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

const userIDKey = "userID"

// identityMiddleware resolves the caller from the X-User-ID header.
// Authentication proper is out of scope; the header stands in for the
// session.
func identityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := strconv.ParseInt(c.GetHeader("X-User-ID"), 10, 64)
		if err != nil || userID <= 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing or invalid X-User-ID header"})
			return
		}
		c.Set(userIDKey, userID)
		c.Next()
	}
}

func currentUser(c *gin.Context) int64 {
	return c.GetInt64(userIDKey)
}

// pathID parses the :id path parameter, responding 400 on garbage.
func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid id"})
		return 0, false
	}
	return id, true
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
