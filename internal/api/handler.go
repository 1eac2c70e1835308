package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"bakery-inventory/internal/models"
	"bakery-inventory/internal/service"
	"bakery-inventory/internal/util"

	"cloud.google.com/go/civil"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ReadinessCheck is one dependency probed by /ready
type ReadinessCheck struct {
	Name string
	Ping func(ctx context.Context) error
}

// Dependencies are the services behind the HTTP surface
type Dependencies struct {
	Ingredients *service.IngredientService
	Recipes     *service.RecipeService
	Orders      *service.OrderService
	Alerts      *service.AlertRanker
	Dashboard   *service.DashboardService
	Reconciler  *service.Reconciler
	Auth        *Authenticator
	Checks      []ReadinessCheck

	AlertLimitDashboard int
	AlertLimitList      int
}

// Handler contains HTTP handlers
type Handler struct {
	deps   Dependencies
	logger *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(deps Dependencies) *Handler {
	if deps.AlertLimitDashboard <= 0 {
		deps.AlertLimitDashboard = service.DefaultAlertLimit
	}
	if deps.AlertLimitList <= 0 {
		deps.AlertLimitList = 10
	}
	return &Handler{deps: deps, logger: util.Named("http")}
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
	v1.Use(h.deps.Auth.Middleware())
	{
		v1.GET("/ingredients", h.listIngredients)
		v1.POST("/ingredients", h.createIngredient)
		v1.POST("/ingredients/sync", h.syncIngredients)
		v1.PUT("/ingredients/:id", h.updateIngredient)
		v1.DELETE("/ingredients/:id", h.deleteIngredient)
		v1.POST("/ingredients/:id/adjust", h.adjustStock)

		v1.GET("/recipes", h.listRecipes)
		v1.POST("/recipes", h.createRecipe)
		v1.PUT("/recipes/:id", h.updateRecipe)
		v1.DELETE("/recipes/:id", h.deleteRecipe)
		v1.PUT("/recipes/:id/ingredients", h.setRecipeIngredients)
		v1.GET("/recipes/:id/cost", h.recipeCost)
		v1.GET("/recipes/:id/can-make", h.canMakeRecipe)

		v1.GET("/orders", h.listOrders)
		v1.POST("/orders", h.createOrder)
		v1.GET("/orders/next", h.nextOrder)
		v1.GET("/orders/requirements", h.orderRequirements)
		v1.GET("/orders/:id", h.getOrder)
		v1.POST("/orders/:id/complete", h.completeOrder)
		v1.POST("/orders/:id/cancel", h.cancelOrder)
		v1.DELETE("/orders/:id", h.deleteOrder)

		v1.GET("/alerts", h.listAlerts)
		v1.GET("/dashboard", h.dashboard)
		v1.POST("/inventory/reconcile", h.requestReconcile)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck reports ready only when every dependency answers
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failures := gin.H{}
	for _, check := range h.deps.Checks {
		if err := check.Ping(ctx); err != nil {
			failures[check.Name] = err.Error()
		}
	}
	if len(failures) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "not ready",
			"failures": failures,
			"time":     time.Now().Unix(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// Ingredients

func (h *Handler) listIngredients(c *gin.Context) {
	account, _ := accountID(c)
	ingredients, err := h.deps.Ingredients.ListIngredients(c.Request.Context(), account)
	respond(c, http.StatusOK, ingredients, err)
}

func (h *Handler) createIngredient(c *gin.Context) {
	account, _ := accountID(c)
	var req service.IngredientRequest
	if !bindJSON(c, &req) {
		return
	}
	ing, err := h.deps.Ingredients.CreateIngredient(c.Request.Context(), account, &req)
	respond(c, http.StatusCreated, ing, err)
}

func (h *Handler) updateIngredient(c *gin.Context) {
	account, _ := accountID(c)
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req service.IngredientRequest
	if !bindJSON(c, &req) {
		return
	}
	ing, err := h.deps.Ingredients.UpdateIngredient(c.Request.Context(), account, id, &req)
	respond(c, http.StatusOK, ing, err)
}

func (h *Handler) deleteIngredient(c *gin.Context) {
	account, _ := accountID(c)
	id, ok := pathID(c)
	if !ok {
		return
	}
	err := h.deps.Ingredients.DeleteIngredient(c.Request.Context(), account, id)
	respond(c, http.StatusOK, nil, err)
}

type adjustStockRequest struct {
	Delta decimal.Decimal `json:"delta"`
}

func (h *Handler) adjustStock(c *gin.Context) {
	account, _ := accountID(c)
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req adjustStockRequest
	if !bindJSON(c, &req) {
		return
	}
	ing, err := h.deps.Ingredients.AdjustStock(c.Request.Context(), account, id, req.Delta)
	respond(c, http.StatusOK, ing, err)
}

type syncRequest struct {
	IngredientIDs []uuid.UUID `json:"ingredient_ids"`
}

func (h *Handler) syncIngredients(c *gin.Context) {
	account, _ := accountID(c)
	var req syncRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}
	result, err := h.deps.Ingredients.SyncStatuses(c.Request.Context(), account, req.IngredientIDs)
	respond(c, http.StatusOK, gin.H{
		"checked": result.Checked,
		"updated": result.Updated,
		"stale":   result.Stale,
		"failed":  result.Failed,
	}, err)
}

// Recipes

func (h *Handler) listRecipes(c *gin.Context) {
	account, _ := accountID(c)
	recipes, err := h.deps.Recipes.ListRecipes(c.Request.Context(), account)
	respond(c, http.StatusOK, recipes, err)
}

func (h *Handler) createRecipe(c *gin.Context) {
	account, _ := accountID(c)
	var req service.RecipeRequest
	if !bindJSON(c, &req) {
		return
	}
	recipe, err := h.deps.Recipes.CreateRecipe(c.Request.Context(), account, &req)
	respond(c, http.StatusCreated, recipe, err)
}

func (h *Handler) updateRecipe(c *gin.Context) {
	account, _ := accountID(c)
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req service.RecipeRequest
	if !bindJSON(c, &req) {
		return
	}
	recipe, err := h.deps.Recipes.UpdateRecipe(c.Request.Context(), account, id, &req)
	respond(c, http.StatusOK, recipe, err)
}

func (h *Handler) deleteRecipe(c *gin.Context) {
	account, _ := accountID(c)
	id, ok := pathID(c)
	if !ok {
		return
	}
	err := h.deps.Recipes.DeleteRecipe(c.Request.Context(), account, id)
	respond(c, http.StatusOK, nil, err)
}

func (h *Handler) setRecipeIngredients(c *gin.Context) {
	account, _ := accountID(c)
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req []service.RecipeIngredientRequest
	if !bindJSON(c, &req) {
		return
	}
	links, err := h.deps.Recipes.SetRecipeIngredients(c.Request.Context(), account, id, req)
	respond(c, http.StatusOK, links, err)
}

func (h *Handler) recipeCost(c *gin.Context) {
	account, _ := accountID(c)
	id, ok := pathID(c)
	if !ok {
		return
	}
	cost, err := h.deps.Recipes.RecipeCost(c.Request.Context(), account, id)
	respond(c, http.StatusOK, gin.H{"cost": cost}, err)
}

func (h *Handler) canMakeRecipe(c *gin.Context) {
	account, _ := accountID(c)
	id, ok := pathID(c)
	if !ok {
		return
	}
	batches, ok := queryInt(c, "batches", 1)
	if !ok {
		return
	}
	missing, err := h.deps.Recipes.CanMakeRecipe(c.Request.Context(), account, id, batches)
	respond(c, http.StatusOK, gin.H{
		"can_make": len(missing) == 0,
		"missing":  missing,
	}, err)
}

// Orders

func (h *Handler) listOrders(c *gin.Context) {
	account, _ := accountID(c)
	start, end, ok := dateRange(c)
	if !ok {
		return
	}
	orders, err := h.deps.Orders.GetOrders(c.Request.Context(), account, start, end)
	respond(c, http.StatusOK, orders, err)
}

// createOrder handles order creation
func (h *Handler) createOrder(c *gin.Context) {
	account, _ := accountID(c)
	var req service.CreateOrderRequest
	if !bindJSON(c, &req) {
		return
	}

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}

	order, err := h.deps.Orders.CreateOrder(c.Request.Context(), account, &req)
	respond(c, http.StatusCreated, order, err)
}

func (h *Handler) getOrder(c *gin.Context) {
	account, _ := accountID(c)
	id, ok := pathID(c)
	if !ok {
		return
	}
	order, err := h.deps.Orders.GetOrder(c.Request.Context(), account, id)
	respond(c, http.StatusOK, order, err)
}

func (h *Handler) nextOrder(c *gin.Context) {
	account, _ := accountID(c)
	order, err := h.deps.Orders.GetNextOrder(c.Request.Context(), account)
	respond(c, http.StatusOK, order, err)
}

func (h *Handler) orderRequirements(c *gin.Context) {
	account, _ := accountID(c)
	start, end, ok := dateRange(c)
	if !ok {
		return
	}
	reqs, err := h.deps.Orders.GetOrderRequirements(c.Request.Context(), account, start, end)
	respond(c, http.StatusOK, reqs, err)
}

func (h *Handler) completeOrder(c *gin.Context) {
	account, _ := accountID(c)
	id, ok := pathID(c)
	if !ok {
		return
	}
	err := h.deps.Orders.CompleteOrder(c.Request.Context(), account, id)
	respond(c, http.StatusOK, nil, err)
}

func (h *Handler) cancelOrder(c *gin.Context) {
	account, _ := accountID(c)
	id, ok := pathID(c)
	if !ok {
		return
	}
	err := h.deps.Orders.CancelOrder(c.Request.Context(), account, id)
	respond(c, http.StatusOK, nil, err)
}

func (h *Handler) deleteOrder(c *gin.Context) {
	account, _ := accountID(c)
	id, ok := pathID(c)
	if !ok {
		return
	}
	err := h.deps.Orders.DeleteOrder(c.Request.Context(), account, id)
	respond(c, http.StatusOK, nil, err)
}

// Alerts and dashboard

func (h *Handler) listAlerts(c *gin.Context) {
	account, _ := accountID(c)
	limit, ok := queryInt(c, "limit", h.deps.AlertLimitList)
	if !ok {
		return
	}
	if limit <= 0 {
		limit = h.deps.AlertLimitList
	}
	alerts, err := h.deps.Alerts.GetAlerts(c.Request.Context(), account, limit)
	respond(c, http.StatusOK, alerts, err)
}

func (h *Handler) dashboard(c *gin.Context) {
	account, _ := accountID(c)
	ctx := c.Request.Context()

	stats, err := h.deps.Dashboard.GetStats(ctx, account)
	if err != nil {
		respond(c, http.StatusOK, nil, err)
		return
	}
	alerts, err := h.deps.Alerts.GetAlerts(ctx, account, h.deps.AlertLimitDashboard)
	respond(c, http.StatusOK, gin.H{
		"stats":  stats,
		"alerts": alerts,
	}, err)
}

func (h *Handler) requestReconcile(c *gin.Context) {
	account, _ := accountID(c)
	eventID, err := h.deps.Reconciler.RequestReconcile(c.Request.Context(), account)
	respond(c, http.StatusAccepted, gin.H{"event_id": eventID}, err)
}

// request helpers

func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "invalid request body: " + err.Error(),
		})
		return false
	}
	return true
}

func pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "invalid id",
		})
		return uuid.Nil, false
	}
	return id, true
}

func queryInt(c *gin.Context, name string, def int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "invalid " + name,
		})
		return 0, false
	}
	return n, true
}

// dateRange reads start and end as YYYY-MM-DD; both are required
func dateRange(c *gin.Context) (civil.Date, civil.Date, bool) {
	start, errStart := civil.ParseDate(c.Query("start"))
	end, errEnd := civil.ParseDate(c.Query("end"))
	if errStart != nil || errEnd != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "start and end must be dates in YYYY-MM-DD format",
		})
		return civil.Date{}, civil.Date{}, false
	}
	return start, end, true
}

// response helpers

func respond(c *gin.Context, status int, data interface{}, err error) {
	if err != nil {
		writeError(c, err)
		return
	}
	body := gin.H{"success": true}
	if data != nil {
		body["data"] = data
	}
	c.JSON(status, body)
}

func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		util.Named("http").Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
		message = "internal error"
	}
	c.JSON(status, gin.H{
		"success": false,
		"error":   message,
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrNotAuthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, models.ErrInvalidState):
		return http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
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
