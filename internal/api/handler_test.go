package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"bakery-inventory/internal/models"
	"bakery-inventory/internal/service"

	"cloud.google.com/go/civil"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

type stubInventory struct {
	demand      []models.DemandLine
	ingredients []models.Ingredient
	recipes     []models.Recipe
	err         error
}

func (s *stubInventory) GetPendingDemand(context.Context, uuid.UUID, civil.Date, civil.Date) ([]models.DemandLine, error) {
	return s.demand, s.err
}

func (s *stubInventory) ListIngredients(context.Context, uuid.UUID) ([]models.Ingredient, error) {
	return s.ingredients, s.err
}

func (s *stubInventory) ListRecipes(context.Context, uuid.UUID) ([]models.Recipe, error) {
	return s.recipes, s.err
}

// stubRecipes serves the recipe reads and writes the handler tests reach;
// any other call panics on the nil embedded store.
type stubRecipes struct {
	service.RecipeStore
	account uuid.UUID
	recipes map[uuid.UUID]models.Recipe
}

func (s *stubRecipes) UpdateRecipe(_ context.Context, recipe *models.Recipe) error {
	existing, ok := s.recipes[recipe.ID]
	if !ok || recipe.AccountID != s.account {
		return fmt.Errorf("recipe %s: %w", recipe.ID, models.ErrNotFound)
	}
	recipe.CreatedAt = existing.CreatedAt
	s.recipes[recipe.ID] = *recipe
	return nil
}

func (s *stubRecipes) GetRecipeIngredients(context.Context, uuid.UUID) ([]models.RecipeIngredient, error) {
	return []models.RecipeIngredient{}, nil
}

func newTestRouter(inv *stubInventory, checks ...ReadinessCheck) *gin.Engine {
	return newTestRouterWithRecipes(inv, nil, checks...)
}

func newTestRouterWithRecipes(inv *stubInventory, recipes service.RecipeStore, checks ...ReadinessCheck) *gin.Engine {
	gin.SetMode(gin.TestMode)

	opts := service.Options{
		Location: time.UTC,
		Now:      func() time.Time { return time.Date(2024, 3, 11, 10, 0, 0, 0, time.UTC) },
	}
	aggregator := service.NewRequirementAggregator(inv)

	handler := NewHandler(Dependencies{
		Recipes:             service.NewRecipeService(recipes, nil),
		Orders:              service.NewOrderService(nil, aggregator, nil, nil, opts),
		Alerts:              service.NewAlertRanker(inv, aggregator, opts),
		Dashboard:           service.NewDashboardService(inv),
		Auth:                NewAuthenticator(testSecret),
		Checks:              checks,
		AlertLimitDashboard: 1,
		AlertLimitList:      10,
	})

	router := gin.New()
	handler.SetupRoutes(router)
	return router
}

func signToken(t *testing.T, secret, subject string, expires time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(expires),
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func doRequest(router *gin.Engine, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func doJSON(router *gin.Engine, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	payload, _ := json.Marshal(body)
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Success bool            `json:"success"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var body envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestHealthAndReadiness(t *testing.T) {
	router := newTestRouter(&stubInventory{},
		ReadinessCheck{Name: "postgres", Ping: func(context.Context) error { return nil }})

	w := doRequest(router, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = doRequest(router, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusOK, w.Code)

	router = newTestRouter(&stubInventory{},
		ReadinessCheck{Name: "redis", Ping: func(context.Context) error { return errors.New("connection refused") }})
	w = doRequest(router, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "redis")
}

func TestAuthentication(t *testing.T) {
	router := newTestRouter(&stubInventory{})
	account := uuid.New().String()
	future := time.Now().Add(time.Hour)

	tests := []struct {
		name  string
		token string
		want  int
	}{
		{"missing token", "", http.StatusUnauthorized},
		{"garbage token", "not-a-jwt", http.StatusUnauthorized},
		{"wrong secret", signToken(t, "other-secret", account, future), http.StatusUnauthorized},
		{"expired", signToken(t, testSecret, account, time.Now().Add(-time.Minute)), http.StatusUnauthorized},
		{"subject not an account", signToken(t, testSecret, "baker", future), http.StatusUnauthorized},
		{"valid", signToken(t, testSecret, account, future), http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(router, http.MethodGet, "/api/v1/dashboard", tt.token)
			assert.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusUnauthorized {
				body := decode(t, w)
				assert.False(t, body.Success)
				assert.NotEmpty(t, body.Error)
			}
		})
	}
}

func TestAuthenticationRejectsOtherAlgorithms(t *testing.T) {
	router := newTestRouter(&stubInventory{})

	token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   uuid.New().String(),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	w := doRequest(router, http.MethodGet, "/api/v1/dashboard", signed)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequestValidation(t *testing.T) {
	router := newTestRouter(&stubInventory{})
	token := signToken(t, testSecret, uuid.New().String(), time.Now().Add(time.Hour))

	tests := []struct {
		name   string
		method string
		path   string
	}{
		{"bad order id", http.MethodGet, "/api/v1/orders/not-a-uuid"},
		{"missing dates", http.MethodGet, "/api/v1/orders/requirements"},
		{"bad date", http.MethodGet, "/api/v1/orders?start=2024-13-01&end=2024-03-20"},
		{"end before start", http.MethodGet, "/api/v1/orders/requirements?start=2024-03-20&end=2024-03-11"},
		{"end before start listing", http.MethodGet, "/api/v1/orders?start=2024-03-20&end=2024-03-11"},
		{"bad limit", http.MethodGet, "/api/v1/alerts?limit=many"},
		{"bad batches", http.MethodGet, "/api/v1/recipes/" + uuid.New().String() + "/can-make?batches=x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(router, tt.method, tt.path, token)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.False(t, decode(t, w).Success)
		})
	}
}

func TestOrderRequirements(t *testing.T) {
	flour := uuid.New()
	inv := &stubInventory{demand: []models.DemandLine{
		{
			OrderID:        uuid.New(),
			ItemQuantity:   2,
			LinkQuantity:   decimal.NewFromFloat(0.5),
			LinkUnit:       models.UnitKilogram,
			IngredientID:   flour,
			IngredientName: "Flour",
			StockQuantity:  decimal.NewFromInt(600),
			StockUnit:      models.UnitGram,
		},
	}}
	router := newTestRouter(inv)
	token := signToken(t, testSecret, uuid.New().String(), time.Now().Add(time.Hour))

	w := doRequest(router, http.MethodGet, "/api/v1/orders/requirements?start=2024-03-11&end=2024-03-18", token)
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.True(t, body.Success)

	var reqs []models.IngredientRequirement
	require.NoError(t, json.Unmarshal(body.Data, &reqs))
	require.Len(t, reqs, 1)
	assert.Equal(t, flour, reqs[0].ID)
	assert.True(t, decimal.NewFromInt(1000).Equal(reqs[0].Required))
	assert.True(t, decimal.NewFromInt(400).Equal(reqs[0].Missing))
	assert.Equal(t, models.UnitGram, reqs[0].Unit)
}

func TestDashboardIncludesCappedAlerts(t *testing.T) {
	inv := &stubInventory{
		ingredients: []models.Ingredient{
			{ID: uuid.New(), Name: "Butter", StockQuantity: decimal.NewFromInt(50), StockLow: decimal.NewFromInt(100),
				StockUnit: models.UnitGram, StockStatus: models.StockStatusLow, CostUnit: models.UnitGram},
			{ID: uuid.New(), Name: "Sugar", StockQuantity: decimal.NewFromInt(10), StockLow: decimal.NewFromInt(100),
				StockUnit: models.UnitGram, StockStatus: models.StockStatusLow, CostUnit: models.UnitGram},
			{ID: uuid.New(), Name: "Salt", StockQuantity: decimal.NewFromInt(500),
				StockUnit: models.UnitGram, StockStatus: models.StockStatusAvailable, CostUnit: models.UnitGram},
		},
		recipes: []models.Recipe{{ID: uuid.New(), Title: "Bread"}},
	}
	router := newTestRouter(inv)
	token := signToken(t, testSecret, uuid.New().String(), time.Now().Add(time.Hour))

	w := doRequest(router, http.MethodGet, "/api/v1/dashboard", token)
	require.Equal(t, http.StatusOK, w.Code)

	var data struct {
		Stats  models.DashboardStats `json:"stats"`
		Alerts []models.StockAlert   `json:"alerts"`
	}
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &data))
	assert.Equal(t, 1, data.Stats.TotalRecipes)
	assert.Equal(t, 3, data.Stats.TotalIngredients)
	assert.Equal(t, 2, data.Stats.LowStockIngredients)
	require.Len(t, data.Alerts, 1)
	assert.Equal(t, "Sugar", data.Alerts[0].Name)

	w = doRequest(router, http.MethodGet, "/api/v1/alerts", token)
	require.Equal(t, http.StatusOK, w.Code)
	var alerts []models.StockAlert
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &alerts))
	assert.Len(t, alerts, 2)
}

func TestAlertLimitFallsBackToListLimit(t *testing.T) {
	inv := &stubInventory{}
	for i := 0; i < 12; i++ {
		inv.ingredients = append(inv.ingredients, models.Ingredient{
			ID:            uuid.New(),
			Name:          fmt.Sprintf("Ingredient %d", i),
			StockQuantity: decimal.NewFromInt(int64(i + 1)),
			StockLow:      decimal.NewFromInt(100),
			StockUnit:     models.UnitGram,
			StockStatus:   models.StockStatusLow,
		})
	}
	router := newTestRouter(inv)
	token := signToken(t, testSecret, uuid.New().String(), time.Now().Add(time.Hour))

	tests := []struct {
		query string
		want  int
	}{
		{"", 10},
		{"?limit=0", 10},
		{"?limit=-3", 10},
		{"?limit=3", 3},
	}

	for _, tt := range tests {
		t.Run("limit"+tt.query, func(t *testing.T) {
			w := doRequest(router, http.MethodGet, "/api/v1/alerts"+tt.query, token)
			require.Equal(t, http.StatusOK, w.Code)
			var alerts []models.StockAlert
			require.NoError(t, json.Unmarshal(decode(t, w).Data, &alerts))
			assert.Len(t, alerts, tt.want)
		})
	}
}

func TestUpdateRecipe(t *testing.T) {
	account := uuid.New()
	recipeID := uuid.New()
	recipes := &stubRecipes{
		account: account,
		recipes: map[uuid.UUID]models.Recipe{recipeID: {ID: recipeID, AccountID: account, Title: "Bread"}},
	}
	router := newTestRouterWithRecipes(&stubInventory{}, recipes)
	token := signToken(t, testSecret, account.String(), time.Now().Add(time.Hour))

	w := doJSON(router, http.MethodPut, "/api/v1/recipes/"+recipeID.String(), token, gin.H{
		"title":        "Sourdough",
		"portions":     2,
		"prep_minutes": 90,
		"price":        "6.50",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var recipe models.Recipe
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &recipe))
	assert.Equal(t, recipeID, recipe.ID)
	assert.Equal(t, "Sourdough", recipe.Title)
	assert.Equal(t, "Sourdough", recipes.recipes[recipeID].Title)
	assert.True(t, decimal.NewFromFloat(6.5).Equal(recipes.recipes[recipeID].Price))

	w = doJSON(router, http.MethodPut, "/api/v1/recipes/"+uuid.New().String(), token, gin.H{"title": "Rye"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(router, http.MethodPut, "/api/v1/recipes/"+recipeID.String(), token, gin.H{"portions": 2})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(router, http.MethodPut, "/api/v1/recipes/"+recipeID.String(), token, gin.H{"title": "Rye", "portions": -1})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStoreFailureIsInternalError(t *testing.T) {
	inv := &stubInventory{err: fmt.Errorf("%w: connection reset", models.ErrDataAccess)}
	router := newTestRouter(inv)
	token := signToken(t, testSecret, uuid.New().String(), time.Now().Add(time.Hour))

	w := doRequest(router, http.MethodGet, "/api/v1/dashboard", token)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	body := decode(t, w)
	assert.Equal(t, "internal error", body.Error)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{models.ErrNotAuthenticated, http.StatusUnauthorized},
		{fmt.Errorf("order: %w", models.ErrNotFound), http.StatusNotFound},
		{models.ErrConflict, http.StatusConflict},
		{models.ErrAlreadyCompleted, http.StatusUnprocessableEntity},
		{models.ErrCannotCancelCompleted, http.StatusUnprocessableEntity},
		{fmt.Errorf("%w: quantity must be positive", models.ErrValidation), http.StatusBadRequest},
		{models.ErrDataAccess, http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}
