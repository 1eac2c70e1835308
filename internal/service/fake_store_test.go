package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"bakery-inventory/internal/models"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var errInjected = fmt.Errorf("%w: injected failure", models.ErrDataAccess)

// fakeStore is an in-memory Repository with failure injection
type fakeStore struct {
	mu sync.Mutex

	ingredients map[uuid.UUID]models.Ingredient
	recipes     map[uuid.UUID]models.Recipe
	links       map[uuid.UUID][]models.RecipeIngredient
	orders      map[uuid.UUID]models.Order
	items       map[uuid.UUID][]models.OrderItem
	processed   map[string]string

	demandErr   error
	itemsErr    error
	completeErr error
	casErr      map[uuid.UUID]error
	// beforeCAS runs inside CompareAndSetStatus, before the comparison
	beforeCAS func(id uuid.UUID)
	// keyLookupMisses makes that many idempotency lookups find nothing, as if
	// a concurrent insert had not landed yet
	keyLookupMisses int

	casCalls    int
	statusCalls map[uuid.UUID]int
	demandReads int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		ingredients: make(map[uuid.UUID]models.Ingredient),
		recipes:     make(map[uuid.UUID]models.Recipe),
		links:       make(map[uuid.UUID][]models.RecipeIngredient),
		orders:      make(map[uuid.UUID]models.Order),
		items:       make(map[uuid.UUID][]models.OrderItem),
		processed:   make(map[string]string),
		casErr:      make(map[uuid.UUID]error),
		statusCalls: make(map[uuid.UUID]int),
	}
}

// seeding helpers

func (f *fakeStore) addIngredient(account uuid.UUID, name string, quantity, low float64, unit models.Unit, status models.StockStatus) models.Ingredient {
	f.mu.Lock()
	defer f.mu.Unlock()

	ing := models.Ingredient{
		ID:            uuid.New(),
		AccountID:     account,
		Name:          name,
		CostPrice:     decimal.NewFromInt(1),
		CostQuantity:  decimal.NewFromInt(1),
		CostUnit:      unit,
		StockQuantity: decimal.NewFromFloat(quantity),
		StockUnit:     unit,
		StockStatus:   status,
		StockLow:      decimal.NewFromFloat(low),
	}
	f.ingredients[ing.ID] = ing
	return ing
}

func (f *fakeStore) addRecipe(account uuid.UUID, title string, links ...models.RecipeIngredient) models.Recipe {
	f.mu.Lock()
	defer f.mu.Unlock()

	recipe := models.Recipe{ID: uuid.New(), AccountID: account, Title: title}
	f.recipes[recipe.ID] = recipe
	for _, link := range links {
		link.ID = uuid.New()
		link.RecipeID = recipe.ID
		f.links[recipe.ID] = append(f.links[recipe.ID], link)
	}
	return recipe
}

func (f *fakeStore) addOrder(account uuid.UUID, date civil.Date, status models.OrderStatus, items ...models.OrderItem) models.Order {
	f.mu.Lock()
	defer f.mu.Unlock()

	order := models.Order{
		ID:           uuid.New(),
		AccountID:    account,
		DeliveryDate: date,
		Status:       status,
		CreatedAt:    time.Now(),
	}
	f.orders[order.ID] = order
	for _, item := range items {
		item.ID = uuid.New()
		item.OrderID = order.ID
		f.items[order.ID] = append(f.items[order.ID], item)
	}
	return order
}

func (f *fakeStore) ingredient(id uuid.UUID) models.Ingredient {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ingredients[id]
}

func (f *fakeStore) order(id uuid.UUID) (models.Order, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	return o, ok
}

func (f *fakeStore) writes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.casCalls
}

func link(ing models.Ingredient, quantity float64, unit models.Unit) models.RecipeIngredient {
	return models.RecipeIngredient{IngredientID: ing.ID, Quantity: decimal.NewFromFloat(quantity), Unit: unit}
}

func item(recipe models.Recipe, quantity int) models.OrderItem {
	return models.OrderItem{RecipeID: recipe.ID, Quantity: quantity}
}

func notFound(what string, id uuid.UUID) error {
	return fmt.Errorf("%s %s: %w", what, id, models.ErrNotFound)
}

// IngredientRepository

func (f *fakeStore) CreateIngredient(_ context.Context, ing *models.Ingredient) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.ingredients {
		if existing.AccountID == ing.AccountID && existing.Name == ing.Name {
			return fmt.Errorf("create ingredient: %w", models.ErrConflict)
		}
	}
	ing.ID = uuid.New()
	ing.CreatedAt = time.Now()
	ing.UpdatedAt = ing.CreatedAt
	f.ingredients[ing.ID] = *ing
	return nil
}

func (f *fakeStore) GetIngredient(_ context.Context, accountID, id uuid.UUID) (*models.Ingredient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ing, ok := f.ingredients[id]
	if !ok || ing.AccountID != accountID {
		return nil, notFound("ingredient", id)
	}
	return &ing, nil
}

func (f *fakeStore) ListIngredients(_ context.Context, accountID uuid.UUID) ([]models.Ingredient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []models.Ingredient{}
	for _, ing := range f.ingredients {
		if ing.AccountID == accountID {
			out = append(out, ing)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakeStore) GetIngredientsByIDs(_ context.Context, accountID uuid.UUID, ids []uuid.UUID) ([]models.Ingredient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []models.Ingredient{}
	for _, id := range ids {
		if ing, ok := f.ingredients[id]; ok && ing.AccountID == accountID {
			out = append(out, ing)
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateIngredient(_ context.Context, ing *models.Ingredient) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	existing, ok := f.ingredients[ing.ID]
	if !ok || existing.AccountID != ing.AccountID {
		return notFound("ingredient", ing.ID)
	}
	updated := *ing
	updated.StockStatus = existing.StockStatus
	f.ingredients[ing.ID] = updated
	return nil
}

func (f *fakeStore) DeleteIngredient(_ context.Context, accountID, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ing, ok := f.ingredients[id]
	if !ok || ing.AccountID != accountID {
		return notFound("ingredient", id)
	}
	delete(f.ingredients, id)
	for recipeID, links := range f.links {
		kept := links[:0]
		for _, l := range links {
			if l.IngredientID != id {
				kept = append(kept, l)
			}
		}
		f.links[recipeID] = kept
	}
	return nil
}

func (f *fakeStore) AdjustStock(_ context.Context, accountID, id uuid.UUID, delta decimal.Decimal) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ing, ok := f.ingredients[id]
	if !ok || ing.AccountID != accountID {
		return decimal.Zero, notFound("ingredient", id)
	}
	ing.StockQuantity = ing.StockQuantity.Add(delta)
	f.ingredients[id] = ing
	return ing.StockQuantity, nil
}

func (f *fakeStore) CompareAndSetStatus(_ context.Context, snapshot *models.Ingredient, status models.StockStatus) (bool, error) {
	if f.beforeCAS != nil {
		f.beforeCAS(snapshot.ID)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.casCalls++
	f.statusCalls[snapshot.ID]++

	if err := f.casErr[snapshot.ID]; err != nil {
		return false, err
	}
	current, ok := f.ingredients[snapshot.ID]
	if !ok || current.AccountID != snapshot.AccountID ||
		current.StockStatus != snapshot.StockStatus ||
		!current.StockQuantity.Equal(snapshot.StockQuantity) ||
		!current.StockLow.Equal(snapshot.StockLow) {
		return false, nil
	}
	current.StockStatus = status
	f.ingredients[snapshot.ID] = current
	return true, nil
}

func (f *fakeStore) ListAccountIDs(_ context.Context) ([]uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := map[uuid.UUID]bool{}
	out := []uuid.UUID{}
	for _, ing := range f.ingredients {
		if !seen[ing.AccountID] {
			seen[ing.AccountID] = true
			out = append(out, ing.AccountID)
		}
	}
	return out, nil
}

// RecipeRepository

func (f *fakeStore) CreateRecipe(_ context.Context, recipe *models.Recipe) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	recipe.ID = uuid.New()
	f.recipes[recipe.ID] = *recipe
	return nil
}

func (f *fakeStore) GetRecipe(_ context.Context, accountID, id uuid.UUID) (*models.Recipe, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.recipes[id]
	if !ok || r.AccountID != accountID {
		return nil, notFound("recipe", id)
	}
	return &r, nil
}

func (f *fakeStore) ListRecipes(_ context.Context, accountID uuid.UUID) ([]models.Recipe, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []models.Recipe{}
	for _, r := range f.recipes {
		if r.AccountID == accountID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out, nil
}

func (f *fakeStore) GetRecipesByIDs(_ context.Context, accountID uuid.UUID, ids []uuid.UUID) ([]models.Recipe, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []models.Recipe{}
	for _, id := range ids {
		if r, ok := f.recipes[id]; ok && r.AccountID == accountID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateRecipe(_ context.Context, recipe *models.Recipe) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	existing, ok := f.recipes[recipe.ID]
	if !ok || existing.AccountID != recipe.AccountID {
		return notFound("recipe", recipe.ID)
	}
	recipe.CreatedAt = existing.CreatedAt
	recipe.UpdatedAt = time.Now()
	stored := *recipe
	stored.Ingredients = nil
	f.recipes[recipe.ID] = stored
	return nil
}

func (f *fakeStore) DeleteRecipe(_ context.Context, accountID, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.recipes[id]
	if !ok || r.AccountID != accountID {
		return notFound("recipe", id)
	}
	for _, items := range f.items {
		for _, it := range items {
			if it.RecipeID == id {
				return fmt.Errorf("delete recipe: %w", models.ErrConflict)
			}
		}
	}
	delete(f.recipes, id)
	delete(f.links, id)
	return nil
}

func (f *fakeStore) GetRecipeIngredients(_ context.Context, recipeID uuid.UUID) ([]models.RecipeIngredient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.RecipeIngredient{}, f.links[recipeID]...), nil
}

func (f *fakeStore) ReplaceRecipeIngredients(_ context.Context, recipeID uuid.UUID, links []models.RecipeIngredient) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	replaced := make([]models.RecipeIngredient, 0, len(links))
	for _, l := range links {
		l.ID = uuid.New()
		l.RecipeID = recipeID
		replaced = append(replaced, l)
	}
	f.links[recipeID] = replaced
	return nil
}

func (f *fakeStore) GetIngredientIDsForRecipes(_ context.Context, recipeIDs []uuid.UUID) ([]uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []uuid.UUID
	for _, id := range recipeIDs {
		for _, l := range f.links[id] {
			ids = append(ids, l.IngredientID)
		}
	}
	return uniqueIDs(ids), nil
}

// OrderRepository

func (f *fakeStore) CreateOrder(_ context.Context, order *models.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if order.IdempotencyKey != nil {
		for _, o := range f.orders {
			if o.AccountID == order.AccountID && o.IdempotencyKey != nil && *o.IdempotencyKey == *order.IdempotencyKey {
				return fmt.Errorf("create order: %w", models.ErrConflict)
			}
		}
	}
	order.ID = uuid.New()
	order.CreatedAt = time.Now()
	stored := *order
	stored.Items = nil
	f.orders[order.ID] = stored
	return nil
}

func (f *fakeStore) CreateOrderItems(_ context.Context, items []models.OrderItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.itemsErr != nil {
		return f.itemsErr
	}
	for i := range items {
		items[i].ID = uuid.New()
		f.items[items[i].OrderID] = append(f.items[items[i].OrderID], items[i])
	}
	return nil
}

func (f *fakeStore) GetOrder(_ context.Context, accountID, id uuid.UUID) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.getOrderLocked(accountID, id)
}

func (f *fakeStore) getOrderLocked(accountID, id uuid.UUID) (*models.Order, error) {
	o, ok := f.orders[id]
	if !ok || o.AccountID != accountID {
		return nil, notFound("order", id)
	}
	o.Items = append([]models.OrderItem{}, f.items[id]...)
	return &o, nil
}

func (f *fakeStore) GetOrderByIdempotencyKey(_ context.Context, accountID uuid.UUID, key string) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.keyLookupMisses > 0 {
		f.keyLookupMisses--
		return nil, nil
	}
	for _, o := range f.orders {
		if o.AccountID == accountID && o.IdempotencyKey != nil && *o.IdempotencyKey == key {
			return f.getOrderLocked(accountID, o.ID)
		}
	}
	return nil, nil
}

func (f *fakeStore) GetOrdersInRange(_ context.Context, accountID uuid.UUID, start, end civil.Date) ([]models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []models.Order{}
	for _, o := range f.orders {
		if o.AccountID == accountID && inRange(o.DeliveryDate, start, end) {
			full, _ := f.getOrderLocked(accountID, o.ID)
			out = append(out, *full)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeliveryDate.Before(out[j].DeliveryDate) })
	return out, nil
}

func (f *fakeStore) GetNextPendingOrder(_ context.Context, accountID uuid.UUID, from civil.Date) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var next *models.Order
	for _, o := range f.orders {
		if o.AccountID != accountID || o.Status != models.OrderStatusPending || o.DeliveryDate.Before(from) {
			continue
		}
		if next == nil || o.DeliveryDate.Before(next.DeliveryDate) ||
			(o.DeliveryDate == next.DeliveryDate && o.CreatedAt.Before(next.CreatedAt)) {
			next, _ = f.getOrderLocked(accountID, o.ID)
		}
	}
	return next, nil
}

func (f *fakeStore) DeleteOrder(_ context.Context, accountID, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok || o.AccountID != accountID {
		return notFound("order", id)
	}
	delete(f.orders, id)
	delete(f.items, id)
	return nil
}

func (f *fakeStore) GetOrderIngredientIDs(_ context.Context, accountID, orderID uuid.UUID) ([]uuid.UUID, error) {
	lines, err := f.GetOrderDemand(context.Background(), accountID, orderID)
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.IngredientID)
	}
	return uniqueIDs(ids), nil
}

func (f *fakeStore) GetPendingDemand(_ context.Context, accountID uuid.UUID, start, end civil.Date) ([]models.DemandLine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.demandReads++
	if f.demandErr != nil {
		return nil, f.demandErr
	}
	var lines []models.DemandLine
	for _, o := range f.orders {
		if o.AccountID == accountID && o.Status == models.OrderStatusPending && inRange(o.DeliveryDate, start, end) {
			lines = append(lines, f.expandLocked(o)...)
		}
	}
	return lines, nil
}

func (f *fakeStore) GetOrderDemand(_ context.Context, accountID, orderID uuid.UUID) ([]models.DemandLine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok || o.AccountID != accountID {
		return nil, notFound("order", orderID)
	}
	return f.expandLocked(o), nil
}

func (f *fakeStore) expandLocked(o models.Order) []models.DemandLine {
	var lines []models.DemandLine
	for _, it := range f.items[o.ID] {
		for _, l := range f.links[it.RecipeID] {
			ing, ok := f.ingredients[l.IngredientID]
			if !ok || ing.AccountID != o.AccountID {
				continue
			}
			lines = append(lines, models.DemandLine{
				OrderID:        o.ID,
				ItemQuantity:   it.Quantity,
				LinkQuantity:   l.Quantity,
				LinkUnit:       l.Unit,
				IngredientID:   ing.ID,
				IngredientName: ing.Name,
				StockQuantity:  ing.StockQuantity,
				StockUnit:      ing.StockUnit,
			})
		}
	}
	return lines
}

func (f *fakeStore) CompleteOrder(_ context.Context, accountID, orderID uuid.UUID, usage []models.StockDeduction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.completeErr != nil {
		return f.completeErr
	}
	o, ok := f.orders[orderID]
	if !ok || o.AccountID != accountID {
		return notFound("order", orderID)
	}
	switch o.Status {
	case models.OrderStatusCompleted:
		return models.ErrAlreadyCompleted
	case models.OrderStatusCancelled:
		return models.ErrCannotCompleteCancelled
	}
	for _, u := range usage {
		ing, ok := f.ingredients[u.IngredientID]
		if !ok {
			continue
		}
		ing.StockQuantity = decimal.Max(decimal.Zero, ing.StockQuantity.Sub(u.Amount))
		f.ingredients[u.IngredientID] = ing
	}
	o.Status = models.OrderStatusCompleted
	f.orders[orderID] = o
	return nil
}

func (f *fakeStore) TransitionOrderStatus(_ context.Context, accountID, orderID uuid.UUID, from, to models.OrderStatus) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok || o.AccountID != accountID || o.Status != from {
		return false, nil
	}
	o.Status = to
	f.orders[orderID] = o
	return true, nil
}

// EventLog

func (f *fakeStore) IsEventProcessed(_ context.Context, eventID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.processed[eventID]
	return ok, nil
}

func (f *fakeStore) MarkEventProcessed(_ context.Context, eventID, eventType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processed[eventID] = eventType
	return nil
}

func inRange(d, start, end civil.Date) bool {
	return !d.Before(start) && !d.After(end)
}

// recordingPublisher captures published events
type recordingPublisher struct {
	mu        sync.Mutex
	orders    []*models.OrderEvent
	statuses  []*models.StockStatusChangedEvent
	reconcile []*models.ReconcileRequestedEvent
	err       error
}

func (p *recordingPublisher) PublishOrderEvent(_ context.Context, e *models.OrderEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.orders = append(p.orders, e)
	return p.err
}

func (p *recordingPublisher) PublishStockStatusChanged(_ context.Context, e *models.StockStatusChangedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.statuses = append(p.statuses, e)
	return p.err
}

func (p *recordingPublisher) PublishReconcileRequested(_ context.Context, e *models.ReconcileRequestedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reconcile = append(p.reconcile, e)
	return p.err
}

// memLocker is a single-process Locker
type memLocker struct {
	mu       sync.Mutex
	held     map[string]string
	acquired int
	err      error
}

func newMemLocker() *memLocker {
	return &memLocker{held: make(map[string]string)}
}

func (l *memLocker) AcquireLock(_ context.Context, key string, _ time.Duration) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return "", false, l.err
	}
	if _, ok := l.held[key]; ok {
		return "", false, nil
	}
	token := uuid.NewString()
	l.held[key] = token
	l.acquired++
	return token, true, nil
}

func (l *memLocker) ReleaseLock(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] != token {
		return errors.New("lock not held")
	}
	delete(l.held, key)
	return nil
}

// testClock pins "today" for the services under test
var testToday = civil.Date{Year: 2024, Month: 3, Day: 11}

func testOptions() Options {
	return Options{
		DemandLookaheadDays: 7,
		Location:            time.UTC,
		Now: func() time.Time {
			return testToday.In(time.UTC).Add(10 * time.Hour)
		},
	}
}

type harness struct {
	store        *fakeStore
	publisher    *recordingPublisher
	locker       *memLocker
	aggregator   *RequirementAggregator
	synchronizer *StatusSynchronizer
	orders       *OrderService
	account      uuid.UUID
}

func newHarness() *harness {
	store := newFakeStore()
	publisher := &recordingPublisher{}
	locker := newMemLocker()
	opts := testOptions()

	aggregator := NewRequirementAggregator(store)
	synchronizer := NewStatusSynchronizer(store, aggregator, locker, publisher, opts)
	return &harness{
		store:        store,
		publisher:    publisher,
		locker:       locker,
		aggregator:   aggregator,
		synchronizer: synchronizer,
		orders:       NewOrderService(store, aggregator, synchronizer, publisher, opts),
		account:      uuid.New(),
	}
}
