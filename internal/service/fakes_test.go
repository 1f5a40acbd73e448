package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"storefront-service/internal/apperr"
	"storefront-service/internal/models"
	"storefront-service/internal/store"

	"github.com/shopspring/decimal"
)

// fakeStore is an in-memory Store. BeginTx holds the store lock until
// Commit or Rollback, so transactions serialize exactly like row-locked
// database transactions, and Rollback discards the staged copy.
type fakeStore struct {
	mu    sync.Mutex
	state fakeState

	beginErr  error
	commitErr error
	// failOp forces the named Tx operation to fail, to exercise rollback
	failOp string
}

type fakeState struct {
	products   map[int64]models.Product
	cartItems  map[int64]models.CartItem
	orders     map[int64]models.Order
	orderItems map[int64][]models.OrderItem

	nextCartItemID  int64
	nextOrderID     int64
	nextOrderItemID int64
}

func newFakeStore(products ...models.Product) *fakeStore {
	s := &fakeStore{
		state: fakeState{
			products:        map[int64]models.Product{},
			cartItems:       map[int64]models.CartItem{},
			orders:          map[int64]models.Order{},
			orderItems:      map[int64][]models.OrderItem{},
			nextCartItemID:  1,
			nextOrderID:     1,
			nextOrderItemID: 1,
		},
	}
	for _, p := range products {
		s.state.products[p.ID] = p
	}
	return s
}

func (s *fakeStore) clone() fakeState {
	c := fakeState{
		products:        make(map[int64]models.Product, len(s.state.products)),
		cartItems:       make(map[int64]models.CartItem, len(s.state.cartItems)),
		orders:          make(map[int64]models.Order, len(s.state.orders)),
		orderItems:      make(map[int64][]models.OrderItem, len(s.state.orderItems)),
		nextCartItemID:  s.state.nextCartItemID,
		nextOrderID:     s.state.nextOrderID,
		nextOrderItemID: s.state.nextOrderItemID,
	}
	for k, v := range s.state.products {
		c.products[k] = v
	}
	for k, v := range s.state.cartItems {
		c.cartItems[k] = v
	}
	for k, v := range s.state.orders {
		c.orders[k] = v
	}
	for k, v := range s.state.orderItems {
		items := make([]models.OrderItem, len(v))
		copy(items, v)
		c.orderItems[k] = items
	}
	return c
}

func (s *fakeStore) BeginTx(ctx context.Context) (store.Tx, error) {
	if s.beginErr != nil {
		return nil, s.beginErr
	}
	s.mu.Lock()
	return &fakeTx{store: s, staged: s.clone()}, nil
}

func (s *fakeStore) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.state.products[id]
	if !ok {
		return nil, apperr.New(apperr.CodeNotFound, "product not found: %d", id)
	}
	return &p, nil
}

func (s *fakeStore) GetProducts(ctx context.Context) ([]models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var products []models.Product
	for _, p := range s.state.products {
		products = append(products, p)
	}
	sort.Slice(products, func(i, j int) bool { return products[i].ID < products[j].ID })
	return products, nil
}

func cartLinesLocked(state *fakeState, userID int64) []models.CartLine {
	var lines []models.CartLine
	for _, item := range state.cartItems {
		if item.UserID != userID {
			continue
		}
		lines = append(lines, models.CartLine{
			CartItem: item,
			Product:  state.products[item.ProductID],
		})
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].ID < lines[j].ID })
	return lines
}

func (s *fakeStore) GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var products []models.Product
	for _, id := range ids {
		if p, ok := s.state.products[id]; ok {
			products = append(products, p)
		}
	}
	sort.Slice(products, func(i, j int) bool { return products[i].ID < products[j].ID })
	return products, nil
}

func (s *fakeStore) GetCartLines(ctx context.Context, userID int64) ([]models.CartLine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cartLinesLocked(&s.state, userID), nil
}

func (s *fakeStore) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.state.orders[id]
	if !ok {
		return nil, apperr.New(apperr.CodeNotFound, "order not found: %d", id)
	}
	return &o, nil
}

func (s *fakeStore) GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.state.orders {
		if o.IdempotencyKey == key {
			o := o
			return &o, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) GetOrdersByUserID(ctx context.Context, userID int64) ([]models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var orders []models.Order
	for _, o := range s.state.orders {
		if o.UserID == userID {
			orders = append(orders, o)
		}
	}
	sort.Slice(orders, func(i, j int) bool {
		if !orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].CreatedAt.After(orders[j].CreatedAt)
		}
		return orders[i].ID > orders[j].ID
	})
	return orders, nil
}

func (s *fakeStore) GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]models.OrderItem, len(s.state.orderItems[orderID]))
	copy(items, s.state.orderItems[orderID])
	for i := range items {
		items[i].ProductName = s.state.products[items[i].ProductID].Name
	}
	return items, nil
}

func (s *fakeStore) GetOrderItemsByOrderIDs(ctx context.Context, orderIDs []int64) ([]models.OrderItem, error) {
	var all []models.OrderItem
	for _, id := range orderIDs {
		items, _ := s.GetOrderItemsByOrderID(ctx, id)
		all = append(all, items...)
	}
	return all, nil
}

func (s *fakeStore) GetDailySales(ctx context.Context, day time.Time) (*models.DailySales, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := day.UTC().Truncate(24 * time.Hour)
	end := start.Add(24 * time.Hour)
	sales := &models.DailySales{Day: start, TotalRevenue: decimal.Zero}

	byName := map[string]*models.ProductSales{}
	for _, o := range s.state.orders {
		created := o.CreatedAt.UTC()
		if o.Status != models.OrderStatusCompleted || created.Before(start) || !created.Before(end) {
			continue
		}
		sales.TotalOrders++
		sales.TotalRevenue = sales.TotalRevenue.Add(o.TotalAmount)
		for _, item := range s.state.orderItems[o.ID] {
			name := s.state.products[item.ProductID].Name
			ps, ok := byName[name]
			if !ok {
				ps = &models.ProductSales{ProductName: name, Revenue: decimal.Zero}
				byName[name] = ps
			}
			ps.Quantity += item.Quantity
			ps.Revenue = ps.Revenue.Add(item.Subtotal())
		}
	}
	for _, ps := range byName {
		sales.Products = append(sales.Products, *ps)
	}
	sort.Slice(sales.Products, func(i, j int) bool {
		if sales.Products[i].Quantity != sales.Products[j].Quantity {
			return sales.Products[i].Quantity > sales.Products[j].Quantity
		}
		return sales.Products[i].ProductName < sales.Products[j].ProductName
	})
	return sales, nil
}

// stockOf reads current committed stock, for assertions.
func (s *fakeStore) stockOf(id int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.products[id].StockQuantity
}

func (s *fakeStore) orderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state.orders)
}

type fakeTx struct {
	store  *fakeStore
	staged fakeState
	done   bool
}

func (t *fakeTx) finish(commit bool) error {
	if t.done {
		return nil
	}
	t.done = true
	if commit {
		t.store.state = t.staged
	}
	t.store.mu.Unlock()
	return nil
}

func (t *fakeTx) Commit() error {
	if t.store.commitErr != nil {
		err := t.store.commitErr
		t.finish(false)
		return err
	}
	return t.finish(true)
}

func (t *fakeTx) Rollback() error {
	return t.finish(false)
}

func (t *fakeTx) fail(op string) error {
	if t.store.failOp == op {
		return apperr.New(apperr.CodeInternal, "forced %s failure", op)
	}
	return nil
}

func (t *fakeTx) ProductForUpdate(ctx context.Context, id int64) (*models.Product, error) {
	if err := t.fail("ProductForUpdate"); err != nil {
		return nil, err
	}
	p, ok := t.staged.products[id]
	if !ok {
		return nil, apperr.New(apperr.CodeNotFound, "product not found: %d", id)
	}
	return &p, nil
}

func (t *fakeTx) CartLinesForUpdate(ctx context.Context, userID int64) ([]models.CartLine, error) {
	if err := t.fail("CartLinesForUpdate"); err != nil {
		return nil, err
	}
	return cartLinesLocked(&t.staged, userID), nil
}

func (t *fakeTx) CartItemForUpdate(ctx context.Context, id int64) (*models.CartItem, error) {
	item, ok := t.staged.cartItems[id]
	if !ok {
		return nil, apperr.New(apperr.CodeNotFound, "cart item not found: %d", id)
	}
	return &item, nil
}

func (t *fakeTx) UpsertCartItem(ctx context.Context, userID, productID int64, addQty int) (*models.CartItem, error) {
	for id, item := range t.staged.cartItems {
		if item.UserID == userID && item.ProductID == productID {
			item.Quantity += addQty
			item.UpdatedAt = time.Now()
			t.staged.cartItems[id] = item
			return &item, nil
		}
	}
	item := models.CartItem{
		ID:        t.staged.nextCartItemID,
		UserID:    userID,
		ProductID: productID,
		Quantity:  addQty,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	t.staged.nextCartItemID++
	t.staged.cartItems[item.ID] = item
	return &item, nil
}

func (t *fakeTx) SetCartItemQuantity(ctx context.Context, id int64, quantity int) (*models.CartItem, error) {
	item, ok := t.staged.cartItems[id]
	if !ok {
		return nil, apperr.New(apperr.CodeNotFound, "cart item not found: %d", id)
	}
	item.Quantity = quantity
	item.UpdatedAt = time.Now()
	t.staged.cartItems[id] = item
	return &item, nil
}

func (t *fakeTx) DeleteCartItem(ctx context.Context, id int64) error {
	if _, ok := t.staged.cartItems[id]; !ok {
		return apperr.New(apperr.CodeNotFound, "cart item not found: %d", id)
	}
	delete(t.staged.cartItems, id)
	return nil
}

func (t *fakeTx) DeleteCartItems(ctx context.Context, userID int64) error {
	if err := t.fail("DeleteCartItems"); err != nil {
		return err
	}
	for id, item := range t.staged.cartItems {
		if item.UserID == userID {
			delete(t.staged.cartItems, id)
		}
	}
	return nil
}

func (t *fakeTx) InsertOrder(ctx context.Context, order *models.Order) error {
	if err := t.fail("InsertOrder"); err != nil {
		return err
	}
	order.ID = t.staged.nextOrderID
	t.staged.nextOrderID++
	order.CreatedAt = time.Now()
	t.staged.orders[order.ID] = *order
	return nil
}

func (t *fakeTx) InsertOrderItem(ctx context.Context, item *models.OrderItem) error {
	if err := t.fail("InsertOrderItem"); err != nil {
		return err
	}
	item.ID = t.staged.nextOrderItemID
	t.staged.nextOrderItemID++
	stored := *item
	stored.ProductName = ""
	t.staged.orderItems[item.OrderID] = append(t.staged.orderItems[item.OrderID], stored)
	return nil
}

func (t *fakeTx) DecrementStock(ctx context.Context, productID int64, quantity int) error {
	if err := t.fail("DecrementStock"); err != nil {
		return err
	}
	p, ok := t.staged.products[productID]
	if !ok || p.StockQuantity < quantity {
		return apperr.New(apperr.CodeInsufficientStock, "insufficient stock for product %d", productID)
	}
	p.StockQuantity -= quantity
	t.staged.products[productID] = p
	return nil
}

// fakePublisher records published events.
type fakePublisher struct {
	mu          sync.Mutex
	lowStock    []*models.LowStockEvent
	orderPlaced []*models.OrderPlacedEvent
	reports     []*models.DailySalesReportEvent
	err         error
}

func (p *fakePublisher) PublishLowStock(ctx context.Context, event *models.LowStockEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.lowStock = append(p.lowStock, event)
	return nil
}

func (p *fakePublisher) PublishOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.orderPlaced = append(p.orderPlaced, event)
	return nil
}

func (p *fakePublisher) PublishDailySalesReport(ctx context.Context, event *models.DailySalesReportEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.reports = append(p.reports, event)
	return nil
}

func (p *fakePublisher) lowStockCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.lowStock)
}

// fakeCache is an in-memory Cache.
type fakeCache struct {
	mu    sync.Mutex
	stock map[int64]int
	keys  map[string]bool
	err   error
}

func newFakeCache() *fakeCache {
	return &fakeCache{stock: map[int64]int{}, keys: map[string]bool{}}
}

func (c *fakeCache) GetStock(ctx context.Context, productID int64) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return 0, c.err
	}
	qty, ok := c.stock[productID]
	if !ok {
		return 0, fmt.Errorf("stock not mirrored for product %d", productID)
	}
	return qty, nil
}

func (c *fakeCache) SetStock(ctx context.Context, productID int64, quantity int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.stock[productID] = quantity
	return nil
}

func (c *fakeCache) DecrementStock(ctx context.Context, productID int64, quantity int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	// Matches decrement_stock.lua: an uninitialized key is left missing.
	current, ok := c.stock[productID]
	if !ok {
		return nil
	}
	remaining := current - quantity
	if remaining < 0 {
		remaining = 0
	}
	c.stock[productID] = remaining
	return nil
}

func (c *fakeCache) AcquireIdempotencyKey(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return false, c.err
	}
	if c.keys[key] {
		return false, nil
	}
	c.keys[key] = true
	return true, nil
}

func (c *fakeCache) ReleaseIdempotencyKey(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	delete(c.keys, key)
	return nil
}

func (c *fakeCache) holdsKey(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.keys[key]
}

func money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testProduct(id int64, name, price string, stock int) models.Product {
	return models.Product{
		ID:            id,
		Name:          name,
		Price:         money(price),
		StockQuantity: stock,
		CreatedAt:     time.Now(),
	}
}
