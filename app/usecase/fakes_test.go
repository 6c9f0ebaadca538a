package usecase

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"maps"
	"slices"
	"sync"
	"testing"
	"time"

	"storefront-service/app/domain"
	"storefront-service/config"
	"storefront-service/pkg/clock"
	"storefront-service/pkg/ctxutil"

	"github.com/gofrs/uuid/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory stand-in for Postgres. Transactions are serialised
// and rolled back by restoring a snapshot, which is enough to observe
// all-or-nothing behaviour and lost-update races in the usecases.
type memStore struct {
	txMu sync.Mutex

	mu           sync.Mutex
	products     map[uuid.UUID]domain.Product
	reservations map[uuid.UUID]domain.StockReservation
	carts        map[uuid.UUID]domain.Cart
	items        map[uuid.UUID]domain.CartItem
	itemSeq      map[uuid.UUID]int
	orders       map[uuid.UUID]domain.Order
	seq          int
	failures     map[string]error
}

type memSnapshot struct {
	products     map[uuid.UUID]domain.Product
	reservations map[uuid.UUID]domain.StockReservation
	carts        map[uuid.UUID]domain.Cart
	items        map[uuid.UUID]domain.CartItem
	itemSeq      map[uuid.UUID]int
	orders       map[uuid.UUID]domain.Order
}

func newMemStore() *memStore {
	return &memStore{
		products:     map[uuid.UUID]domain.Product{},
		reservations: map[uuid.UUID]domain.StockReservation{},
		carts:        map[uuid.UUID]domain.Cart{},
		items:        map[uuid.UUID]domain.CartItem{},
		itemSeq:      map[uuid.UUID]int{},
		orders:       map[uuid.UUID]domain.Order{},
		failures:     map[string]error{},
	}
}

func (s *memStore) snapshot() memSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return memSnapshot{
		products:     maps.Clone(s.products),
		reservations: maps.Clone(s.reservations),
		carts:        maps.Clone(s.carts),
		items:        maps.Clone(s.items),
		itemSeq:      maps.Clone(s.itemSeq),
		orders:       maps.Clone(s.orders),
	}
}

func (s *memStore) restore(snap memSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products = snap.products
	s.reservations = snap.reservations
	s.carts = snap.carts
	s.items = snap.items
	s.itemSeq = snap.itemSeq
	s.orders = snap.orders
}

func (s *memStore) failOn(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[method] = err
}

// fail must be called with mu held.
func (s *memStore) fail(method string) error {
	return s.failures[method]
}

func (s *memStore) withTx(ctx context.Context, fn func(context.Context, *sql.Tx) error) error {
	if _, ok := ctxutil.TxFromContext(ctx); ok {
		return fn(ctx, nil)
	}

	s.txMu.Lock()
	snap := s.snapshot()
	txCtx, state := ctxutil.WithTx(ctx, nil)
	if err := fn(txCtx, nil); err != nil {
		s.restore(snap)
		s.txMu.Unlock()
		return err
	}
	s.txMu.Unlock()

	state.Committed()
	return nil
}

func newID() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

type fakeProductRepo struct{ s *memStore }

func (r fakeProductRepo) GetByID(_ context.Context, id uuid.UUID, _ *sql.Tx) (domain.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("GetProduct"); err != nil {
		return domain.Product{}, err
	}
	p, ok := r.s.products[id]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return p, nil
}

func (r fakeProductRepo) LockForUpdate(ctx context.Context, id uuid.UUID, tx *sql.Tx) (domain.Product, error) {
	return r.GetByID(ctx, id, tx)
}

func (r fakeProductRepo) DecrementStock(_ context.Context, id uuid.UUID, quantity int64, _ *sql.Tx) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.products[id]
	if !ok || p.StockQuantity < quantity {
		return 0, domain.ErrInsufficientStock
	}
	p.StockQuantity -= quantity
	r.s.products[id] = p
	return p.StockQuantity, nil
}

func (r fakeProductRepo) IncrementStock(_ context.Context, id uuid.UUID, quantity int64, _ *sql.Tx) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.products[id]
	if !ok {
		return 0, domain.ErrProductNotFound
	}
	p.StockQuantity += quantity
	r.s.products[id] = p
	return p.StockQuantity, nil
}

func (r fakeProductRepo) UpdateQuantity(_ context.Context, id uuid.UUID, quantity int64, _ *sql.Tx) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.products[id]
	if !ok {
		return domain.ErrProductNotFound
	}
	p.StockQuantity = quantity
	r.s.products[id] = p
	return nil
}

func (r fakeProductRepo) WithTransaction(ctx context.Context, fn func(context.Context, *sql.Tx) error) error {
	return r.s.withTx(ctx, fn)
}

type fakeReservationRepo struct{ s *memStore }

func (r fakeReservationRepo) Create(_ context.Context, res *domain.StockReservation, _ *sql.Tx) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("CreateReservation"); err != nil {
		return err
	}
	if res.ID == uuid.Nil {
		res.ID = newID()
	}
	r.s.reservations[res.ID] = *res
	return nil
}

func (r fakeReservationRepo) GetByID(_ context.Context, id uuid.UUID, _ *sql.Tx) (domain.StockReservation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	res, ok := r.s.reservations[id]
	if !ok {
		return domain.StockReservation{}, domain.ErrReservationNotFound
	}
	return res, nil
}

func (r fakeReservationRepo) GetByOrderIDAndStatus(_ context.Context, orderID uuid.UUID, status domain.ReservationStatus, _ *sql.Tx) ([]domain.StockReservation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.StockReservation
	for _, res := range r.s.reservations {
		if res.OrderID == nil || *res.OrderID != orderID {
			continue
		}
		if status != "" && res.Status != status {
			continue
		}
		out = append(out, res)
	}
	slices.SortFunc(out, func(a, b domain.StockReservation) int {
		return bytes.Compare(a.ProductID.Bytes(), b.ProductID.Bytes())
	})
	return out, nil
}

func (r fakeReservationRepo) SumActiveByProductID(_ context.Context, productID uuid.UUID, now time.Time, _ *sql.Tx) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var total int64
	for _, res := range r.s.reservations {
		if res.ProductID == productID && res.IsActive(now) {
			total += res.Quantity
		}
	}
	return total, nil
}

func (r fakeReservationRepo) UpdateStatus(_ context.Context, id uuid.UUID, from, to domain.ReservationStatus, now time.Time, _ *sql.Tx) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	res, ok := r.s.reservations[id]
	if !ok || res.Status != from {
		return false, nil
	}
	res.Status = to
	res.UpdatedAt = now
	r.s.reservations[id] = res
	return true, nil
}

func (r fakeReservationRepo) CancelPendingByOrderID(_ context.Context, orderID uuid.UUID, now time.Time, _ *sql.Tx) ([]uuid.UUID, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var ids []uuid.UUID
	for id, res := range r.s.reservations {
		if res.OrderID != nil && *res.OrderID == orderID && res.Status == domain.ReservationStatusPending {
			res.Status = domain.ReservationStatusCancelled
			res.UpdatedAt = now
			r.s.reservations[id] = res
			ids = append(ids, res.ProductID)
		}
	}
	return ids, nil
}

func (r fakeReservationRepo) ExpirePending(_ context.Context, now time.Time, _ *sql.Tx) ([]uuid.UUID, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var ids []uuid.UUID
	for id, res := range r.s.reservations {
		if res.Status == domain.ReservationStatusPending && !res.ExpiresAt.After(now) {
			res.Status = domain.ReservationStatusExpired
			res.UpdatedAt = now
			r.s.reservations[id] = res
			ids = append(ids, res.ProductID)
		}
	}
	return ids, nil
}

func (r fakeReservationRepo) DeleteInactiveBySessionIDs(_ context.Context, sessionIDs []string, now time.Time, _ *sql.Tx) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for id, res := range r.s.reservations {
		if res.SessionID == nil || !slices.Contains(sessionIDs, *res.SessionID) || res.IsActive(now) {
			continue
		}
		delete(r.s.reservations, id)
		n++
	}
	return n, nil
}

type fakeCartRepo struct{ s *memStore }

func (r fakeCartRepo) GetByUserID(_ context.Context, userID int64, _ *sql.Tx) (domain.Cart, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, c := range r.s.carts {
		if c.UserID != nil && *c.UserID == userID {
			return c, nil
		}
	}
	return domain.Cart{}, domain.ErrCartNotFound
}

func (r fakeCartRepo) GetAnonymousBySessionID(_ context.Context, sessionID string, _ *sql.Tx) (domain.Cart, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, c := range r.s.carts {
		if c.UserID == nil && c.SessionID != nil && *c.SessionID == sessionID {
			return c, nil
		}
	}
	return domain.Cart{}, domain.ErrCartNotFound
}

func (r fakeCartRepo) Create(_ context.Context, cart *domain.Cart, _ *sql.Tx) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, c := range r.s.carts {
		if cart.UserID != nil && c.UserID != nil && *c.UserID == *cart.UserID {
			return errors.New("duplicate key value violates unique constraint \"uq_carts_user_id\"")
		}
	}
	if cart.ID == uuid.Nil {
		cart.ID = newID()
	}
	stored := *cart
	stored.Items = nil
	r.s.carts[cart.ID] = stored
	return nil
}

func (r fakeCartRepo) Touch(_ context.Context, cartID uuid.UUID, expiresAt, now time.Time, _ *sql.Tx) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.carts[cartID]
	if !ok {
		return nil
	}
	c.ExpiresAt = &expiresAt
	c.UpdatedAt = now
	r.s.carts[cartID] = c
	return nil
}

func (r fakeCartRepo) Delete(_ context.Context, cartID uuid.UUID, _ *sql.Tx) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("DeleteCart"); err != nil {
		return err
	}
	delete(r.s.carts, cartID)
	for id, item := range r.s.items {
		if item.CartID == cartID {
			delete(r.s.items, id)
		}
	}
	return nil
}

func (r fakeCartRepo) DeleteExpiredAnonymous(_ context.Context, now time.Time, _ *sql.Tx) ([]string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var sessions []string
	for id, c := range r.s.carts {
		if c.UserID != nil || c.ExpiresAt == nil || c.ExpiresAt.After(now) {
			continue
		}
		delete(r.s.carts, id)
		for itemID, item := range r.s.items {
			if item.CartID == id {
				delete(r.s.items, itemID)
			}
		}
		if c.SessionID != nil {
			sessions = append(sessions, *c.SessionID)
		}
	}
	return sessions, nil
}

func (r fakeCartRepo) GetItems(_ context.Context, cartID uuid.UUID, _ *sql.Tx) ([]domain.CartItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	items := []domain.CartItem{}
	for _, item := range r.s.items {
		if item.CartID == cartID {
			items = append(items, item)
		}
	}
	slices.SortFunc(items, func(a, b domain.CartItem) int {
		return r.s.itemSeq[a.ID] - r.s.itemSeq[b.ID]
	})
	return items, nil
}

func (r fakeCartRepo) GetItem(_ context.Context, cartID, productID uuid.UUID, _ *sql.Tx) (domain.CartItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, item := range r.s.items {
		if item.CartID == cartID && item.ProductID == productID {
			return item, nil
		}
	}
	return domain.CartItem{}, domain.ErrCartItemNotFound
}

func (r fakeCartRepo) CreateItem(_ context.Context, item *domain.CartItem, _ *sql.Tx) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("CreateItem"); err != nil {
		return err
	}
	if item.ID == uuid.Nil {
		item.ID = newID()
	}
	r.s.seq++
	r.s.itemSeq[item.ID] = r.s.seq
	r.s.items[item.ID] = *item
	return nil
}

func (r fakeCartRepo) UpdateItem(_ context.Context, item domain.CartItem, _ *sql.Tx) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.items[item.ID]; !ok {
		return domain.ErrCartItemNotFound
	}
	r.s.items[item.ID] = item
	return nil
}

func (r fakeCartRepo) DeleteItem(_ context.Context, itemID uuid.UUID, _ *sql.Tx) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.items, itemID)
	return nil
}

func (r fakeCartRepo) DeleteItems(_ context.Context, cartID uuid.UUID, _ *sql.Tx) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, item := range r.s.items {
		if item.CartID == cartID {
			delete(r.s.items, id)
		}
	}
	return nil
}

func (r fakeCartRepo) WithTransaction(ctx context.Context, fn func(context.Context, *sql.Tx) error) error {
	return r.s.withTx(ctx, fn)
}

type fakeOrderRepo struct{ s *memStore }

func (r fakeOrderRepo) Create(_ context.Context, order *domain.Order, _ *sql.Tx) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if order.ID == uuid.Nil {
		order.ID = newID()
	}
	stored := *order
	stored.Items = slices.Clone(order.Items)
	r.s.orders[order.ID] = stored
	return nil
}

func (r fakeOrderRepo) GetByID(_ context.Context, id uuid.UUID, _ *sql.Tx) (domain.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	order, ok := r.s.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return order, nil
}

func (r fakeOrderRepo) LockForUpdate(ctx context.Context, id uuid.UUID, tx *sql.Tx) (domain.Order, error) {
	return r.GetByID(ctx, id, tx)
}

func (r fakeOrderRepo) UpdateStatus(_ context.Context, id uuid.UUID, status domain.OrderStatus, now time.Time, _ *sql.Tx) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	order, ok := r.s.orders[id]
	if !ok {
		return domain.ErrOrderNotFound
	}
	order.Status = status
	order.UpdatedAt = now
	r.s.orders[id] = order
	return nil
}

func (r fakeOrderRepo) WithTransaction(ctx context.Context, fn func(context.Context, *sql.Tx) error) error {
	return r.s.withTx(ctx, fn)
}

type fakeBroker struct {
	mu       sync.Mutex
	messages []domain.StockMessage
	err      error
}

func (b *fakeBroker) PublishStockAvailable(_ context.Context, data domain.StockMessage) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.messages = append(b.messages, data)
	return nil
}

func (b *fakeBroker) published() []domain.StockMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.messages)
}

type testEnv struct {
	store        *memStore
	clock        *clock.Manual
	cfg          *config.Config
	broker       *fakeBroker
	products     fakeProductRepo
	reservations fakeReservationRepo
	carts        fakeCartRepo
	orders       fakeOrderRepo

	stock       domain.StockUsecase
	reservation domain.ReservationUsecase
	cart        domain.CartUsecase
	merge       domain.CartMergeUsecase
	order       domain.OrderUsecase
}

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := newMemStore()
	env := &testEnv{
		store:  store,
		clock:  clock.NewManual(testNow),
		broker: &fakeBroker{},
		cfg: &config.Config{
			Reservation: config.ReservationConfig{ExpirationMinutes: 30},
			Cart:        config.CartConfig{UserTTLHours: 168, AnonymousTTLHours: 168},
		},
		products:     fakeProductRepo{store},
		reservations: fakeReservationRepo{store},
		carts:        fakeCartRepo{store},
		orders:       fakeOrderRepo{store},
	}

	env.stock = NewStockUsecase(env.products, env.reservations, env.broker, env.clock)
	env.reservation = NewReservationUsecase(env.products, env.reservations, env.broker, env.clock, env.cfg)
	env.cart = NewCartUsecase(env.carts, env.products, env.reservations, env.clock, env.cfg)
	env.merge = NewCartMergeUsecase(env.carts, env.products, env.clock, env.cfg)
	env.order = NewOrderUsecase(env.orders, env.carts, env.reservation, env.clock, env.cfg)
	return env
}

func (e *testEnv) addProduct(t *testing.T, name string, stock int64, price string) domain.Product {
	t.Helper()
	p := domain.Product{
		ID:            newID(),
		Name:          name,
		SKU:           name + "-SKU",
		Price:         decimal.RequireFromString(price),
		StockQuantity: stock,
		CreatedAt:     testNow,
		UpdatedAt:     testNow,
	}
	e.store.mu.Lock()
	e.store.products[p.ID] = p
	e.store.mu.Unlock()
	return p
}

func (e *testEnv) setSalePrice(t *testing.T, id uuid.UUID, sale string) {
	t.Helper()
	e.store.mu.Lock()
	defer e.store.mu.Unlock()
	p, ok := e.store.products[id]
	require.True(t, ok)
	p.SalePrice = decimal.NewNullDecimal(decimal.RequireFromString(sale))
	e.store.products[id] = p
}

func (e *testEnv) setStock(id uuid.UUID, stock int64) {
	e.store.mu.Lock()
	defer e.store.mu.Unlock()
	p := e.store.products[id]
	p.StockQuantity = stock
	e.store.products[id] = p
}

func (e *testEnv) product(id uuid.UUID) domain.Product {
	e.store.mu.Lock()
	defer e.store.mu.Unlock()
	return e.store.products[id]
}

func (e *testEnv) reservationByID(id uuid.UUID) domain.StockReservation {
	e.store.mu.Lock()
	defer e.store.mu.Unlock()
	return e.store.reservations[id]
}

func (e *testEnv) reservationCount() int {
	e.store.mu.Lock()
	defer e.store.mu.Unlock()
	return len(e.store.reservations)
}

func (e *testEnv) available(t *testing.T, id uuid.UUID) int64 {
	t.Helper()
	n, err := e.reservation.GetAvailableStock(context.Background(), id)
	require.NoError(t, err)
	return n
}

// putCart stores a cart with the given lines directly, bypassing the usecase.
func (e *testEnv) putCart(t *testing.T, cart domain.Cart, items ...domain.CartItem) domain.Cart {
	t.Helper()
	ctx := context.Background()
	if cart.CreatedAt.IsZero() {
		cart.CreatedAt = testNow
		cart.UpdatedAt = testNow
	}
	if cart.ExpiresAt == nil {
		expires := testNow.Add(7 * 24 * time.Hour)
		cart.ExpiresAt = &expires
	}
	require.NoError(t, e.carts.Create(ctx, &cart, nil))
	for _, item := range items {
		item.CartID = cart.ID
		require.NoError(t, e.carts.CreateItem(ctx, &item, nil))
	}
	return cart
}

func (e *testEnv) cartItems(t *testing.T, cartID uuid.UUID) []domain.CartItem {
	t.Helper()
	items, err := e.carts.GetItems(context.Background(), cartID, nil)
	require.NoError(t, err)
	return items
}

func (e *testEnv) cartExists(cartID uuid.UUID) bool {
	e.store.mu.Lock()
	defer e.store.mu.Unlock()
	_, ok := e.store.carts[cartID]
	return ok
}

func ptr[T any](v T) *T {
	return &v
}
