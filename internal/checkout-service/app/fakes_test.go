package app

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jcmexdev/ecommerce-checkout/internal/checkout-service/core/domain/entity"
	"github.com/jcmexdev/ecommerce-checkout/internal/coordinator/sagalog"
	"github.com/jcmexdev/ecommerce-checkout/internal/pkg/events"
	"github.com/jcmexdev/ecommerce-checkout/internal/pkg/reqctx"
)

func userCtx(userID int64) context.Context {
	return reqctx.WithIdentity(context.Background(), reqctx.Identity{UserID: userID, Token: "user-token"})
}

func staffCtx() context.Context {
	return reqctx.WithIdentity(context.Background(), reqctx.Identity{UserID: 99, Staff: true})
}

func cloneOrder(o *entity.Order) *entity.Order {
	cp := *o
	cp.Lines = append([]entity.OrderLine(nil), o.Lines...)
	if o.ConfirmedAt != nil {
		at := *o.ConfirmedAt
		cp.ConfirmedAt = &at
	}
	return &cp
}

type fakeOrders struct {
	mu          sync.Mutex
	seq         int64
	rows        map[int64]*entity.Order
	createCalls int
	confirmErr  error
}

func newFakeOrders() *fakeOrders {
	return &fakeOrders{rows: map[int64]*entity.Order{}}
}

func (f *fakeOrders) Create(_ context.Context, o *entity.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	f.seq++
	o.ID = f.seq
	o.CreatedAt = time.Now().UTC()
	o.UpdatedAt = o.CreatedAt
	f.rows[o.ID] = cloneOrder(o)
	return nil
}

// put stores o as is, for tests that need a specific starting state.
func (f *fakeOrders) put(o *entity.Order) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if o.ID == 0 {
		f.seq++
		o.ID = f.seq
	}
	f.rows[o.ID] = cloneOrder(o)
}

func (f *fakeOrders) Get(_ context.Context, id int64) (*entity.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.rows[id]
	if !ok {
		return nil, entity.ErrOrderNotFound
	}
	return cloneOrder(o), nil
}

func (f *fakeOrders) ListByUser(_ context.Context, userID int64) ([]entity.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []entity.Order
	for _, o := range f.rows {
		if userID == 0 || o.UserID == userID {
			out = append(out, *cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (f *fakeOrders) mutable(id int64) (*entity.Order, error) {
	o, ok := f.rows[id]
	if !ok {
		return nil, entity.ErrOrderNotFound
	}
	if !o.Mutable() {
		return nil, entity.ErrConcurrentUpdate
	}
	return o, nil
}

func (f *fakeOrders) Update(_ context.Context, o *entity.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.mutable(o.ID); err != nil {
		return err
	}
	f.rows[o.ID] = cloneOrder(o)
	return nil
}

func (f *fakeOrders) Confirm(_ context.Context, o *entity.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.confirmErr != nil {
		return f.confirmErr
	}
	if _, err := f.mutable(o.ID); err != nil {
		return err
	}
	f.rows[o.ID] = cloneOrder(o)
	return nil
}

func (f *fakeOrders) Cancel(_ context.Context, id int64, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, err := f.mutable(id)
	if err != nil {
		return err
	}
	o.Status = entity.StatusCancelled
	o.UpdatedAt = at
	return nil
}

func (f *fakeOrders) Delete(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.mutable(id); err != nil {
		return err
	}
	delete(f.rows, id)
	return nil
}

func (f *fakeOrders) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

type fakeCarts struct {
	mu         sync.Mutex
	carts      map[int64]*entity.Cart
	clearCalls int
}

func newFakeCarts() *fakeCarts {
	return &fakeCarts{carts: map[int64]*entity.Cart{}}
}

func (f *fakeCarts) with(userID int64, items ...entity.CartItem) *fakeCarts {
	f.carts[userID] = &entity.Cart{ID: userID, UserID: userID, Items: items}
	return f
}

func (f *fakeCarts) copyOf(c *entity.Cart) *entity.Cart {
	cp := *c
	cp.Items = append([]entity.CartItem(nil), c.Items...)
	return &cp
}

func (f *fakeCarts) Find(_ context.Context, userID int64) (*entity.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.carts[userID]
	if !ok {
		return nil, entity.ErrCartNotFound
	}
	return f.copyOf(c), nil
}

func (f *fakeCarts) GetOrCreate(_ context.Context, userID int64) (*entity.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.carts[userID]
	if !ok {
		c = &entity.Cart{ID: userID, UserID: userID}
		f.carts[userID] = c
	}
	return f.copyOf(c), nil
}

func (f *fakeCarts) AddItem(ctx context.Context, userID, productID int64, quantity int) (*entity.Cart, error) {
	if _, err := f.GetOrCreate(ctx, userID); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.carts[userID]
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			c.Items[i].Quantity += quantity
			return f.copyOf(c), nil
		}
	}
	c.Items = append(c.Items, entity.CartItem{ProductID: productID, Quantity: quantity})
	return f.copyOf(c), nil
}

func (f *fakeCarts) SetQuantity(_ context.Context, userID, productID int64, quantity int) (*entity.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.carts[userID]
	if !ok {
		return nil, entity.ErrCartNotFound
	}
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			c.Items[i].Quantity = quantity
			return f.copyOf(c), nil
		}
	}
	return nil, entity.ErrCartItemNotFound
}

func (f *fakeCarts) RemoveItem(_ context.Context, userID, productID int64) (*entity.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.carts[userID]
	if !ok {
		return nil, entity.ErrCartNotFound
	}
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			return f.copyOf(c), nil
		}
	}
	return nil, entity.ErrCartItemNotFound
}

func (f *fakeCarts) Clear(_ context.Context, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clearCalls++
	if c, ok := f.carts[userID]; ok {
		c.Items = nil
	}
	return nil
}

// fakeStock counts every call so tests can assert that none was made.
type fakeStock struct {
	mu           sync.Mutex
	products     map[int64]entity.Product
	reserveErr   error
	releaseErr   error
	getCalls     int
	reserveCalls int
	releaseCalls int
	released     []string
}

func newFakeStock() *fakeStock {
	return &fakeStock{products: map[int64]entity.Product{
		1: {ID: 1, Name: "Yerba", Price: decimal.RequireFromString("10.00"), Stock: 10},
		2: {ID: 2, Name: "Mate", Price: decimal.RequireFromString("25.00"), Stock: 10},
	}}
}

func (f *fakeStock) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.getCalls + f.reserveCalls + f.releaseCalls
}

func (f *fakeStock) ListProducts(context.Context, entity.ProductQuery) (*entity.ProductPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	page := &entity.ProductPage{Page: 1, Limit: len(f.products), Total: len(f.products)}
	for _, p := range f.products {
		page.Items = append(page.Items, p)
	}
	return page, nil
}

func (f *fakeStock) GetProduct(_ context.Context, id int64) (*entity.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	p, ok := f.products[id]
	if !ok {
		return nil, entity.ErrProductNotFound
	}
	return &p, nil
}

func (f *fakeStock) ReserveStock(_ context.Context, purchaseID string, _ int64, _ []entity.StockItem) (*entity.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reserveCalls++
	if f.reserveErr != nil {
		return nil, f.reserveErr
	}
	return &entity.Reservation{ID: "RES-" + purchaseID, Status: "reserved"}, nil
}

func (f *fakeStock) ReleaseStock(_ context.Context, reservationID string, _ int64, _ string) (*entity.ReleaseResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.releaseCalls++
	f.released = append(f.released, reservationID)
	if f.releaseErr != nil {
		return nil, f.releaseErr
	}
	return &entity.ReleaseResult{ReservationID: reservationID, Status: "released"}, nil
}

func (f *fakeStock) ListCategories(context.Context) ([]entity.Category, error) {
	return []entity.Category{{ID: 1, Name: "Infusiones"}}, nil
}

type fakeLogistics struct {
	mu          sync.Mutex
	shipmentID  string
	createErr   error
	cancelErr   error
	createCalls int
	cancelled   []string
	lastRequest entity.ShipmentRequest
}

func newFakeLogistics() *fakeLogistics {
	return &fakeLogistics{shipmentID: "777"}
}

func (f *fakeLogistics) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.createCalls + len(f.cancelled)
}

func (f *fakeLogistics) CreateShipment(_ context.Context, req entity.ShipmentRequest) (*entity.Shipment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	f.lastRequest = req
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &entity.Shipment{ID: f.shipmentID, TrackingNumber: "TRK-1", Status: "created", TransportType: req.TransportType}, nil
}

func (f *fakeLogistics) CancelShipment(_ context.Context, id string) (*entity.CancelResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, id)
	if f.cancelErr != nil {
		return nil, f.cancelErr
	}
	return &entity.CancelResult{ShipmentID: id, Status: "cancelled"}, nil
}

func (f *fakeLogistics) GetShipment(_ context.Context, id string) (*entity.Shipment, error) {
	if id != f.shipmentID {
		return nil, entity.ErrShipmentNotFound
	}
	return &entity.Shipment{ID: id, Status: "in_transit"}, nil
}

func (f *fakeLogistics) ListShipments(context.Context, entity.ShipmentFilter) ([]entity.Shipment, error) {
	return nil, nil
}

func (f *fakeLogistics) GetTransportMethods(context.Context) ([]entity.TransportMethod, error) {
	return []entity.TransportMethod{{Type: "road", Name: "Terrestre", EstimatedDays: 5}}, nil
}

func (f *fakeLogistics) CalculateShippingCost(_ context.Context, req entity.QuoteRequest) (*entity.Quote, error) {
	if req.TransportType == "teleport" {
		return nil, errors.New("unsupported transport")
	}
	return &entity.Quote{TransportType: req.TransportType, Cost: decimal.NewFromInt(100)}, nil
}

type memorySagaLog struct {
	mu      sync.Mutex
	entries []sagalog.SagaLog
}

func (m *memorySagaLog) Save(_ context.Context, e *sagalog.SagaLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, *e)
	return nil
}

func (m *memorySagaLog) List(_ context.Context, sagaID string) ([]sagalog.SagaLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []sagalog.SagaLog
	for _, e := range m.entries {
		if e.SagaID == sagaID {
			out = append(out, e)
		}
	}
	return out, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
}

func (p *recordingPublisher) PublishEvent(_ context.Context, topic, _ string, _ events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

type harness struct {
	orders    *fakeOrders
	carts     *fakeCarts
	stock     *fakeStock
	logistics *fakeLogistics
	sagaLog   *memorySagaLog
	publisher *recordingPublisher
	svc       *OrderService
}

func newHarness() *harness {
	h := &harness{
		orders:    newFakeOrders(),
		carts:     newFakeCarts(),
		stock:     newFakeStock(),
		logistics: newFakeLogistics(),
		sagaLog:   &memorySagaLog{},
		publisher: &recordingPublisher{},
	}
	h.svc = NewOrderService(Deps{
		Orders:    h.orders,
		Carts:     h.carts,
		Stock:     h.stock,
		Logistics: h.logistics,
		SagaLog:   h.sagaLog,
		Publisher: h.publisher,
	}, Settings{DefaultTransportType: "road", CompensationTimeout: time.Second})
	return h
}

func validAddress() *entity.ShippingAddress {
	return &entity.ShippingAddress{ReceiverName: "Ana", Street: "San Martin 100", City: "Rosario", Region: "Santa Fe", PostalCode: "2000"}
}

// pendingOrder stores a PENDING order for user 3 with one line per price.
func (h *harness) pendingOrder(prices ...string) *entity.Order {
	var lines []entity.OrderLine
	for i, p := range prices {
		l, err := entity.NewOrderLine(int64(i+1), "item", 1, decimal.RequireFromString(p))
		if err != nil {
			panic(err)
		}
		lines = append(lines, l)
	}
	o, err := entity.NewOrder(3, *validAddress(), lines, "road", entity.StatusPending)
	if err != nil {
		panic(err)
	}
	h.orders.put(o)
	return o
}
