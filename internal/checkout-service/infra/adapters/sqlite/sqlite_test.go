package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jcmexdev/ecommerce-checkout/internal/checkout-service/core/domain/entity"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "checkout.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newPendingOrder(t *testing.T, userID int64) *entity.Order {
	t.Helper()
	l1, _ := entity.NewOrderLine(1, "Mate", 2, decimal.RequireFromString("10.00"))
	l2, _ := entity.NewOrderLine(2, "Bombilla", 1, decimal.RequireFromString("25.00"))
	o, err := entity.NewOrder(userID, entity.ShippingAddress{
		ReceiverName: "Ana", Street: "San Martin 100", City: "Rosario", PostalCode: "2000",
	}, []entity.OrderLine{l1, l2}, "road", entity.StatusPending)
	if err != nil {
		t.Fatalf("NewOrder: %v", err)
	}
	return o
}

func TestOrderCreateAndGet(t *testing.T) {
	repo := NewOrderRepository(openTestDB(t))
	ctx := context.Background()

	o := newPendingOrder(t, 3)
	if err := repo.Create(ctx, o); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if o.ID == 0 || o.Address.ID == 0 || o.Lines[0].ID == 0 {
		t.Fatalf("ids not assigned: %+v", o)
	}

	got, err := repo.Get(ctx, o.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != entity.StatusPending || got.UserID != 3 || len(got.Lines) != 2 {
		t.Fatalf("unexpected order: %+v", got)
	}
	if !got.Total.Equal(decimal.RequireFromString("45")) {
		t.Fatalf("total = %s", got.Total)
	}
	if got.Address.Country != entity.DefaultCountry || got.Address.City != "Rosario" {
		t.Fatalf("unexpected address: %+v", got.Address)
	}
	if got.ShipmentReference != "" || got.ConfirmedAt != nil {
		t.Fatalf("fresh order must carry no references")
	}
}

func TestOrderGetNotFound(t *testing.T) {
	repo := NewOrderRepository(openTestDB(t))
	if _, err := repo.Get(context.Background(), 99); !errors.Is(err, entity.ErrOrderNotFound) {
		t.Fatalf("want ErrOrderNotFound, got %v", err)
	}
}

func TestOrderConfirmIsConditional(t *testing.T) {
	repo := NewOrderRepository(openTestDB(t))
	ctx := context.Background()
	o := newPendingOrder(t, 3)
	if err := repo.Create(ctx, o); err != nil {
		t.Fatalf("Create: %v", err)
	}

	at := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	if err := o.MarkConfirmed("777", "R1", "road", at); err != nil {
		t.Fatalf("MarkConfirmed: %v", err)
	}
	if err := repo.Confirm(ctx, o); err != nil {
		t.Fatalf("Confirm: %v", err)
	}

	got, _ := repo.Get(ctx, o.ID)
	if got.Status != entity.StatusConfirmed || got.ShipmentReference != "777" || got.StockReservationReference != "R1" {
		t.Fatalf("unexpected order: %+v", got)
	}
	if got.ConfirmedAt == nil || !got.ConfirmedAt.Equal(at) {
		t.Fatalf("confirmed_at = %v", got.ConfirmedAt)
	}

	if err := repo.Confirm(ctx, o); !errors.Is(err, entity.ErrConcurrentUpdate) {
		t.Fatalf("second confirm: want ErrConcurrentUpdate, got %v", err)
	}
	if err := repo.Cancel(ctx, o.ID, at); !errors.Is(err, entity.ErrConcurrentUpdate) {
		t.Fatalf("cancel confirmed: want ErrConcurrentUpdate, got %v", err)
	}
	if err := repo.Delete(ctx, o.ID); !errors.Is(err, entity.ErrConcurrentUpdate) {
		t.Fatalf("delete confirmed: want ErrConcurrentUpdate, got %v", err)
	}
}

func TestOrderSchemaRejectsHalfReferences(t *testing.T) {
	db := openTestDB(t)
	repo := NewOrderRepository(db)
	ctx := context.Background()
	o := newPendingOrder(t, 3)
	_ = repo.Create(ctx, o)

	_, err := db.ExecContext(ctx, `UPDATE orders SET shipment_reference = 'S1' WHERE id = ?`, o.ID)
	if err == nil {
		t.Fatalf("schema must reject a shipment reference without a stock reservation reference")
	}
}

func TestOrderUpdateReplacesLines(t *testing.T) {
	repo := NewOrderRepository(openTestDB(t))
	ctx := context.Background()
	o := newPendingOrder(t, 3)
	_ = repo.Create(ctx, o)

	l, _ := entity.NewOrderLine(9, "Yerba", 4, decimal.RequireFromString("3.25"))
	if err := o.ReplaceLines([]entity.OrderLine{l}); err != nil {
		t.Fatal(err)
	}
	addr := o.Address
	addr.City = "Mendoza"
	if err := o.ChangeAddress(addr); err != nil {
		t.Fatal(err)
	}
	if err := repo.Update(ctx, o); err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, _ := repo.Get(ctx, o.ID)
	if len(got.Lines) != 1 || got.Lines[0].ProductID != 9 {
		t.Fatalf("lines not replaced: %+v", got.Lines)
	}
	if !got.Total.Equal(decimal.RequireFromString("13")) || got.Address.City != "Mendoza" {
		t.Fatalf("unexpected order: total=%s city=%s", got.Total, got.Address.City)
	}
}

func TestOrderCancelAndDelete(t *testing.T) {
	repo := NewOrderRepository(openTestDB(t))
	ctx := context.Background()

	a := newPendingOrder(t, 3)
	b := newPendingOrder(t, 3)
	_ = repo.Create(ctx, a)
	_ = repo.Create(ctx, b)

	if err := repo.Cancel(ctx, a.ID, time.Now()); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	got, _ := repo.Get(ctx, a.ID)
	if got.Status != entity.StatusCancelled {
		t.Fatalf("status = %s", got.Status)
	}

	if err := repo.Delete(ctx, b.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := repo.Get(ctx, b.ID); !errors.Is(err, entity.ErrOrderNotFound) {
		t.Fatalf("deleted order still readable: %v", err)
	}
	if err := repo.Delete(ctx, b.ID); !errors.Is(err, entity.ErrOrderNotFound) {
		t.Fatalf("delete missing: %v", err)
	}
}

func TestListByUser(t *testing.T) {
	repo := NewOrderRepository(openTestDB(t))
	ctx := context.Background()
	for _, uid := range []int64{1, 2, 1} {
		if err := repo.Create(ctx, newPendingOrder(t, uid)); err != nil {
			t.Fatal(err)
		}
	}

	mine, err := repo.ListByUser(ctx, 1)
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(mine) != 2 || len(mine[0].Lines) != 2 {
		t.Fatalf("unexpected orders: %+v", mine)
	}
	if mine[0].ID < mine[1].ID {
		t.Fatalf("orders must be newest first")
	}

	all, _ := repo.ListByUser(ctx, 0)
	if len(all) != 3 {
		t.Fatalf("all = %d", len(all))
	}
}

func TestCartUpsertAndClear(t *testing.T) {
	repo := NewCartRepository(openTestDB(t))
	ctx := context.Background()

	if _, err := repo.Find(ctx, 5); !errors.Is(err, entity.ErrCartNotFound) {
		t.Fatalf("want ErrCartNotFound, got %v", err)
	}

	cart, err := repo.GetOrCreate(ctx, 5)
	if err != nil || !cart.IsEmpty() {
		t.Fatalf("GetOrCreate: %+v, %v", cart, err)
	}

	_, _ = repo.AddItem(ctx, 5, 1, 2)
	cart, err = repo.AddItem(ctx, 5, 1, 3)
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	if len(cart.Items) != 1 || cart.Quantity(1) != 5 {
		t.Fatalf("adding an existing product must increment: %+v", cart.Items)
	}

	cart, _ = repo.AddItem(ctx, 5, 2, 1)
	if len(cart.Items) != 2 {
		t.Fatalf("items = %+v", cart.Items)
	}

	cart, err = repo.SetQuantity(ctx, 5, 2, 7)
	if err != nil || cart.Quantity(2) != 7 {
		t.Fatalf("SetQuantity: %+v, %v", cart, err)
	}
	if _, err := repo.SetQuantity(ctx, 5, 42, 1); !errors.Is(err, entity.ErrCartItemNotFound) {
		t.Fatalf("want ErrCartItemNotFound, got %v", err)
	}
	if _, err := repo.SetQuantity(ctx, 5, 2, 0); !errors.Is(err, entity.ErrInvalidQuantity) {
		t.Fatalf("want ErrInvalidQuantity, got %v", err)
	}

	cart, err = repo.RemoveItem(ctx, 5, 1)
	if err != nil || len(cart.Items) != 1 {
		t.Fatalf("RemoveItem: %+v, %v", cart, err)
	}

	if err := repo.Clear(ctx, 5); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	cart, _ = repo.Find(ctx, 5)
	if !cart.IsEmpty() {
		t.Fatalf("cart not cleared: %+v", cart.Items)
	}
}

func TestCartsAreIsolatedPerUser(t *testing.T) {
	repo := NewCartRepository(openTestDB(t))
	ctx := context.Background()
	_, _ = repo.AddItem(ctx, 1, 10, 1)
	_, _ = repo.AddItem(ctx, 2, 20, 1)

	c1, _ := repo.Find(ctx, 1)
	if len(c1.Items) != 1 || c1.Items[0].ProductID != 10 {
		t.Fatalf("cart of user 1 leaked items: %+v", c1.Items)
	}
}
