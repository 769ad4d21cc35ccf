package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jcmexdev/ecommerce-checkout/internal/checkout-service/core/domain/entity"
	"github.com/jcmexdev/ecommerce-checkout/internal/checkout-service/core/ports"
)

var _ ports.OrderRepository = (*OrderRepository)(nil)

type OrderRepository struct {
	db      *sql.DB
	nowFunc func() time.Time
}

func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db, nowFunc: time.Now}
}

const selectOrder = `
	SELECT o.id, COALESCE(o.user_id, 0), o.status, o.transport_type, o.total,
	       o.shipment_reference, o.stock_reservation_reference,
	       o.confirmed_at, o.created_at, o.updated_at,
	       a.id, a.receiver_name, a.street, a.city, a.region, a.postal_code,
	       a.country, a.phone, a.extra_info
	FROM   orders o
	JOIN   shipping_addresses a ON a.id = o.address_id`

func (r *OrderRepository) Create(ctx context.Context, o *entity.Order) error {
	now := r.nowFunc().UTC()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin create order: %w", err)
	}
	defer tx.Rollback()

	a := o.Address
	res, err := tx.ExecContext(ctx, `
		INSERT INTO shipping_addresses
			(receiver_name, street, city, region, postal_code, country, phone, extra_info, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ReceiverName, a.Street, a.City, a.Region, a.PostalCode, a.Country, a.Phone, a.ExtraInfo, formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("sqlite: insert address: %w", err)
	}
	addressID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: address id: %w", err)
	}

	res, err = tx.ExecContext(ctx, `
		INSERT INTO orders
			(user_id, address_id, status, transport_type, total, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		nullableInt(o.UserID), addressID, string(o.Status), o.TransportType, o.Total.String(),
		formatTime(now), formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("sqlite: insert order: %w", err)
	}
	orderID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: order id: %w", err)
	}

	lines, err := insertLines(ctx, tx, orderID, o.Lines)
	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit create order: %w", err)
	}

	o.ID = orderID
	o.Address.ID = addressID
	o.Lines = lines
	o.CreatedAt = now
	o.UpdatedAt = now
	return nil
}

func insertLines(ctx context.Context, tx *sql.Tx, orderID int64, lines []entity.OrderLine) ([]entity.OrderLine, error) {
	out := make([]entity.OrderLine, len(lines))
	for i, l := range lines {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO order_lines (order_id, product_id, product_name, quantity, unit_price)
			VALUES (?, ?, ?, ?, ?)`,
			orderID, l.ProductID, l.ProductName, l.Quantity, l.UnitPrice.String(),
		)
		if err != nil {
			return nil, fmt.Errorf("sqlite: insert line for product %d: %w", l.ProductID, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("sqlite: line id: %w", err)
		}
		l.ID = id
		out[i] = l
	}
	return out, nil
}

func (r *OrderRepository) Get(ctx context.Context, id int64) (*entity.Order, error) {
	row := r.db.QueryRowContext(ctx, selectOrder+` WHERE o.id = ?`, id)
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entity.ErrOrderNotFound.Withf("order %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get order %d: %w", id, err)
	}
	if o.Lines, err = r.lines(ctx, id); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *OrderRepository) ListByUser(ctx context.Context, userID int64) ([]entity.Order, error) {
	q := selectOrder
	var args []any
	if userID != 0 {
		q += ` WHERE o.user_id = ?`
		args = append(args, userID)
	}
	q += ` ORDER BY o.created_at DESC, o.id DESC`

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list orders: %w", err)
	}
	var orders []entity.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("sqlite: scan order: %w", err)
		}
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("sqlite: list orders: %w", err)
	}
	rows.Close()

	for i := range orders {
		if orders[i].Lines, err = r.lines(ctx, orders[i].ID); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

func (r *OrderRepository) Update(ctx context.Context, o *entity.Order) error {
	now := r.nowFunc().UTC()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin update order: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET    transport_type = ?, total = ?, updated_at = ?
		WHERE  id = ? AND status IN ('DRAFT', 'PENDING')`,
		o.TransportType, o.Total.String(), formatTime(now), o.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: update order %d: %w", o.ID, err)
	}
	if err := r.checkAffected(ctx, tx, res, o.ID); err != nil {
		return err
	}

	a := o.Address
	if _, err := tx.ExecContext(ctx, `
		UPDATE shipping_addresses
		SET    receiver_name = ?, street = ?, city = ?, region = ?, postal_code = ?,
		       country = ?, phone = ?, extra_info = ?
		WHERE  id = (SELECT address_id FROM orders WHERE id = ?)`,
		a.ReceiverName, a.Street, a.City, a.Region, a.PostalCode, a.Country, a.Phone, a.ExtraInfo, o.ID,
	); err != nil {
		return fmt.Errorf("sqlite: update address of order %d: %w", o.ID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM order_lines WHERE order_id = ?`, o.ID); err != nil {
		return fmt.Errorf("sqlite: delete lines of order %d: %w", o.ID, err)
	}
	lines, err := insertLines(ctx, tx, o.ID, o.Lines)
	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit update order %d: %w", o.ID, err)
	}
	o.Lines = lines
	o.UpdatedAt = now
	return nil
}

func (r *OrderRepository) Confirm(ctx context.Context, o *entity.Order) error {
	if o.ConfirmedAt == nil {
		return entity.ErrInvalidData.Withf("order %d has no confirmation time", o.ID)
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET    status = 'CONFIRMED',
		       shipment_reference = ?,
		       stock_reservation_reference = ?,
		       transport_type = ?,
		       confirmed_at = COALESCE(confirmed_at, ?),
		       updated_at = ?
		WHERE  id = ? AND status IN ('DRAFT', 'PENDING')`,
		o.ShipmentReference, o.StockReservationReference, o.TransportType,
		formatTime(*o.ConfirmedAt), formatTime(r.nowFunc()), o.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: confirm order %d: %w", o.ID, err)
	}
	return r.checkAffected(ctx, r.db, res, o.ID)
}

func (r *OrderRepository) Cancel(ctx context.Context, id int64, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET    status = 'CANCELLED', updated_at = ?
		WHERE  id = ? AND status IN ('DRAFT', 'PENDING')`,
		formatTime(at), id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: cancel order %d: %w", id, err)
	}
	return r.checkAffected(ctx, r.db, res, id)
}

func (r *OrderRepository) Delete(ctx context.Context, id int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin delete order: %w", err)
	}
	defer tx.Rollback()

	var addressID int64
	err = tx.QueryRowContext(ctx, `SELECT address_id FROM orders WHERE id = ? AND status IN ('DRAFT', 'PENDING')`, id).Scan(&addressID)
	if errors.Is(err, sql.ErrNoRows) {
		return r.missingOrChanged(ctx, tx, id)
	}
	if err != nil {
		return fmt.Errorf("sqlite: delete order %d: %w", id, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM order_lines WHERE order_id = ?`, id); err != nil {
		return fmt.Errorf("sqlite: delete lines of order %d: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM orders WHERE id = ?`, id); err != nil {
		return fmt.Errorf("sqlite: delete order %d: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM shipping_addresses WHERE id = ?`, addressID); err != nil {
		return fmt.Errorf("sqlite: delete address of order %d: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit delete order %d: %w", id, err)
	}
	return nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// checkAffected turns a conditional update that matched nothing into
// ErrOrderNotFound or ErrConcurrentUpdate.
func (r *OrderRepository) checkAffected(ctx context.Context, q queryer, res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: rows affected for order %d: %w", id, err)
	}
	if n > 0 {
		return nil
	}
	return r.missingOrChanged(ctx, q, id)
}

func (r *OrderRepository) missingOrChanged(ctx context.Context, q queryer, id int64) error {
	var status string
	err := q.QueryRowContext(ctx, `SELECT status FROM orders WHERE id = ?`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.ErrOrderNotFound.Withf("order %d not found", id)
	}
	if err != nil {
		return fmt.Errorf("sqlite: read status of order %d: %w", id, err)
	}
	return entity.ErrConcurrentUpdate.Withf("order %d is %s", id, status)
}

func (r *OrderRepository) lines(ctx context.Context, orderID int64) ([]entity.OrderLine, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, product_id, product_name, quantity, unit_price
		FROM   order_lines
		WHERE  order_id = ?
		ORDER  BY id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: lines of order %d: %w", orderID, err)
	}
	defer rows.Close()

	var lines []entity.OrderLine
	for rows.Next() {
		var l entity.OrderLine
		var price string
		if err := rows.Scan(&l.ID, &l.ProductID, &l.ProductName, &l.Quantity, &price); err != nil {
			return nil, fmt.Errorf("sqlite: scan line: %w", err)
		}
		if l.UnitPrice, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("sqlite: parse unit price %q: %w", price, err)
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOrder(s scanner) (*entity.Order, error) {
	var (
		o                           entity.Order
		status, total               string
		shipmentRef, reservationRef sql.NullString
		confirmedAt                 sql.NullString
		createdAt, updatedAt        string
	)
	err := s.Scan(
		&o.ID, &o.UserID, &status, &o.TransportType, &total,
		&shipmentRef, &reservationRef,
		&confirmedAt, &createdAt, &updatedAt,
		&o.Address.ID, &o.Address.ReceiverName, &o.Address.Street, &o.Address.City, &o.Address.Region,
		&o.Address.PostalCode, &o.Address.Country, &o.Address.Phone, &o.Address.ExtraInfo,
	)
	if err != nil {
		return nil, err
	}

	o.Status = entity.OrderStatus(status)
	o.ShipmentReference = shipmentRef.String
	o.StockReservationReference = reservationRef.String
	if o.Total, err = decimal.NewFromString(total); err != nil {
		return nil, fmt.Errorf("sqlite: parse total %q: %w", total, err)
	}
	if o.ConfirmedAt, err = parseNullTime(confirmedAt); err != nil {
		return nil, err
	}
	if o.CreatedAt, err = parseRFC3339(createdAt); err != nil {
		return nil, err
	}
	if o.UpdatedAt, err = parseRFC3339(updatedAt); err != nil {
		return nil, err
	}
	return &o, nil
}
