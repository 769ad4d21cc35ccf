package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jcmexdev/ecommerce-checkout/internal/checkout-service/core/domain/entity"
	"github.com/jcmexdev/ecommerce-checkout/internal/checkout-service/core/ports"
)

var _ ports.CartRepository = (*CartRepository)(nil)

type CartRepository struct {
	db      *sql.DB
	nowFunc func() time.Time
}

func NewCartRepository(db *sql.DB) *CartRepository {
	return &CartRepository{db: db, nowFunc: time.Now}
}

func (r *CartRepository) Find(ctx context.Context, userID int64) (*entity.Cart, error) {
	cart, err := r.load(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entity.ErrCartNotFound
	}
	return cart, err
}

func (r *CartRepository) GetOrCreate(ctx context.Context, userID int64) (*entity.Cart, error) {
	if _, err := r.ensure(ctx, r.db, userID); err != nil {
		return nil, err
	}
	return r.load(ctx, userID)
}

func (r *CartRepository) AddItem(ctx context.Context, userID, productID int64, quantity int) (*entity.Cart, error) {
	if quantity < 1 {
		return nil, entity.ErrInvalidQuantity
	}
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		cartID, err := r.ensure(ctx, tx, userID)
		if err != nil {
			return err
		}
		now := formatTime(r.nowFunc())
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO cart_items (cart_id, product_id, quantity, added_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (cart_id, product_id) DO UPDATE SET quantity = quantity + excluded.quantity`,
			cartID, productID, quantity, now,
		); err != nil {
			return fmt.Errorf("sqlite: upsert cart item: %w", err)
		}
		return touch(ctx, tx, cartID, now)
	})
	if err != nil {
		return nil, err
	}
	return r.load(ctx, userID)
}

func (r *CartRepository) SetQuantity(ctx context.Context, userID, productID int64, quantity int) (*entity.Cart, error) {
	if quantity < 1 {
		return nil, entity.ErrInvalidQuantity
	}
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		cartID, err := cartIDOf(ctx, tx, userID)
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `UPDATE cart_items SET quantity = ? WHERE cart_id = ? AND product_id = ?`,
			quantity, cartID, productID)
		if err != nil {
			return fmt.Errorf("sqlite: update cart item: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return entity.ErrCartItemNotFound.Withf("product %d is not in the cart", productID)
		}
		return touch(ctx, tx, cartID, formatTime(r.nowFunc()))
	})
	if err != nil {
		return nil, err
	}
	return r.load(ctx, userID)
}

func (r *CartRepository) RemoveItem(ctx context.Context, userID, productID int64) (*entity.Cart, error) {
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		cartID, err := cartIDOf(ctx, tx, userID)
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id = ? AND product_id = ?`, cartID, productID)
		if err != nil {
			return fmt.Errorf("sqlite: delete cart item: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return entity.ErrCartItemNotFound.Withf("product %d is not in the cart", productID)
		}
		return touch(ctx, tx, cartID, formatTime(r.nowFunc()))
	})
	if err != nil {
		return nil, err
	}
	return r.load(ctx, userID)
}

// Clear empties the user's cart. A user without a cart is not an error.
func (r *CartRepository) Clear(ctx context.Context, userID int64) error {
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM cart_items WHERE cart_id = (SELECT id FROM carts WHERE user_id = ?)`, userID); err != nil {
		return fmt.Errorf("sqlite: clear cart of user %d: %w", userID, err)
	}
	return nil
}

func (r *CartRepository) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin cart tx: %w", err)
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit cart tx: %w", err)
	}
	return nil
}

type execQueryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r *CartRepository) ensure(ctx context.Context, q execQueryer, userID int64) (int64, error) {
	now := formatTime(r.nowFunc())
	if _, err := q.ExecContext(ctx, `
		INSERT INTO carts (user_id, created_at, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (user_id) DO NOTHING`, userID, now, now); err != nil {
		return 0, fmt.Errorf("sqlite: create cart for user %d: %w", userID, err)
	}
	return cartIDOf(ctx, q, userID)
}

func cartIDOf(ctx context.Context, q execQueryer, userID int64) (int64, error) {
	var id int64
	err := q.QueryRowContext(ctx, `SELECT id FROM carts WHERE user_id = ?`, userID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, entity.ErrCartNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("sqlite: cart of user %d: %w", userID, err)
	}
	return id, nil
}

func touch(ctx context.Context, tx *sql.Tx, cartID int64, now string) error {
	if _, err := tx.ExecContext(ctx, `UPDATE carts SET updated_at = ? WHERE id = ?`, now, cartID); err != nil {
		return fmt.Errorf("sqlite: touch cart %d: %w", cartID, err)
	}
	return nil
}

// load returns sql.ErrNoRows when the user has no cart.
func (r *CartRepository) load(ctx context.Context, userID int64) (*entity.Cart, error) {
	var (
		cart                 entity.Cart
		createdAt, updatedAt string
	)
	err := r.db.QueryRowContext(ctx, `SELECT id, user_id, created_at, updated_at FROM carts WHERE user_id = ?`, userID).
		Scan(&cart.ID, &cart.UserID, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("sqlite: load cart of user %d: %w", userID, err)
	}
	if cart.CreatedAt, err = parseRFC3339(createdAt); err != nil {
		return nil, err
	}
	if cart.UpdatedAt, err = parseRFC3339(updatedAt); err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT product_id, quantity FROM cart_items
		WHERE  cart_id = ?
		ORDER  BY added_at, product_id`, cart.ID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: load cart items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var it entity.CartItem
		if err := rows.Scan(&it.ProductID, &it.Quantity); err != nil {
			return nil, fmt.Errorf("sqlite: scan cart item: %w", err)
		}
		cart.Items = append(cart.Items, it)
	}
	return &cart, rows.Err()
}
