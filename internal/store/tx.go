package store

import (
	"context"
	"database/sql"

	"storefront-service/internal/apperr"
	"storefront-service/internal/models"

	"github.com/jmoiron/sqlx"
)

// Tx is a transaction scope. Every method executes against the same
// underlying database transaction; Commit is the single point of
// durability and Rollback releases any row locks taken.
type Tx interface {
	Commit() error
	Rollback() error

	// ProductForUpdate loads a product with its row locked.
	ProductForUpdate(ctx context.Context, id int64) (*models.Product, error)

	// CartLinesForUpdate loads the user's cart joined with products,
	// locking the product rows against concurrent checkouts.
	CartLinesForUpdate(ctx context.Context, userID int64) ([]models.CartLine, error)

	// CartItemForUpdate loads a cart item with its row locked.
	CartItemForUpdate(ctx context.Context, id int64) (*models.CartItem, error)

	// UpsertCartItem finds-or-creates the (user, product) cart row at
	// quantity 0 and increments it by addQty in one statement.
	UpsertCartItem(ctx context.Context, userID, productID int64, addQty int) (*models.CartItem, error)

	// SetCartItemQuantity replaces a cart item's quantity.
	SetCartItemQuantity(ctx context.Context, id int64, quantity int) (*models.CartItem, error)

	DeleteCartItem(ctx context.Context, id int64) error
	DeleteCartItems(ctx context.Context, userID int64) error

	InsertOrder(ctx context.Context, order *models.Order) error
	InsertOrderItem(ctx context.Context, item *models.OrderItem) error

	// DecrementStock conditionally decrements product stock. It fails
	// with an InsufficientStock error when the decrement would drive
	// stock below zero, which must abort the enclosing transaction.
	DecrementStock(ctx context.Context, productID int64, quantity int) error
}

type sqlTx struct {
	tx *sqlx.Tx
}

func (t *sqlTx) Commit() error {
	return t.tx.Commit()
}

func (t *sqlTx) Rollback() error {
	return t.tx.Rollback()
}

func (t *sqlTx) ProductForUpdate(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := t.tx.GetContext(ctx, &product,
		"SELECT * FROM products WHERE id = $1 FOR UPDATE", id)
	if err == sql.ErrNoRows {
		return nil, apperr.New(apperr.CodeNotFound, "product not found: %d", id)
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

func (t *sqlTx) CartLinesForUpdate(ctx context.Context, userID int64) ([]models.CartLine, error) {
	var lines []models.CartLine
	err := t.tx.SelectContext(ctx, &lines, `
		SELECT `+cartLineColumns+`
		FROM cart_items ci
		JOIN products p ON p.id = ci.product_id
		WHERE ci.user_id = $1
		ORDER BY ci.id
		FOR UPDATE OF p`, userID)
	return lines, err
}

func (t *sqlTx) CartItemForUpdate(ctx context.Context, id int64) (*models.CartItem, error) {
	var item models.CartItem
	err := t.tx.GetContext(ctx, &item,
		"SELECT * FROM cart_items WHERE id = $1 FOR UPDATE", id)
	if err == sql.ErrNoRows {
		return nil, apperr.New(apperr.CodeNotFound, "cart item not found: %d", id)
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (t *sqlTx) UpsertCartItem(ctx context.Context, userID, productID int64, addQty int) (*models.CartItem, error) {
	var item models.CartItem
	err := t.tx.GetContext(ctx, &item, `
		INSERT INTO cart_items (user_id, product_id, quantity)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, product_id)
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity, updated_at = NOW()
		RETURNING *`, userID, productID, addQty)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (t *sqlTx) SetCartItemQuantity(ctx context.Context, id int64, quantity int) (*models.CartItem, error) {
	var item models.CartItem
	err := t.tx.GetContext(ctx, &item, `
		UPDATE cart_items SET quantity = $1, updated_at = NOW()
		WHERE id = $2
		RETURNING *`, quantity, id)
	if err == sql.ErrNoRows {
		return nil, apperr.New(apperr.CodeNotFound, "cart item not found: %d", id)
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (t *sqlTx) DeleteCartItem(ctx context.Context, id int64) error {
	res, err := t.tx.ExecContext(ctx, "DELETE FROM cart_items WHERE id = $1", id)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return apperr.New(apperr.CodeNotFound, "cart item not found: %d", id)
	}
	return nil
}

func (t *sqlTx) DeleteCartItems(ctx context.Context, userID int64) error {
	_, err := t.tx.ExecContext(ctx, "DELETE FROM cart_items WHERE user_id = $1", userID)
	return err
}

func (t *sqlTx) InsertOrder(ctx context.Context, order *models.Order) error {
	return t.tx.GetContext(ctx, order, `
		INSERT INTO orders (user_id, total_amount, status, idempotency_key)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`,
		order.UserID, order.TotalAmount, order.Status, order.IdempotencyKey)
}

func (t *sqlTx) InsertOrderItem(ctx context.Context, item *models.OrderItem) error {
	return t.tx.GetContext(ctx, &item.ID, `
		INSERT INTO order_items (order_id, product_id, quantity, price)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		item.OrderID, item.ProductID, item.Quantity, item.Price)
}

func (t *sqlTx) DecrementStock(ctx context.Context, productID int64, quantity int) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE products SET stock_quantity = stock_quantity - $1
		WHERE id = $2 AND stock_quantity >= $1`,
		quantity, productID)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return apperr.New(apperr.CodeInsufficientStock,
			"insufficient stock for product %d", productID)
	}
	return nil
}
