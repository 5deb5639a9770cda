package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteRepository stores cart rows and the product catalog in an embedded
// sqlite database.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) RunMigrations(migrationsPath string) error {
	driver, err := sqlite.WithInstance(r.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", migrationsPath),
		"sqlite",
		driver,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}

	return nil
}

func (r *SQLiteRepository) GetCart(ctx context.Context, userID string) ([]Item, error) {
	query := `
		SELECT ci.id, ci.user_id, ci.product_id, ci.quantity, ci.added_at,
		       p.id, p.title, p.price, p.seller_id, p.seller_name, p.seller_business, p.seller_verified
		FROM cart_items ci
		JOIN products p ON p.id = ci.product_id
		WHERE ci.user_id = $1
		ORDER BY ci.added_at, ci.id
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query cart: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var item Item
		err := rows.Scan(
			&item.ID,
			&item.UserID,
			&item.ProductID,
			&item.Quantity,
			&item.AddedAt,
			&item.Product.ID,
			&item.Product.Title,
			&item.Product.Price,
			&item.Product.SellerID,
			&item.Product.SellerName,
			&item.Product.SellerBusiness,
			&item.Product.SellerVerified,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cart item: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return items, nil
}

func (r *SQLiteRepository) AddItem(ctx context.Context, userID, productID string, quantity int) (Item, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return Item{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var product Product
	err = tx.QueryRowContext(ctx, `
		SELECT id, title, price, seller_id, seller_name, seller_business, seller_verified
		FROM products WHERE id = $1
	`, productID).Scan(
		&product.ID,
		&product.Title,
		&product.Price,
		&product.SellerID,
		&product.SellerName,
		&product.SellerBusiness,
		&product.SellerVerified,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Item{}, ErrProductNotFound
	}
	if err != nil {
		return Item{}, fmt.Errorf("failed to look up product: %w", err)
	}

	item := Item{
		UserID:    userID,
		ProductID: productID,
		Product:   product,
	}

	// Upsert on (user, product): a repeated add sums quantities instead of
	// creating a duplicate row.
	err = tx.QueryRowContext(ctx, `
		SELECT id, quantity, added_at FROM cart_items
		WHERE user_id = $1 AND product_id = $2
	`, userID, productID).Scan(&item.ID, &item.Quantity, &item.AddedAt)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		item.ID = uuid.NewString()
		item.Quantity = quantity
		item.AddedAt = time.Now()
		_, err = tx.ExecContext(ctx, `
			INSERT INTO cart_items (id, user_id, product_id, quantity, added_at)
			VALUES ($1, $2, $3, $4, $5)
		`, item.ID, userID, productID, item.Quantity, item.AddedAt)
		if err != nil {
			return Item{}, fmt.Errorf("failed to insert cart item: %w", err)
		}
	case err != nil:
		return Item{}, fmt.Errorf("failed to look up cart item: %w", err)
	default:
		item.Quantity += quantity
		_, err = tx.ExecContext(ctx, `
			UPDATE cart_items SET quantity = $1 WHERE id = $2
		`, item.Quantity, item.ID)
		if err != nil {
			return Item{}, fmt.Errorf("failed to update cart item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return Item{}, fmt.Errorf("failed to commit: %w", err)
	}

	return item, nil
}

func (r *SQLiteRepository) UpdateQuantity(ctx context.Context, userID, itemID string, quantity int) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE cart_items SET quantity = $1 WHERE id = $2 AND user_id = $3
	`, quantity, itemID, userID)
	if err != nil {
		return fmt.Errorf("failed to update quantity: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return ErrItemNotFound
	}

	return nil
}

func (r *SQLiteRepository) RemoveItem(ctx context.Context, userID, itemID string) error {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM cart_items WHERE id = $1 AND user_id = $2
	`, itemID, userID)
	if err != nil {
		return fmt.Errorf("failed to remove cart item: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return ErrItemNotFound
	}

	return nil
}

func (r *SQLiteRepository) ClearCart(ctx context.Context, userID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to clear cart: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) UpsertProduct(ctx context.Context, p Product) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO products (id, title, price, seller_id, seller_name, seller_business, seller_verified)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			price = excluded.price,
			seller_id = excluded.seller_id,
			seller_name = excluded.seller_name,
			seller_business = excluded.seller_business,
			seller_verified = excluded.seller_verified
	`, p.ID, p.Title, p.Price, p.SellerID, p.SellerName, p.SellerBusiness, p.SellerVerified)
	if err != nil {
		return fmt.Errorf("failed to upsert product: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Close(context.Context) error {
	return r.db.Close()
}
