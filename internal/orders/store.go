package orders

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/nvago/printshop/internal/workflow"
	"github.com/nvago/printshop/pkg/models"
)

// Store persists orders, the product catalog and customer conversations in
// Postgres.
type Store struct {
	db     *sql.DB
	logger *logrus.Logger
}

func NewStore(db *sql.DB, logger *logrus.Logger) *Store {
	return &Store{db: db, logger: logger}
}

func (s *Store) CreateTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS products (
			id VARCHAR(36) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			category VARCHAR(100) NOT NULL,
			min_qty_ten BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS variants (
			id VARCHAR(36) PRIMARY KEY,
			product_id VARCHAR(36) NOT NULL REFERENCES products(id),
			name VARCHAR(255) NOT NULL,
			retail_price DECIMAL(10,2) NOT NULL,
			wholesale_price DECIMAL(10,2)
		)`,
		`CREATE TABLE IF NOT EXISTS orders (
			id VARCHAR(36) PRIMARY KEY,
			customer_id VARCHAR(36) NOT NULL,
			customer_name VARCHAR(255) NOT NULL,
			contact VARCHAR(100) NOT NULL,
			address TEXT NOT NULL,
			product_id VARCHAR(36) NOT NULL,
			variant_id VARCHAR(36),
			category VARCHAR(100) NOT NULL,
			quantity INTEGER NOT NULL,
			height DECIMAL(10,2) NOT NULL DEFAULT 0,
			width DECIMAL(10,2) NOT NULL DEFAULT 0,
			has_file BOOLEAN NOT NULL DEFAULT FALSE,
			solvent_tarp BOOLEAN NOT NULL DEFAULT FALSE,
			eyelets INTEGER NOT NULL DEFAULT 0,
			file_url TEXT,
			layout_url TEXT,
			total DECIMAL(10,2) NOT NULL,
			status VARCHAR(50) NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMP NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_customer ON orders(customer_id)`,
		`CREATE TABLE IF NOT EXISTS conversations (
			id VARCHAR(36) PRIMARY KEY,
			order_id VARCHAR(36) NOT NULL REFERENCES orders(id),
			archived BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			closed_at TIMESTAMP
		)`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to create tables: %w", err)
		}
	}
	return nil
}

// SaveOrder inserts the order and opens its customer conversation.
func (s *Store) SaveOrder(order *models.Order) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO orders (id, customer_id, customer_name, contact, address,
			product_id, variant_id, category, quantity, height, width,
			has_file, solvent_tarp, eyelets, file_url, layout_url,
			total, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`,
		order.ID, order.CustomerID, order.CustomerName, order.Contact, order.Address,
		order.ProductID, nullString(order.VariantID), order.Category, order.Quantity,
		order.Height, order.Width, order.HasFile, order.SolventTarp, order.Eyelets,
		nullString(order.FileURL), nullString(order.LayoutURL),
		order.Total, string(order.Status), order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	_, err = tx.Exec(`
		INSERT INTO conversations (id, order_id, created_at)
		VALUES ($1, $2, $3)`,
		uuid.New().String(), order.ID, order.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to open conversation: %w", err)
	}

	return tx.Commit()
}

func (s *Store) GetOrder(id string) (*models.Order, error) {
	row := s.db.QueryRow(`
		SELECT id, customer_id, customer_name, contact, address,
			product_id, COALESCE(variant_id, ''), category, quantity, height, width,
			has_file, solvent_tarp, eyelets, COALESCE(file_url, ''), COALESCE(layout_url, ''),
			total, status, created_at, updated_at
		FROM orders WHERE id = $1`, id)

	return scanOrder(row)
}

func (s *Store) ListOrders(status string) ([]models.Order, error) {
	query := `
		SELECT id, customer_id, customer_name, contact, address,
			product_id, COALESCE(variant_id, ''), category, quantity, height, width,
			has_file, solvent_tarp, eyelets, COALESCE(file_url, ''), COALESCE(layout_url, ''),
			total, status, created_at, updated_at
		FROM orders`
	args := []interface{}{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *order)
	}
	return orders, rows.Err()
}

func (s *Store) GetOrderStatus(id string) (workflow.Status, error) {
	var status string
	err := s.db.QueryRow(`SELECT status FROM orders WHERE id = $1`, id).Scan(&status)
	if err != nil {
		return "", err
	}
	return workflow.Status(status), nil
}

// UpdateStatus writes an accepted transition. layoutURL is only set when the
// approval-send action attaches the layout file reference.
func (s *Store) UpdateStatus(id string, status workflow.Status, layoutURL string) error {
	var result sql.Result
	var err error
	if layoutURL != "" {
		result, err = s.db.Exec(`
			UPDATE orders SET status = $1, layout_url = $2, updated_at = $3 WHERE id = $4`,
			string(status), layoutURL, time.Now(), id)
	} else {
		result, err = s.db.Exec(`
			UPDATE orders SET status = $1, updated_at = $2 WHERE id = $3`,
			string(status), time.Now(), id)
	}
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *Store) ArchiveConversation(orderID string) error {
	_, err := s.db.Exec(`
		UPDATE conversations SET archived = TRUE, closed_at = $1
		WHERE order_id = $2 AND archived = FALSE`,
		time.Now(), orderID)
	if err != nil {
		return fmt.Errorf("failed to archive conversation: %w", err)
	}
	return nil
}

// CreateProduct inserts a product and its variants in one transaction.
func (s *Store) CreateProduct(product *models.Product) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO products (id, name, category, min_qty_ten, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		product.ID, product.Name, product.Category, product.MinQtyTen, product.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert product: %w", err)
	}

	for i := range product.Variants {
		v := &product.Variants[i]
		var wholesale sql.NullFloat64
		if v.WholesalePrice != nil {
			wholesale = sql.NullFloat64{Float64: *v.WholesalePrice, Valid: true}
		}
		_, err = tx.Exec(`
			INSERT INTO variants (id, product_id, name, retail_price, wholesale_price)
			VALUES ($1, $2, $3, $4, $5)`,
			v.ID, product.ID, v.Name, v.RetailPrice, wholesale)
		if err != nil {
			return fmt.Errorf("failed to insert variant: %w", err)
		}
	}

	return tx.Commit()
}

func (s *Store) GetProduct(id string) (*models.Product, error) {
	var p models.Product
	err := s.db.QueryRow(`
		SELECT id, name, category, min_qty_ten, created_at
		FROM products WHERE id = $1`, id).
		Scan(&p.ID, &p.Name, &p.Category, &p.MinQtyTen, &p.CreatedAt)
	if err != nil {
		return nil, err
	}

	variants, err := s.listVariants(id)
	if err != nil {
		return nil, err
	}
	p.Variants = variants
	return &p, nil
}

func (s *Store) GetVariant(id string) (*models.Variant, error) {
	var v models.Variant
	var wholesale sql.NullFloat64
	err := s.db.QueryRow(`
		SELECT id, product_id, name, retail_price, wholesale_price
		FROM variants WHERE id = $1`, id).
		Scan(&v.ID, &v.ProductID, &v.Name, &v.RetailPrice, &wholesale)
	if err != nil {
		return nil, err
	}
	if wholesale.Valid {
		v.WholesalePrice = &wholesale.Float64
	}
	return &v, nil
}

func (s *Store) ListProducts() ([]models.Product, error) {
	rows, err := s.db.Query(`
		SELECT id, name, category, min_qty_ten, created_at
		FROM products ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	var products []models.Product
	for rows.Next() {
		var p models.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Category, &p.MinQtyTen, &p.CreatedAt); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range products {
		variants, err := s.listVariants(products[i].ID)
		if err != nil {
			return nil, err
		}
		products[i].Variants = variants
	}
	return products, nil
}

func (s *Store) listVariants(productID string) ([]models.Variant, error) {
	rows, err := s.db.Query(`
		SELECT id, product_id, name, retail_price, wholesale_price
		FROM variants WHERE product_id = $1 ORDER BY name`, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to list variants: %w", err)
	}
	defer rows.Close()

	var variants []models.Variant
	for rows.Next() {
		var v models.Variant
		var wholesale sql.NullFloat64
		if err := rows.Scan(&v.ID, &v.ProductID, &v.Name, &v.RetailPrice, &wholesale); err != nil {
			return nil, err
		}
		if wholesale.Valid {
			v.WholesalePrice = &wholesale.Float64
		}
		variants = append(variants, v)
	}
	return variants, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(row rowScanner) (*models.Order, error) {
	var o models.Order
	var status string
	err := row.Scan(
		&o.ID, &o.CustomerID, &o.CustomerName, &o.Contact, &o.Address,
		&o.ProductID, &o.VariantID, &o.Category, &o.Quantity, &o.Height, &o.Width,
		&o.HasFile, &o.SolventTarp, &o.Eyelets, &o.FileURL, &o.LayoutURL,
		&o.Total, &status, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	o.Status = workflow.Status(status)
	return &o, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
