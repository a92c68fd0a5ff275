// Package sqlite persists orders to SQLite. It backs the coordinator's
// OrderRepository port for single-node deployments and audit.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"trading-core/internal/domain"
)

// OrderRepo is a SQLite-backed order repository.
type OrderRepo struct {
	mu sync.Mutex
	db *sql.DB
}

// NewOrderRepo opens (or creates) the order database at dbPath.
func NewOrderRepo(dbPath string) (*OrderRepo, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_sync=NORMAL")
	if err != nil {
		return nil, domain.Errf(domain.KindPersistenceFailure, "open order db: %v", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS orders (
		id               TEXT PRIMARY KEY,
		client_order_id  TEXT,
		symbol           TEXT NOT NULL,
		side             TEXT NOT NULL,
		type             TEXT NOT NULL,
		qty              REAL NOT NULL,
		limit_price      REAL,
		stop_price       REAL,
		visible_qty      REAL,
		tif              TEXT NOT NULL,
		status           TEXT NOT NULL,
		filled_qty       REAL NOT NULL,
		remaining_qty    REAL NOT NULL,
		avg_fill_price   REAL NOT NULL,
		reject_reason    TEXT,
		created_at       TEXT NOT NULL,
		updated_at       TEXT NOT NULL,
		expires_at       TEXT
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_orders_client_id ON orders(client_order_id) WHERE client_order_id != '';
	CREATE INDEX IF NOT EXISTS idx_orders_symbol ON orders(symbol);
	CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, domain.Errf(domain.KindPersistenceFailure, "create order schema: %v", err)
	}

	slog.Info("opened order store", "path", dbPath)
	return &OrderRepo{db: db}, nil
}

// DB exposes the underlying handle for health checks.
func (r *OrderRepo) DB() *sql.DB { return r.db }

// Save inserts a new order.
func (r *OrderRepo) Save(ctx context.Context, o *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO orders (id, client_order_id, symbol, side, type, qty, limit_price, stop_price,
			visible_qty, tif, status, filled_qty, remaining_qty, avg_fill_price, reject_reason,
			created_at, updated_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.ClientOrderID, o.Symbol, string(o.Side), string(o.Type),
		float64(o.Qty), float64(o.LimitPrice), float64(o.StopPrice), float64(o.VisibleQty),
		string(o.TIF), string(o.Status), float64(o.FilledQty), float64(o.RemainingQty),
		o.AvgFillPrice, o.RejectReason,
		o.CreatedAt.Format(time.RFC3339Nano), o.UpdatedAt.Format(time.RFC3339Nano),
		formatExpiry(o.ExpiresAt))
	if err != nil {
		return domain.Errf(domain.KindPersistenceFailure, "save order %s: %v", o.ID, err)
	}
	return nil
}

// Update rewrites the mutable fields of an existing order.
func (r *OrderRepo) Update(ctx context.Context, o *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, err := r.db.ExecContext(ctx,
		`UPDATE orders SET qty = ?, limit_price = ?, stop_price = ?, status = ?, filled_qty = ?,
			remaining_qty = ?, avg_fill_price = ?, reject_reason = ?, updated_at = ?
		 WHERE id = ?`,
		float64(o.Qty), float64(o.LimitPrice), float64(o.StopPrice), string(o.Status),
		float64(o.FilledQty), float64(o.RemainingQty), o.AvgFillPrice, o.RejectReason,
		o.UpdatedAt.Format(time.RFC3339Nano), o.ID)
	if err != nil {
		return domain.Errf(domain.KindPersistenceFailure, "update order %s: %v", o.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.Errf(domain.KindNotFound, "order %s not found", o.ID)
	}
	return nil
}

// Delete removes an order by id.
func (r *OrderRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, err := r.db.ExecContext(ctx, `DELETE FROM orders WHERE id = ?`, id)
	if err != nil {
		return domain.Errf(domain.KindPersistenceFailure, "delete order %s: %v", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.Errf(domain.KindNotFound, "order %s not found", id)
	}
	return nil
}

const selectCols = `id, client_order_id, symbol, side, type, qty, limit_price, stop_price,
	visible_qty, tif, status, filled_qty, remaining_qty, avg_fill_price, reject_reason,
	created_at, updated_at, expires_at`

// FindByID loads one order.
func (r *OrderRepo) FindByID(ctx context.Context, id string) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row := r.db.QueryRowContext(ctx, `SELECT `+selectCols+` FROM orders WHERE id = ?`, id)
	return scanOrder(row, id)
}

// FindByClientOrderID loads the order created under the given idempotency
// token.
func (r *OrderRepo) FindByClientOrderID(ctx context.Context, clientOrderID string) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row := r.db.QueryRowContext(ctx,
		`SELECT `+selectCols+` FROM orders WHERE client_order_id = ?`, clientOrderID)
	return scanOrder(row, clientOrderID)
}

// FindActiveOrders returns orders still eligible for fills, oldest first.
func (r *OrderRepo) FindActiveOrders(ctx context.Context) ([]*domain.Order, error) {
	return r.query(ctx,
		`SELECT `+selectCols+` FROM orders WHERE status IN (?, ?) ORDER BY created_at`,
		string(domain.StatusNew), string(domain.StatusPartiallyFilled))
}

// FindBySymbol returns every order on a symbol, oldest first.
func (r *OrderRepo) FindBySymbol(ctx context.Context, symbol string) ([]*domain.Order, error) {
	return r.query(ctx,
		`SELECT `+selectCols+` FROM orders WHERE symbol = ? ORDER BY created_at`, symbol)
}

func (r *OrderRepo) query(ctx context.Context, q string, args ...any) ([]*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, domain.Errf(domain.KindPersistenceFailure, "query orders: %v", err)
	}
	defer rows.Close()

	var orders []*domain.Order
	for rows.Next() {
		o, err := scanOrder(rows, "")
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Errf(domain.KindPersistenceFailure, "scan orders: %v", err)
	}
	return orders, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner, key string) (*domain.Order, error) {
	var (
		o                    domain.Order
		side, typ, tif, st   string
		qty, lp, sp, vq      float64
		fq, rq               float64
		created, updated     string
		expires              sql.NullString
	)
	err := row.Scan(&o.ID, &o.ClientOrderID, &o.Symbol, &side, &typ, &qty, &lp, &sp, &vq,
		&tif, &st, &fq, &rq, &o.AvgFillPrice, &o.RejectReason, &created, &updated, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.Errf(domain.KindNotFound, "order %s not found", key)
	}
	if err != nil {
		return nil, domain.Errf(domain.KindPersistenceFailure, "scan order: %v", err)
	}

	o.Side = domain.Side(side)
	o.Type = domain.OrderType(typ)
	o.TIF = domain.TimeInForce(tif)
	o.Status = domain.Status(st)
	o.Qty = domain.Quantity(qty)
	o.LimitPrice = domain.Price(lp)
	o.StopPrice = domain.Price(sp)
	o.VisibleQty = domain.Quantity(vq)
	o.FilledQty = domain.Quantity(fq)
	o.RemainingQty = domain.Quantity(rq)
	o.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	o.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
	if expires.Valid && expires.String != "" {
		if t, perr := time.Parse(time.RFC3339Nano, expires.String); perr == nil {
			o.ExpiresAt = &t
		}
	}
	return &o, nil
}

func formatExpiry(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339Nano)
}

// Close closes the order database.
func (r *OrderRepo) Close() error {
	return r.db.Close()
}
