package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/purrpawboutique/purr-paw-boutique/domain"
)

// dialect captures the few places where postgres and sqlite differ.
type dialect struct {
	name        string
	placeholder func(n int) string
	timeArg     func(t time.Time) any
}

var postgresDialect = dialect{
	name:        "postgres",
	placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
	timeArg:     func(t time.Time) any { return t.UTC() },
}

var sqliteDialect = dialect{
	name:        "sqlite",
	placeholder: func(int) string { return "?" },
	timeArg:     func(t time.Time) any { return t.UTC().Format(sqliteTimeLayout) },
}

// Fixed width so text ordering matches time ordering.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// rebind rewrites ? placeholders for the dialect.
func (d dialect) rebind(query string) string {
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString(d.placeholder(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// sqlRepository implements OrderRepository over database/sql.
type sqlRepository struct {
	db      *sql.DB
	dialect dialect
}

const orderColumns = `id, order_number, payment_reference, payment_kind, status, customer,
	shipping_address, billing_address, items, subtotal, shipping, tax, total, currency,
	created_at, updated_at, estimated_delivery`

func (r *sqlRepository) UpsertByPaymentReference(ctx context.Context, order *domain.Order) (*domain.Order, bool, error) {
	customerJSON, err := json.Marshal(order.Customer)
	if err != nil {
		return nil, false, fmt.Errorf("marshal customer: %w", err)
	}
	itemsJSON, err := json.Marshal(order.Items)
	if err != nil {
		return nil, false, fmt.Errorf("marshal order items: %w", err)
	}
	shipping, err := addressArg(order.ShippingAddress)
	if err != nil {
		return nil, false, err
	}
	billing, err := addressArg(order.BillingAddress)
	if err != nil {
		return nil, false, err
	}

	query := r.dialect.rebind(`INSERT INTO orders (` + orderColumns + `)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	          ON CONFLICT (payment_reference) DO NOTHING`)

	res, err := r.db.ExecContext(ctx, query,
		order.ID,
		order.OrderNumber,
		order.PaymentReference,
		string(order.PaymentKind),
		string(order.Status),
		string(customerJSON),
		shipping,
		billing,
		string(itemsJSON),
		order.Totals.Subtotal,
		order.Totals.Shipping,
		order.Totals.Tax,
		order.Totals.Total,
		order.Currency,
		r.dialect.timeArg(order.CreatedAt),
		r.dialect.timeArg(order.UpdatedAt),
		r.dialect.timeArg(order.EstimatedDelivery))
	if err != nil {
		return nil, false, fmt.Errorf("insert order: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("insert order rows affected: %w", err)
	}

	stored, err := r.GetByPaymentReference(ctx, order.PaymentReference)
	if err != nil {
		return nil, false, err
	}
	return stored, affected == 1, nil
}

func (r *sqlRepository) GetByOrderID(ctx context.Context, id string) (*domain.Order, error) {
	query := r.dialect.rebind(`SELECT ` + orderColumns + ` FROM orders WHERE id = ?`)
	o, err := scanOrder(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query order by id: %w", err)
	}
	return o, nil
}

func (r *sqlRepository) GetByPaymentReference(ctx context.Context, ref string) (*domain.Order, error) {
	query := r.dialect.rebind(`SELECT ` + orderColumns + ` FROM orders WHERE payment_reference = ?`)
	o, err := scanOrder(r.db.QueryRowContext(ctx, query, ref))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query order by payment reference: %w", err)
	}
	return o, nil
}

// UpdateStatus is a single conditional UPDATE: the row only changes when its
// current status is one next may be reached from.
func (r *sqlRepository) UpdateStatus(ctx context.Context, ref string, next domain.OrderStatus) (*domain.Order, error) {
	from := domain.AllowedFrom(next)
	if len(from) > 0 {
		marks := strings.TrimSuffix(strings.Repeat("?, ", len(from)), ", ")
		query := r.dialect.rebind(`UPDATE orders SET status = ?, updated_at = ?
		          WHERE payment_reference = ? AND status IN (` + marks + `)`)

		args := []any{string(next), r.dialect.timeArg(time.Now()), ref}
		for _, s := range from {
			args = append(args, string(s))
		}
		if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
			return nil, fmt.Errorf("update order status: %w", err)
		}
	}

	o, err := r.GetByPaymentReference(ctx, ref)
	if err != nil {
		return nil, err
	}
	if o.Status != next {
		return o, ErrIllegalTransition
	}
	return o, nil
}

func (r *sqlRepository) ListRecent(ctx context.Context, limit int) ([]*domain.Order, error) {
	if limit <= 0 {
		limit = 50
	}
	query := r.dialect.rebind(`SELECT ` + orderColumns + ` FROM orders ORDER BY created_at DESC LIMIT ?`)

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent orders: %w", err)
	}
	defer rows.Close()

	var orders []*domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return orders, nil
}

func (r *sqlRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *sqlRepository) Close() error {
	return r.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var (
		o                           domain.Order
		kind, status                string
		customerJSON, itemsJSON     []byte
		shippingJSON, billingJSON   []byte
		created, updated, estimated time.Time
	)
	err := row.Scan(
		&o.ID,
		&o.OrderNumber,
		&o.PaymentReference,
		&kind,
		&status,
		&customerJSON,
		&shippingJSON,
		&billingJSON,
		&itemsJSON,
		&o.Totals.Subtotal,
		&o.Totals.Shipping,
		&o.Totals.Tax,
		&o.Totals.Total,
		&o.Currency,
		dbTime{&created},
		dbTime{&updated},
		dbTime{&estimated},
	)
	if err != nil {
		return nil, err
	}
	o.PaymentKind = domain.PaymentKind(kind)
	o.Status = domain.OrderStatus(status)
	o.CreatedAt, o.UpdatedAt, o.EstimatedDelivery = created, updated, estimated

	if err := json.Unmarshal(customerJSON, &o.Customer); err != nil {
		return nil, fmt.Errorf("unmarshal customer: %w", err)
	}
	if err := json.Unmarshal(itemsJSON, &o.Items); err != nil {
		return nil, fmt.Errorf("unmarshal order items: %w", err)
	}
	if o.ShippingAddress, err = scanAddress(shippingJSON); err != nil {
		return nil, err
	}
	if o.BillingAddress, err = scanAddress(billingJSON); err != nil {
		return nil, err
	}
	return &o, nil
}

func addressArg(a *domain.Address) (any, error) {
	if a == nil {
		return nil, nil
	}
	raw, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal address: %w", err)
	}
	return string(raw), nil
}

func scanAddress(raw []byte) (*domain.Address, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var a domain.Address
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, fmt.Errorf("unmarshal address: %w", err)
	}
	return &a, nil
}

// dbTime scans timestamps stored natively (postgres) or as RFC 3339 text (sqlite).
type dbTime struct {
	t *time.Time
}

func (d dbTime) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*d.t = time.Time{}
	case time.Time:
		*d.t = v.UTC()
	case string:
		return d.parse(v)
	case []byte:
		return d.parse(string(v))
	default:
		return fmt.Errorf("unsupported time value %T", src)
	}
	return nil
}

func (d dbTime) parse(s string) error {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			*d.t = t.UTC()
			return nil
		}
	}
	return fmt.Errorf("unparseable time %q", s)
}
