// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/sethvargo/go-retry"

	"github.com/mmeshcher/laundry-system/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrCustomerNotFound возвращается, если клиент не найден.
var (
	ErrCustomerNotFound = errors.New("customer not found")
	// ErrOrderNotFound возвращается, если заказ не найден.
	ErrOrderNotFound = errors.New("order not found")
	// ErrInsufficientBalance возвращается при попытке предоплаты суммы, превышающей баланс.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrInconsistentState возвращается, если многошаговая мутация применилась частично.
	// Требует ручной сверки по записям пополнений.
	ErrInconsistentState = errors.New("inconsistent state: manual reconciliation required")
)

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// withRetry повторяет fn при сериализационных конфликтах и дедлоках.
func (r *PostgresRepository) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(3, retry.NewConstant(1*time.Second))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil {
			return nil
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
				return retry.RetryableError(err)
			}
		}

		return err
	})
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

func fenToYuan(v int64) float64 {
	return float64(v) / 100
}

// CreateCustomer создаёт нового клиента с нулевым балансом.
func (r *PostgresRepository) CreateCustomer(ctx context.Context, name, phone, wechat, note string) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO customers (name, phone, wechat, note) VALUES ($1, $2, $3, $4) RETURNING id`,
		name, phone, wechat, note,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create customer: %w", err)
	}
	return id, nil
}

// UpdateCustomer обновляет данные клиента. Баланс этим методом не меняется.
func (r *PostgresRepository) UpdateCustomer(ctx context.Context, id int64, name, phone, wechat, note string) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE customers SET name = $2, phone = $3, wechat = $4, note = $5 WHERE id = $1`,
		id, name, phone, wechat, note,
	)
	if err != nil {
		return fmt.Errorf("update customer: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrCustomerNotFound
	}
	return nil
}

// GetCustomer возвращает клиента по идентификатору.
func (r *PostgresRepository) GetCustomer(ctx context.Context, id int64) (*model.Customer, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, name, phone, wechat, balance, note, created_at FROM customers WHERE id = $1`,
		id,
	)

	var c model.Customer
	var balanceFen int64
	err := row.Scan(&c.ID, &c.Name, &c.Phone, &c.Wechat, &balanceFen, &c.Note, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCustomerNotFound
		}
		return nil, fmt.Errorf("get customer: %w", err)
	}
	c.Balance = fenToYuan(balanceFen)

	return &c, nil
}

// ListCustomers возвращает всех клиентов, новые первыми.
func (r *PostgresRepository) ListCustomers(ctx context.Context) ([]model.Customer, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, phone, wechat, balance, note, created_at
		 FROM customers
		 ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("select customers: %w", err)
	}
	defer rows.Close()

	var customers []model.Customer
	for rows.Next() {
		var c model.Customer
		var balanceFen int64
		if err := rows.Scan(&c.ID, &c.Name, &c.Phone, &c.Wechat, &balanceFen, &c.Note, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan customer: %w", err)
		}
		c.Balance = fenToYuan(balanceFen)
		customers = append(customers, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return customers, nil
}

// DeleteCustomer удаляет клиента.
func (r *PostgresRepository) DeleteCustomer(ctx context.Context, id int64) error {
	cmdTag, err := r.pool.Exec(ctx, `DELETE FROM customers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete customer: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrCustomerNotFound
	}
	return nil
}

// CreateRecharge атомарно сохраняет запись о пополнении и увеличивает баланс клиента
// на сумму пополнения с бонусом. Строка клиента блокируется для сериализации операций
// с балансом. Возвращает новый баланс в фэнях.
func (r *PostgresRepository) CreateRecharge(ctx context.Context, customerID, amountFen, giftFen int64) (int64, error) {
	var newBalance int64

	err := r.withRetry(ctx, func(ctx context.Context) error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		var dummy int
		err = tx.QueryRow(ctx, `SELECT 1 FROM customers WHERE id = $1 FOR UPDATE`, customerID).Scan(&dummy)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrCustomerNotFound
			}
			return fmt.Errorf("lock customer for update: %w", err)
		}

		// Сначала запись аудита, затем баланс: недостающее обновление баланса
		// восстановимо по записям пополнений, обратное — нет.
		_, err = tx.Exec(ctx,
			`INSERT INTO recharge_records (customer_id, amount, gift) VALUES ($1, $2, $3)`,
			customerID, amountFen, giftFen,
		)
		if err != nil {
			return fmt.Errorf("insert recharge record: %w", err)
		}

		err = tx.QueryRow(ctx,
			`UPDATE customers SET balance = balance + $2 WHERE id = $1 RETURNING balance`,
			customerID, amountFen+giftFen,
		).Scan(&newBalance)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("%w: recharge record written, balance not updated for customer %d", ErrInconsistentState, customerID)
			}
			return fmt.Errorf("update balance: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		return nil
	})

	return newBalance, err
}

// ListRechargesByCustomer возвращает историю пополнений клиента, новые первыми.
func (r *PostgresRepository) ListRechargesByCustomer(ctx context.Context, customerID int64) ([]model.RechargeRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, customer_id, amount, gift, created_at
		 FROM recharge_records
		 WHERE customer_id = $1
		 ORDER BY created_at DESC`,
		customerID,
	)
	if err != nil {
		return nil, fmt.Errorf("select recharges: %w", err)
	}
	defer rows.Close()

	var res []model.RechargeRecord
	for rows.Next() {
		var rec model.RechargeRecord
		var amountFen, giftFen int64
		if err := rows.Scan(&rec.ID, &rec.CustomerID, &amountFen, &giftFen, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan recharge: %w", err)
		}
		rec.RechargeAmount = fenToYuan(amountFen)
		rec.GiftAmount = fenToYuan(giftFen)
		res = append(res, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// NewOrder описывает данные нового заказа для сохранения. Суммы в фэнях.
type NewOrder struct {
	OrderNo    string
	CustomerID int64
	TotalFen   int64
	PayType    model.PayType
	Urgent     bool
	ExpectedAt *time.Time
}

// NewClothes описывает одну вещь нового заказа. Цена в фэнях.
type NewClothes struct {
	Kind         string
	PriceFen     int64
	DamageRemark string
	DamageImage  string
}

// CreateOrder атомарно сохраняет заказ и его вещи. Для предоплатных заказов
// в той же транзакции списывает полную стоимость с баланса клиента.
func (r *PostgresRepository) CreateOrder(ctx context.Context, order NewOrder, items []NewClothes) (int64, error) {
	var orderID int64

	err := r.withRetry(ctx, func(ctx context.Context) error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		var balanceFen int64
		err = tx.QueryRow(ctx, `SELECT balance FROM customers WHERE id = $1 FOR UPDATE`, order.CustomerID).Scan(&balanceFen)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrCustomerNotFound
			}
			return fmt.Errorf("lock customer for update: %w", err)
		}

		prepaidFen := int64(0)
		if order.PayType == model.PayTypePrepaid {
			if order.TotalFen > balanceFen {
				return ErrInsufficientBalance
			}
			prepaidFen = order.TotalFen

			_, err = tx.Exec(ctx,
				`UPDATE customers SET balance = balance - $2 WHERE id = $1`,
				order.CustomerID, prepaidFen,
			)
			if err != nil {
				return fmt.Errorf("debit balance: %w", err)
			}
		}

		err = tx.QueryRow(ctx,
			`INSERT INTO orders (order_no, customer_id, total_price, prepaid, pay_type, urgent, status, expected_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 RETURNING id`,
			order.OrderNo, order.CustomerID, order.TotalFen, prepaidFen,
			string(order.PayType), order.Urgent, string(model.OrderStatusUnwashed), order.ExpectedAt,
		).Scan(&orderID)
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		for _, item := range items {
			_, err = tx.Exec(ctx,
				`INSERT INTO clothes (order_id, kind, price, damage_remark, damage_image, status)
				 VALUES ($1, $2, $3, $4, $5, $6)`,
				orderID, item.Kind, item.PriceFen, item.DamageRemark, item.DamageImage,
				string(model.OrderStatusUnwashed),
			)
			if err != nil {
				return fmt.Errorf("insert clothes: %w", err)
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		return nil
	})

	return orderID, err
}

func scanOrder(row pgx.Row, o *model.Order) error {
	var totalFen, prepaidFen int64
	var payType, status string

	err := row.Scan(&o.ID, &o.OrderNo, &o.CustomerID, &totalFen, &prepaidFen,
		&payType, &o.Urgent, &status, &o.ExpectedAt, &o.CreatedAt)
	if err != nil {
		return err
	}

	o.TotalPrice = fenToYuan(totalFen)
	o.Prepaid = fenToYuan(prepaidFen)
	o.PayType = model.PayType(payType)
	o.Status = model.OrderStatus(status)

	return nil
}

const orderColumns = `id, order_no, customer_id, total_price, prepaid, pay_type, urgent, status, expected_at, created_at`

// GetOrder возвращает заказ по идентификатору.
func (r *PostgresRepository) GetOrder(ctx context.Context, id int64) (*model.Order, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`,
		id,
	)

	var o model.Order
	if err := scanOrder(row, &o); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	return &o, nil
}

// GetOrderClothes возвращает вещи заказа в порядке добавления.
func (r *PostgresRepository) GetOrderClothes(ctx context.Context, orderID int64) ([]model.Clothes, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, order_id, kind, price, damage_remark, damage_image, status, created_at
		 FROM clothes
		 WHERE order_id = $1
		 ORDER BY id`,
		orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("select clothes: %w", err)
	}
	defer rows.Close()

	var res []model.Clothes
	for rows.Next() {
		var c model.Clothes
		var priceFen int64
		var status string
		if err := rows.Scan(&c.ID, &c.OrderID, &c.Kind, &priceFen, &c.DamageRemark, &c.DamageImage, &status, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan clothes: %w", err)
		}
		c.Price = fenToYuan(priceFen)
		c.Status = model.OrderStatus(status)
		res = append(res, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// OrderFilter задаёт необязательные условия выборки заказов.
// Нулевые значения полей означают отсутствие условия.
type OrderFilter struct {
	Status     model.OrderStatus
	PayType    model.PayType
	CustomerID int64
	From       time.Time
	To         time.Time
}

// ListOrders возвращает заказы по фильтру, новые первыми.
func (r *PostgresRepository) ListOrders(ctx context.Context, f OrderFilter) ([]model.Order, error) {
	var conds []string
	var args []any

	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, cond+"$"+strconv.Itoa(len(args)))
	}

	if f.Status != "" {
		add("status = ", string(f.Status))
	}
	if f.PayType != "" {
		add("pay_type = ", string(f.PayType))
	}
	if f.CustomerID != 0 {
		add("customer_id = ", f.CustomerID)
	}
	if !f.From.IsZero() {
		add("created_at >= ", f.From)
	}
	if !f.To.IsZero() {
		add("created_at < ", f.To)
	}

	query := `SELECT ` + orderColumns + ` FROM orders`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		var o model.Order
		if err := scanOrder(rows, &o); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return orders, nil
}

// UpdateOrderStatus устанавливает статус заказа. Переходы между статусами не упорядочены.
func (r *PostgresRepository) UpdateOrderStatus(ctx context.Context, id int64, status model.OrderStatus) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE orders SET status = $2 WHERE id = $1`,
		id, string(status),
	)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// DeleteOrder атомарно удаляет заказ вместе с его вещами. Если заказ предоплачен
// и не завершён, полная стоимость возвращается на баланс клиента в той же транзакции.
// Возвращает сумму возврата в фэнях.
func (r *PostgresRepository) DeleteOrder(ctx context.Context, id int64) (int64, error) {
	var refundFen int64

	err := r.withRetry(ctx, func(ctx context.Context) error {
		refundFen = 0

		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		var customerID, totalFen int64
		var payType, status string
		err = tx.QueryRow(ctx,
			`SELECT customer_id, total_price, pay_type, status FROM orders WHERE id = $1 FOR UPDATE`,
			id,
		).Scan(&customerID, &totalFen, &payType, &status)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrOrderNotFound
			}
			return fmt.Errorf("lock order for update: %w", err)
		}

		if model.PayType(payType) == model.PayTypePrepaid && model.OrderStatus(status) != model.OrderStatusFinished {
			cmdTag, err := tx.Exec(ctx,
				`UPDATE customers SET balance = balance + $2 WHERE id = $1`,
				customerID, totalFen,
			)
			if err != nil {
				return fmt.Errorf("refund balance: %w", err)
			}
			if cmdTag.RowsAffected() == 0 {
				return fmt.Errorf("%w: order %d owner %d missing on refund", ErrInconsistentState, id, customerID)
			}
			refundFen = totalFen
		}

		if _, err := tx.Exec(ctx, `DELETE FROM clothes WHERE order_id = $1`, id); err != nil {
			return fmt.Errorf("delete clothes: %w", err)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM orders WHERE id = $1`, id); err != nil {
			return fmt.Errorf("delete order: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		return nil
	})

	return refundFen, err
}

// SumCashIncome возвращает сумму наличных заказов за период [from, to) в фэнях.
func (r *PostgresRepository) SumCashIncome(ctx context.Context, from, to time.Time) (int64, error) {
	var total int64
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(total_price), 0)
		 FROM orders
		 WHERE pay_type = $1 AND created_at >= $2 AND created_at < $3`,
		string(model.PayTypeCash), from, to,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum cash income: %w", err)
	}
	return total, nil
}

// SumRechargeIncome возвращает сумму пополнений (без бонусов) за период [from, to) в фэнях.
func (r *PostgresRepository) SumRechargeIncome(ctx context.Context, from, to time.Time) (int64, error) {
	var total int64
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0)
		 FROM recharge_records
		 WHERE created_at >= $1 AND created_at < $2`,
		from, to,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum recharge income: %w", err)
	}
	return total, nil
}

// CountPendingOrders возвращает число незавершённых заказов по всей базе,
// без привязки к окну отчёта.
func (r *PostgresRepository) CountPendingOrders(ctx context.Context) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM orders WHERE status <> $1`,
		string(model.OrderStatusFinished),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count pending orders: %w", err)
	}
	return count, nil
}

// PickupOrder описывает завершённый заказ, о котором нужно уведомить клиента.
type PickupOrder struct {
	OrderID      int64
	OrderNo      string
	CustomerName string
	Phone        string
	Wechat       string
}

// GetOrdersForPickupNotify возвращает завершённые заказы без отправленного уведомления.
func (r *PostgresRepository) GetOrdersForPickupNotify(ctx context.Context, limit int) ([]PickupOrder, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT o.id, o.order_no, c.name, c.phone, c.wechat
		 FROM orders o
		 JOIN customers c ON c.id = o.customer_id
		 WHERE o.status = $1 AND o.notified_at IS NULL
		 ORDER BY o.created_at
		 LIMIT $2`,
		string(model.OrderStatusFinished), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select orders for notify: %w", err)
	}
	defer rows.Close()

	var res []PickupOrder
	for rows.Next() {
		var p PickupOrder
		if err := rows.Scan(&p.OrderID, &p.OrderNo, &p.CustomerName, &p.Phone, &p.Wechat); err != nil {
			return nil, fmt.Errorf("scan pickup order: %w", err)
		}
		res = append(res, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// MarkOrderNotified фиксирует отправку уведомления о готовности заказа.
func (r *PostgresRepository) MarkOrderNotified(ctx context.Context, orderID int64) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE orders SET notified_at = now() WHERE id = $1`,
		orderID,
	)
	if err != nil {
		return fmt.Errorf("mark order notified: %w", err)
	}
	return nil
}
