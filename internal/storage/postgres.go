package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tidemetrics/adrecon/internal/models"
)

// PostgresSpendStore implements SpendStore using PostgreSQL.
type PostgresSpendStore struct {
	pool *pgxpool.Pool
}

func NewPostgresSpendStore(pool *pgxpool.Pool) *PostgresSpendStore {
	return &PostgresSpendStore{pool: pool}
}

func (s *PostgresSpendStore) SaveBatch(ctx context.Context, records []models.SpendRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, r := range records {
		_, err = tx.Exec(ctx, `
			INSERT INTO spend_records (
				id, user_scope, date, campaign_label, account_label,
				amount_native, leads, impressions, clicks, import_batch_id, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (id) DO NOTHING
		`, r.ID, r.UserScope, r.Date, r.CampaignLabel, nullString(r.AccountLabel),
			r.AmountNative, r.Leads, r.Impressions, r.Clicks, nullString(r.ImportBatchID), r.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert spend record: %w", err)
		}
	}

	return tx.Commit(ctx)
}

func (s *PostgresSpendStore) ListByRange(ctx context.Context, userScope string, from, to time.Time) ([]models.SpendRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_scope, date, campaign_label, account_label,
			   amount_native, leads, impressions, clicks, import_batch_id, created_at
		FROM spend_records
		WHERE ($1 = '' OR user_scope = $1)
		  AND ($2::timestamptz IS NULL OR date >= $2)
		  AND ($3::timestamptz IS NULL OR date <= $3)
		ORDER BY date, id
	`, userScope, nullTime(from), nullTime(to))
	if err != nil {
		return nil, fmt.Errorf("failed to list spend records: %w", err)
	}
	defer rows.Close()

	var records []models.SpendRecord
	for rows.Next() {
		var r models.SpendRecord
		var accountLabel, batchID *string

		if err := rows.Scan(&r.ID, &r.UserScope, &r.Date, &r.CampaignLabel, &accountLabel,
			&r.AmountNative, &r.Leads, &r.Impressions, &r.Clicks, &batchID, &r.CreatedAt); err != nil {
			return nil, err
		}

		if accountLabel != nil {
			r.AccountLabel = *accountLabel
		}
		if batchID != nil {
			r.ImportBatchID = *batchID
		}

		records = append(records, r)
	}

	return records, rows.Err()
}

// PostgresDeliveryStore implements DeliveryStore using PostgreSQL.
type PostgresDeliveryStore struct {
	pool *pgxpool.Pool
}

func NewPostgresDeliveryStore(pool *pgxpool.Pool) *PostgresDeliveryStore {
	return &PostgresDeliveryStore{pool: pool}
}

func (s *PostgresDeliveryStore) Upsert(ctx context.Context, rec models.DeliveryRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO deliveries (user_scope, date, product, country, count, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (user_scope, date, product, country) DO UPDATE SET
			count = EXCLUDED.count,
			updated_at = now()
	`, rec.UserScope, rec.Date, rec.Product, rec.Country, rec.Count)

	if err != nil {
		return fmt.Errorf("failed to upsert delivery: %w", err)
	}
	return nil
}

func (s *PostgresDeliveryStore) ListByRange(ctx context.Context, userScope string, from, to time.Time) ([]models.DeliveryRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT user_scope, date, product, country, count, updated_at
		FROM deliveries
		WHERE ($1 = '' OR user_scope = $1)
		  AND ($2::timestamptz IS NULL OR date >= $2)
		  AND ($3::timestamptz IS NULL OR date <= $3)
		ORDER BY date, product, country
	`, userScope, nullTime(from), nullTime(to))
	if err != nil {
		return nil, fmt.Errorf("failed to list deliveries: %w", err)
	}
	defer rows.Close()

	var records []models.DeliveryRecord
	for rows.Next() {
		var r models.DeliveryRecord
		if err := rows.Scan(&r.UserScope, &r.Date, &r.Product, &r.Country, &r.Count, &r.UpdatedAt); err != nil {
			return nil, err
		}
		records = append(records, r)
	}

	return records, rows.Err()
}

// PostgresRateRepo implements RateRepo using PostgreSQL.
type PostgresRateRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresRateRepo(pool *pgxpool.Pool) *PostgresRateRepo {
	return &PostgresRateRepo{pool: pool}
}

func (r *PostgresRateRepo) Upsert(ctx context.Context, rate models.ExchangeRate) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO exchange_rates (date, rate, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (date) DO UPDATE SET
			rate = EXCLUDED.rate,
			updated_at = now()
	`, rate.Date, rate.Rate)

	if err != nil {
		return fmt.Errorf("failed to upsert rate: %w", err)
	}
	return nil
}

func (r *PostgresRateRepo) ListAll(ctx context.Context) ([]models.ExchangeRate, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT date, rate, updated_at FROM exchange_rates ORDER BY date
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list rates: %w", err)
	}
	defer rows.Close()

	var rates []models.ExchangeRate
	for rows.Next() {
		var er models.ExchangeRate
		if err := rows.Scan(&er.Date, &er.Rate, &er.UpdatedAt); err != nil {
			return nil, err
		}
		rates = append(rates, er)
	}

	return rates, rows.Err()
}

// PostgresFinanceStore implements FinanceStore using PostgreSQL.
type PostgresFinanceStore struct {
	pool *pgxpool.Pool
}

func NewPostgresFinanceStore(pool *pgxpool.Pool) *PostgresFinanceStore {
	return &PostgresFinanceStore{pool: pool}
}

func (s *PostgresFinanceStore) SaveBatch(ctx context.Context, records []models.FinanceRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, r := range records {
		_, err = tx.Exec(ctx, `
			INSERT INTO finance_records (date, amount_received_usd, amount_received_local, import_batch_id)
			VALUES ($1, $2, $3, $4)
		`, r.Date, r.AmountUSD, r.AmountLocal, nullString(r.ImportBatchID))
		if err != nil {
			return fmt.Errorf("failed to insert finance record: %w", err)
		}
	}

	return tx.Commit(ctx)
}

func (s *PostgresFinanceStore) ListAll(ctx context.Context) ([]models.FinanceRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT date, amount_received_usd, amount_received_local, import_batch_id
		FROM finance_records ORDER BY date
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list finance records: %w", err)
	}
	defer rows.Close()

	var records []models.FinanceRecord
	for rows.Next() {
		var r models.FinanceRecord
		var batchID *string
		if err := rows.Scan(&r.Date, &r.AmountUSD, &r.AmountLocal, &batchID); err != nil {
			return nil, err
		}
		if batchID != nil {
			r.ImportBatchID = *batchID
		}
		records = append(records, r)
	}

	return records, rows.Err()
}

// PostgresProductRepo implements ProductRepo using PostgreSQL.
type PostgresProductRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresProductRepo(pool *pgxpool.Pool) *PostgresProductRepo {
	return &PostgresProductRepo{pool: pool}
}

func (r *PostgresProductRepo) Upsert(ctx context.Context, p models.Product) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO products (name, margin_per_delivery, margin_currency, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (name) DO UPDATE SET
			margin_per_delivery = EXCLUDED.margin_per_delivery,
			margin_currency = EXCLUDED.margin_currency,
			updated_at = now()
	`, p.Name, p.MarginPerDelivery, string(p.MarginCurrency))

	if err != nil {
		return fmt.Errorf("failed to upsert product: %w", err)
	}
	return nil
}

func (r *PostgresProductRepo) GetByName(ctx context.Context, name string) (*models.Product, error) {
	var p models.Product
	var currency string

	err := r.pool.QueryRow(ctx, `
		SELECT name, margin_per_delivery, margin_currency, updated_at
		FROM products WHERE name = $1
	`, name).Scan(&p.Name, &p.MarginPerDelivery, &currency, &p.UpdatedAt)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}

	p.MarginCurrency = models.MarginCurrency(currency)
	return &p, nil
}

func (r *PostgresProductRepo) ListAll(ctx context.Context) ([]models.Product, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT name, margin_per_delivery, margin_currency, updated_at
		FROM products ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	var products []models.Product
	for rows.Next() {
		var p models.Product
		var currency string
		if err := rows.Scan(&p.Name, &p.MarginPerDelivery, &currency, &p.UpdatedAt); err != nil {
			return nil, err
		}
		p.MarginCurrency = models.MarginCurrency(currency)
		products = append(products, p)
	}

	return products, rows.Err()
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
