package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"storefront/internal/access"
	"storefront/internal/domain"
	"storefront/internal/funnel"
)

type Credentials struct {
	Host              string
	Port              int
	User              string
	Password          string
	DBName            string
	MigrationsDirPath string
}

// Store implements access.Repository and funnel.Repository on Postgres.
type Store struct {
	db *sql.DB
}

func NewStore(cred *Credentials) (*Store, error) {
	psqlconn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cred.Host,
		cred.Port,
		cred.User,
		cred.Password,
		cred.DBName)

	db, err := sql.Open("postgres", psqlconn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if e2 := db.Ping(); e2 != nil {
		return nil, fmt.Errorf("failed to ping database: %w", e2)
	}

	db.SetMaxOpenConns(100)
	db.SetMaxIdleConns(10)
	return &Store{db: db}, nil
}

func (s *Store) RunMigrations(cred *Credentials) error {
	driver, err := postgres.WithInstance(s.db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", cred.MigrationsDirPath),
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if e2 := m.Up(); e2 != nil && !errors.Is(e2, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", e2)
	}

	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// ExpireTrials marks every active trial past its expiry as expired. Batch
// operation, not scoped to one user.
func (s *Store) ExpireTrials(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE free_trials SET status = 'expired' WHERE status = 'active' AND expires_at <= now()`)
	if err != nil {
		return 0, fmt.Errorf("failed to expire trials: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) GetActiveTrial(ctx context.Context, userID, productSlug string) (*domain.Trial, error) {
	var t domain.Trial
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, product_slug, status, expires_at, started_at
		 FROM free_trials
		 WHERE user_id = $1 AND product_slug = $2 AND status = 'active'`,
		userID, productSlug,
	).Scan(&t.UserID, &t.ProductSlug, &t.Status, &t.ExpiresAt, &t.StartedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, access.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get trial: %w", err)
	}
	return &t, nil
}

func (s *Store) GetCustomerProduct(ctx context.Context, userID, productSlug string) (*domain.CustomerProduct, error) {
	var (
		p       domain.CustomerProduct
		expires sql.NullTime
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, product_slug, acquisition_type, is_active, access_expires_at
		 FROM customer_products
		 WHERE user_id = $1 AND product_slug = $2`,
		userID, productSlug,
	).Scan(&p.UserID, &p.ProductSlug, &p.AcquisitionType, &p.IsActive, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, access.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get customer product: %w", err)
	}
	if expires.Valid {
		p.AccessExpiresAt = &expires.Time
	}
	return &p, nil
}

// EnsureGrant provisions an admin bookkeeping row. The upsert makes
// concurrent provisioning idempotent instead of racing a check-then-create.
func (s *Store) EnsureGrant(ctx context.Context, userID, productSlug string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO customer_products (user_id, product_slug, acquisition_type, is_active)
		 VALUES ($1, $2, 'purchase', TRUE)
		 ON CONFLICT (user_id, product_slug) DO NOTHING`,
		userID, productSlug)
	if err != nil {
		return fmt.Errorf("failed to ensure grant: %w", err)
	}
	return nil
}

// UpsertOpen updates the user's open abandoned-cart record or opens a new
// one. The partial unique index on open stages makes this a single
// last-write-wins statement.
func (s *Store) UpsertOpen(ctx context.Context, userID string, items []domain.CartItem, totalCents int64) error {
	itemsJSON, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("marshal cart snapshot: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO abandoned_carts (id, user_id, stage, items, total_cents)
		 VALUES ($1, $2, 'cart', $3, $4)
		 ON CONFLICT (user_id) WHERE stage IN ('cart', 'checkout')
		 DO UPDATE SET stage = 'cart', items = EXCLUDED.items, total_cents = EXCLUDED.total_cents, updated_at = now()`,
		uuid.New(), userID, itemsJSON, totalCents)
	if err != nil {
		return fmt.Errorf("failed to upsert abandoned cart: %w", err)
	}
	return nil
}

func (s *Store) SetStage(ctx context.Context, userID string, stage domain.Stage) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE abandoned_carts SET stage = $2, updated_at = now()
		 WHERE user_id = $1 AND stage IN ('cart', 'checkout')`,
		userID, stage.String())
	if err != nil {
		return fmt.Errorf("failed to set funnel stage: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if rows == 0 {
		return funnel.ErrNoOpenCart
	}
	return nil
}
