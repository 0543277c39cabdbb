package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx database/sql driver
	"github.com/jmoiron/sqlx"
)

// Service and Deployment statuses as persisted in the platform database.
const (
	ServicePending  = "PENDING"
	ServiceBuilding = "BUILDING"
	ServiceRunning  = "RUNNING"
	ServiceFailed   = "FAILED"
	ServiceStopped  = "STOPPED"

	DeploymentPending  = "PENDING"
	DeploymentBuilding = "BUILDING"
	DeploymentSuccess  = "SUCCESS"
	DeploymentFailed   = "FAILED"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

// Service is the user-facing unit of deployment. Rows are owned by the API;
// the worker only reads them and flips status under the status lock.
type Service struct {
	ID            string         `db:"id"`
	Name          string         `db:"name"`
	Type          string         `db:"type"`
	Status        string         `db:"status"`
	EnvironmentID sql.NullString `db:"environment_id"`
	CustomDomain  sql.NullString `db:"custom_domain"`
	DeletedAt     sql.NullTime   `db:"deleted_at"`
	CreatedAt     time.Time      `db:"created_at"`
}

// Deployment is one attempt to materialize a Service. Immutable after
// reaching a terminal status.
type Deployment struct {
	ID        string         `db:"id"`
	ServiceID string         `db:"service_id"`
	Status    string         `db:"status"`
	ImageTag  sql.NullString `db:"image_tag"`
	Logs      sql.NullString `db:"logs"`
	CreatedAt time.Time      `db:"created_at"`
}

// Store reads and writes Service and Deployment rows in the platform
// database. The schema is owned by the API service; the worker is a client.
type Store struct {
	db *sqlx.DB
}

// New opens a connection pool to the platform database and verifies it.
func New(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	sdb := sqlx.NewDb(db, "pgx")
	if err := sdb.PingContext(ctx); err != nil {
		sdb.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{db: sdb}, nil
}

// NewWithDB wraps an existing connection, used by tests with sqlmock.
func NewWithDB(db *sql.DB, driverName string) *Store {
	return &Store{db: sqlx.NewDb(db, driverName)}
}

// Close releases the connection pool.
func (s *Store) Close() error { return s.db.Close() }

// GetService fetches a service row by id.
func (s *Store) GetService(ctx context.Context, id string) (Service, error) {
	var svc Service
	err := s.db.GetContext(ctx, &svc,
		`SELECT id, name, type, status, environment_id, custom_domain, deleted_at, created_at
		 FROM services WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Service{}, fmt.Errorf("service %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Service{}, fmt.Errorf("get service %s: %w", id, err)
	}
	return svc, nil
}

// SetServiceStatus writes a service's status. Callers flipping a terminal
// status must hold the status lock for the service.
func (s *Store) SetServiceStatus(ctx context.Context, id, status string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE services SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("set service %s status %s: %w", id, status, err)
	}
	return nil
}

// ListTombstonedServices returns services soft-deleted before the cutoff.
func (s *Store) ListTombstonedServices(ctx context.Context, cutoff time.Time) ([]Service, error) {
	var svcs []Service
	err := s.db.SelectContext(ctx, &svcs,
		`SELECT id, name, type, status, environment_id, custom_domain, deleted_at, created_at
		 FROM services WHERE deleted_at IS NOT NULL AND deleted_at < $1`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list tombstoned services: %w", err)
	}
	return svcs, nil
}

// GetDeployment fetches a deployment row by id.
func (s *Store) GetDeployment(ctx context.Context, id string) (Deployment, error) {
	var d Deployment
	err := s.db.GetContext(ctx, &d,
		`SELECT id, service_id, status, image_tag, logs, created_at
		 FROM deployments WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Deployment{}, fmt.Errorf("deployment %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Deployment{}, fmt.Errorf("get deployment %s: %w", id, err)
	}
	return d, nil
}

// SetDeploymentBuilding marks a deployment as claimed by the worker.
// Safe to re-run after a crash: a deployment already in BUILDING stays there.
func (s *Store) SetDeploymentBuilding(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE deployments SET status = $2 WHERE id = $1 AND status IN ($3, $2)`,
		id, DeploymentBuilding, DeploymentPending)
	if err != nil {
		return fmt.Errorf("mark deployment %s building: %w", id, err)
	}
	return nil
}

// FinishDeployment writes the terminal status, image tag and log blob.
// The WHERE clause enforces immutability: a deployment that already reached
// SUCCESS or FAILED is never rewritten by a redelivered job.
func (s *Store) FinishDeployment(ctx context.Context, id, status, imageTag, logs string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE deployments SET status = $2, image_tag = NULLIF($3, ''), logs = $4
		 WHERE id = $1 AND status IN ($5, $6)`,
		id, status, imageTag, logs, DeploymentPending, DeploymentBuilding)
	if err != nil {
		return fmt.Errorf("finish deployment %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("deployment %s already terminal", id)
	}
	return nil
}

// ListImageTags returns every distinct image tag ever recorded on a
// service's deployments.
func (s *Store) ListImageTags(ctx context.Context, serviceID string) ([]string, error) {
	var tags []string
	err := s.db.SelectContext(ctx, &tags,
		`SELECT DISTINCT image_tag FROM deployments
		 WHERE service_id = $1 AND image_tag IS NOT NULL`, serviceID)
	if err != nil {
		return nil, fmt.Errorf("list image tags for %s: %w", serviceID, err)
	}
	return tags, nil
}

// ListStaleImageTags returns distinct tags recorded on deployments created
// before the cutoff. Callers subtract protected tags before removal.
func (s *Store) ListStaleImageTags(ctx context.Context, cutoff time.Time) ([]string, error) {
	var tags []string
	err := s.db.SelectContext(ctx, &tags,
		`SELECT DISTINCT image_tag FROM deployments
		 WHERE image_tag IS NOT NULL AND created_at < $1`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list stale image tags: %w", err)
	}
	return tags, nil
}

// LatestSuccessImageTags returns, for every service, the image tag of its
// most recent SUCCESS deployment. These tags are protected from image GC.
func (s *Store) LatestSuccessImageTags(ctx context.Context) ([]string, error) {
	var tags []string
	err := s.db.SelectContext(ctx, &tags,
		`SELECT DISTINCT ON (service_id) image_tag FROM deployments
		 WHERE status = $1 AND image_tag IS NOT NULL
		 ORDER BY service_id, created_at DESC`, DeploymentSuccess)
	if err != nil {
		return nil, fmt.Errorf("list latest success tags: %w", err)
	}
	return tags, nil
}

// DeleteServiceCascade permanently deletes a service and its deployments
// in one transaction. Used by tombstone reaping after container and volume
// cleanup has run.
func (s *Store) DeleteServiceCascade(ctx context.Context, serviceID string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete of %s: %w", serviceID, err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, `DELETE FROM deployments WHERE service_id = $1`, serviceID); err != nil {
		return fmt.Errorf("delete deployments of %s: %w", serviceID, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM services WHERE id = $1`, serviceID); err != nil {
		return fmt.Errorf("delete service %s: %w", serviceID, err)
	}
	return tx.Commit()
}

// Ping verifies the database connection, used by the health surface.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
