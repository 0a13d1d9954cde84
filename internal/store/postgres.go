package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/pricewatch/wishlist-cli/internal/db"
	"github.com/pricewatch/wishlist-cli/internal/model"
)

// PostgresStore implements Store using pgxpool. SQLite is the default for a
// single-user wishlist; this variant serves shared deployments behind the
// serve command.
type PostgresStore struct {
	pool db.Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(5)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresFromPool wraps an existing pool. Tests inject a pgxmock pool
// through this constructor.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS items (
	app_id     BIGINT PRIMARY KEY,
	name       TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS observations (
	id          BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	app_id      BIGINT NOT NULL REFERENCES items(app_id) ON DELETE CASCADE,
	price       NUMERIC(12,2),
	currency    TEXT,
	observed_at TIMESTAMPTZ NOT NULL,
	source      TEXT NOT NULL DEFAULT 'price'
);

CREATE TABLE IF NOT EXISTS sync_runs (
	id           TEXT PRIMARY KEY,
	kind         TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'running',
	started_at   TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ,
	items_total  INTEGER NOT NULL DEFAULT 0,
	items_ok     INTEGER NOT NULL DEFAULT 0,
	records      INTEGER NOT NULL DEFAULT 0,
	error        TEXT
);

CREATE INDEX IF NOT EXISTS idx_items_name ON items(name);
CREATE INDEX IF NOT EXISTS idx_observations_app_id ON observations(app_id, observed_at);
CREATE INDEX IF NOT EXISTS idx_observations_observed_at ON observations(observed_at);
CREATE INDEX IF NOT EXISTS idx_sync_runs_started_at ON sync_runs(started_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) UpsertItem(ctx context.Context, appID int64, name string) error {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO items (app_id, name, created_at) VALUES ($1, $2, $3)
		 ON CONFLICT (app_id) DO NOTHING`,
		appID, name, time.Now().UTC(),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: upsert item %d", appID)
	}
	if tag.RowsAffected() == 0 {
		zap.L().Debug("item already tracked", zap.Int64("app_id", appID))
	}
	return nil
}

func (s *PostgresStore) GetItem(ctx context.Context, appID int64) (*model.Item, error) {
	var it model.Item
	err := s.pool.QueryRow(ctx,
		`SELECT app_id, name, created_at FROM items WHERE app_id = $1`,
		appID,
	).Scan(&it.AppID, &it.Name, &it.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get item %d", appID)
	}
	return &it, nil
}

func (s *PostgresStore) ListItems(ctx context.Context) ([]model.Item, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT app_id, name, created_at FROM items ORDER BY name ASC`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list items")
	}
	defer rows.Close()

	var items []model.Item
	for rows.Next() {
		var it model.Item
		if err := rows.Scan(&it.AppID, &it.Name, &it.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan item")
		}
		items = append(items, it)
	}
	return items, eris.Wrap(rows.Err(), "postgres: list items iterate")
}

func (s *PostgresStore) DeleteItem(ctx context.Context, appID int64) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM items WHERE app_id = $1`, appID)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: delete item %d", appID)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) AppendObservation(ctx context.Context, obs model.Observation) error {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO observations (app_id, price, currency, observed_at, source)
		 SELECT $1, $2, $3, $4, $5
		 WHERE EXISTS (SELECT 1 FROM items WHERE app_id = $1)`,
		obs.AppID, priceArg(obs.Price), currencyArg(obs.Currency),
		obs.ObservedAt.UTC(), string(obs.Source),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: append observation for item %d", obs.AppID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrUnknownItem, "append observation for item %d", obs.AppID)
	}
	return nil
}

func (s *PostgresStore) AppendObservations(ctx context.Context, obs []model.Observation) (int, error) {
	if len(obs) == 0 {
		return 0, nil
	}

	rows := make([][]any, 0, len(obs))
	for _, o := range obs {
		rows = append(rows, []any{
			o.AppID, priceArg(o.Price), currencyArg(o.Currency),
			o.ObservedAt.UTC(), string(o.Source),
		})
	}

	n, err := db.CopyFrom(ctx, s.pool, "observations",
		[]string{"app_id", "price", "currency", "observed_at", "source"}, rows)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return 0, eris.Wrap(ErrUnknownItem, "append observation batch")
		}
		return 0, eris.Wrap(err, "postgres: append observation batch")
	}
	return int(n), nil
}

func (s *PostgresStore) ListObservations(ctx context.Context, filter ObservationFilter) ([]model.Observation, error) {
	query := `SELECT id, app_id, price::text, currency, observed_at, source FROM observations`
	var args []any

	if filter.AppID != 0 {
		query += ` WHERE app_id = $1 ORDER BY observed_at ASC`
		args = append(args, filter.AppID)
	} else {
		query += ` ORDER BY observed_at DESC`
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list observations")
	}
	defer rows.Close()

	var out []model.Observation
	for rows.Next() {
		var o model.Observation
		var price, currency *string
		var source string
		if err := rows.Scan(&o.ID, &o.AppID, &price, &currency, &o.ObservedAt, &source); err != nil {
			return nil, eris.Wrap(err, "postgres: scan observation")
		}
		if price != nil {
			d, err := decimal.NewFromString(*price)
			if err != nil {
				return nil, eris.Wrapf(err, "postgres: parse price %q", *price)
			}
			o.Price = &d
		}
		if currency != nil {
			o.Currency = *currency
		}
		o.ObservedAt = o.ObservedAt.UTC()
		o.Source = model.ObservationSource(source)
		out = append(out, o)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list observations iterate")
}

func (s *PostgresStore) DeleteObservationsByBatch(ctx context.Context, observedAt time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM observations WHERE observed_at = $1`,
		observedAt.UTC(),
	)
	if err != nil {
		return false, eris.Wrap(err, "postgres: delete observations by batch")
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) StartSyncRun(ctx context.Context, kind model.SyncKind) (*model.SyncRun, error) {
	run := &model.SyncRun{
		ID:        uuid.New().String(),
		Kind:      kind,
		Status:    model.SyncRunRunning,
		StartedAt: time.Now().UTC(),
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sync_runs (id, kind, status, started_at) VALUES ($1, $2, $3, $4)`,
		run.ID, string(run.Kind), string(run.Status), run.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: start sync run")
	}
	return run, nil
}

func (s *PostgresStore) CompleteSyncRun(ctx context.Context, runID string, summary *model.BatchSummary) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE sync_runs
		 SET status = $1, completed_at = $2, items_total = $3, items_ok = $4, records = $5
		 WHERE id = $6`,
		string(model.SyncRunComplete), time.Now().UTC(),
		summary.Total, summary.Successful, summary.Records, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete sync run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("sync run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) FailSyncRun(ctx context.Context, runID string, message string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE sync_runs SET status = $1, completed_at = $2, error = $3 WHERE id = $4`,
		string(model.SyncRunFailed), time.Now().UTC(), message, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail sync run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("sync run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) ListSyncRuns(ctx context.Context, limit int) ([]model.SyncRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, kind, status, started_at, completed_at, items_total, items_ok, records, error
		 FROM sync_runs ORDER BY started_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list sync runs")
	}
	defer rows.Close()

	var runs []model.SyncRun
	for rows.Next() {
		var r model.SyncRun
		var completed *time.Time
		var errMsg *string
		if err := rows.Scan(&r.ID, &r.Kind, &r.Status, &r.StartedAt, &completed,
			&r.ItemsTotal, &r.ItemsOK, &r.Records, &errMsg); err != nil {
			return nil, eris.Wrap(err, "postgres: scan sync run")
		}
		r.CompletedAt = completed
		if errMsg != nil {
			r.Error = *errMsg
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list sync runs iterate")
}
