package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/pricewatch/wishlist-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL
// mode. Foreign keys are switched on so that deleting an item cascades to
// its observations.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS items (
	app_id     INTEGER PRIMARY KEY,
	name       TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS observations (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	app_id      INTEGER NOT NULL REFERENCES items(app_id) ON DELETE CASCADE,
	price       TEXT,
	currency    TEXT,
	observed_at DATETIME NOT NULL,
	source      TEXT NOT NULL DEFAULT 'price'
);

CREATE TABLE IF NOT EXISTS sync_runs (
	id           TEXT PRIMARY KEY,
	kind         TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'running',
	started_at   DATETIME NOT NULL,
	completed_at DATETIME,
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

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// UpsertItem adds an item to the catalog. Re-adding a known app_id is a
// logged no-op: the stored name wins (first-write-wins).
func (s *SQLiteStore) UpsertItem(ctx context.Context, appID int64, name string) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO items (app_id, name, created_at) VALUES (?, ?, ?)
		 ON CONFLICT (app_id) DO NOTHING`,
		appID, name, time.Now().UTC(),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: upsert item %d", appID)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		zap.L().Debug("item already tracked", zap.Int64("app_id", appID))
	}
	return nil
}

func (s *SQLiteStore) GetItem(ctx context.Context, appID int64) (*model.Item, error) {
	var it model.Item
	err := s.db.QueryRowContext(ctx,
		`SELECT app_id, name, created_at FROM items WHERE app_id = ?`,
		appID,
	).Scan(&it.AppID, &it.Name, &it.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get item %d", appID)
	}
	return &it, nil
}

func (s *SQLiteStore) ListItems(ctx context.Context) ([]model.Item, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT app_id, name, created_at FROM items ORDER BY name ASC`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list items")
	}
	defer rows.Close()

	var items []model.Item
	for rows.Next() {
		var it model.Item
		if err := rows.Scan(&it.AppID, &it.Name, &it.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan item")
		}
		items = append(items, it)
	}
	return items, eris.Wrap(rows.Err(), "sqlite: list items iterate")
}

func (s *SQLiteStore) DeleteItem(ctx context.Context, appID int64) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: begin delete item")
	}
	defer tx.Rollback() //nolint:errcheck

	// Explicit cascade: the FK handles it when the pragma survives the
	// connection, the DELETE makes it unconditional.
	if _, err := tx.ExecContext(ctx, `DELETE FROM observations WHERE app_id = ?`, appID); err != nil {
		return false, eris.Wrapf(err, "sqlite: delete observations for item %d", appID)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM items WHERE app_id = ?`, appID)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: delete item %d", appID)
	}
	if err := tx.Commit(); err != nil {
		return false, eris.Wrap(err, "sqlite: commit delete item")
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// insertObservationSQL guards the append with an item-existence check so an
// orphan insert affects zero rows instead of tripping the FK mid-batch.
const insertObservationSQL = `
INSERT INTO observations (app_id, price, currency, observed_at, source)
SELECT ?, ?, ?, ?, ?
WHERE EXISTS (SELECT 1 FROM items WHERE app_id = ?)`

func (s *SQLiteStore) AppendObservation(ctx context.Context, obs model.Observation) error {
	res, err := s.db.ExecContext(ctx, insertObservationSQL,
		obs.AppID, priceArg(obs.Price), currencyArg(obs.Currency),
		obs.ObservedAt.UTC(), string(obs.Source), obs.AppID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: append observation for item %d", obs.AppID)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return eris.Wrapf(ErrUnknownItem, "append observation for item %d", obs.AppID)
	}
	return nil
}

func (s *SQLiteStore) AppendObservations(ctx context.Context, obs []model.Observation) (int, error) {
	if len(obs) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin append batch")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, insertObservationSQL)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare append batch")
	}
	defer stmt.Close()

	for _, o := range obs {
		res, err := stmt.ExecContext(ctx,
			o.AppID, priceArg(o.Price), currencyArg(o.Currency),
			o.ObservedAt.UTC(), string(o.Source), o.AppID,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: append observation for item %d", o.AppID)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return 0, eris.Wrapf(ErrUnknownItem, "append observation for item %d", o.AppID)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit append batch")
	}
	return len(obs), nil
}

func (s *SQLiteStore) ListObservations(ctx context.Context, filter ObservationFilter) ([]model.Observation, error) {
	query := `SELECT id, app_id, price, currency, observed_at, source FROM observations`
	var args []any

	if filter.AppID != 0 {
		// Single series for charting: chronological.
		query += ` WHERE app_id = ? ORDER BY observed_at ASC`
		args = append(args, filter.AppID)
	} else {
		// Full history review: most recent first.
		query += ` ORDER BY observed_at DESC`
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list observations")
	}
	defer rows.Close()

	var out []model.Observation
	for rows.Next() {
		o, err := scanObservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list observations iterate")
}

func (s *SQLiteStore) DeleteObservationsByBatch(ctx context.Context, observedAt time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM observations WHERE observed_at = ?`,
		observedAt.UTC(),
	)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: delete observations by batch")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n > 0, nil
}

func (s *SQLiteStore) StartSyncRun(ctx context.Context, kind model.SyncKind) (*model.SyncRun, error) {
	run := &model.SyncRun{
		ID:        uuid.New().String(),
		Kind:      kind,
		Status:    model.SyncRunRunning,
		StartedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_runs (id, kind, status, started_at) VALUES (?, ?, ?, ?)`,
		run.ID, string(run.Kind), string(run.Status), run.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: start sync run")
	}
	return run, nil
}

func (s *SQLiteStore) CompleteSyncRun(ctx context.Context, runID string, summary *model.BatchSummary) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sync_runs
		 SET status = ?, completed_at = ?, items_total = ?, items_ok = ?, records = ?
		 WHERE id = ?`,
		string(model.SyncRunComplete), time.Now().UTC(),
		summary.Total, summary.Successful, summary.Records, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete sync run %s", runID)
	}
	return checkRowsAffected(res, "sync run", runID)
}

func (s *SQLiteStore) FailSyncRun(ctx context.Context, runID string, message string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sync_runs SET status = ?, completed_at = ?, error = ? WHERE id = ?`,
		string(model.SyncRunFailed), time.Now().UTC(), message, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail sync run %s", runID)
	}
	return checkRowsAffected(res, "sync run", runID)
}

func (s *SQLiteStore) ListSyncRuns(ctx context.Context, limit int) ([]model.SyncRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, status, started_at, completed_at, items_total, items_ok, records, error
		 FROM sync_runs ORDER BY started_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list sync runs")
	}
	defer rows.Close()

	var runs []model.SyncRun
	for rows.Next() {
		var r model.SyncRun
		var completed sql.NullTime
		var errMsg sql.NullString
		if err := rows.Scan(&r.ID, &r.Kind, &r.Status, &r.StartedAt, &completed,
			&r.ItemsTotal, &r.ItemsOK, &r.Records, &errMsg); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan sync run")
		}
		if completed.Valid {
			t := completed.Time
			r.CompletedAt = &t
		}
		r.Error = errMsg.String
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list sync runs iterate")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

func priceArg(p *decimal.Decimal) any {
	if p == nil {
		return nil
	}
	return p.String()
}

func currencyArg(c string) any {
	if c == "" {
		return nil
	}
	return c
}

type scannable interface {
	Scan(dest ...any) error
}

func scanObservation(row scannable) (*model.Observation, error) {
	var o model.Observation
	var price, currency sql.NullString
	var source string

	if err := row.Scan(&o.ID, &o.AppID, &price, &currency, &o.ObservedAt, &source); err != nil {
		return nil, eris.Wrap(err, "sqlite: scan observation")
	}
	if price.Valid {
		d, err := decimal.NewFromString(price.String)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: parse price %q", price.String)
		}
		o.Price = &d
	}
	o.Currency = currency.String
	o.ObservedAt = o.ObservedAt.UTC()
	o.Source = model.ObservationSource(source)
	return &o, nil
}
