package flowstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/flexinfer/agentmarket/internal/metrics"
)

// uniqueViolation is the Postgres SQLSTATE for duplicate keys.
const uniqueViolation = "23505"

const flowColumns = `id, name, description, category, status, favorite, version, graph, metadata,
	created_by, created_at, updated_at, last_run`

// PostgresStore implements FlowStore on a Postgres table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens a connection, verifies it, and ensures the schema.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	s := &PostgresStore{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create workflows table: %w", err)
	}
	return s, nil
}

// NewPostgresStoreWithDB uses an existing handle. The schema must exist.
func NewPostgresStoreWithDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS workflows (
			id          TEXT PRIMARY KEY,
			name        TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			category    TEXT NOT NULL DEFAULT '',
			status      TEXT NOT NULL,
			favorite    BOOLEAN NOT NULL DEFAULT FALSE,
			version     TEXT NOT NULL,
			graph       JSONB NOT NULL,
			metadata    JSONB,
			created_by  TEXT NOT NULL DEFAULT '',
			created_at  TIMESTAMPTZ NOT NULL,
			updated_at  TIMESTAMPTZ NOT NULL,
			last_run    TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS idx_workflows_updated_at ON workflows(updated_at DESC);
		CREATE INDEX IF NOT EXISTS idx_workflows_created_by ON workflows(created_by);
	`
	_, err := s.db.ExecContext(ctx, query)
	return err
}

// Create saves a new flow.
func (s *PostgresStore) Create(ctx context.Context, req *CreateFlowRequest) (_ *Flow, err error) {
	defer func() { observe("create", err) }()

	if err := req.Validate(); err != nil {
		return nil, err
	}

	id := req.ID
	if id == "" {
		id = uuid.New().String()
	}
	flow := newFlow(id, req, time.Now().UTC())

	graph, metadata, err := encodeFlow(flow)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO workflows (`+flowColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		flow.ID, flow.Name, flow.Description, flow.Category, string(flow.Status), flow.Favorite,
		flow.Version, graph, metadata, flow.CreatedBy, flow.CreatedAt, flow.UpdatedAt, nil)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return nil, ErrFlowExists
		}
		return nil, fmt.Errorf("insert flow: %w", err)
	}
	return flow, nil
}

// Get retrieves a flow by ID.
func (s *PostgresStore) Get(ctx context.Context, id string) (_ *Flow, err error) {
	defer func() { observe("get", err) }()

	row := s.db.QueryRowContext(ctx, `SELECT `+flowColumns+` FROM workflows WHERE id = $1`, id)
	return scanFlow(row)
}

// Update modifies an existing flow inside a row-locking transaction.
func (s *PostgresStore) Update(ctx context.Context, id string, req *UpdateFlowRequest) (_ *Flow, err error) {
	defer func() { observe("update", err) }()

	if err := req.Validate(); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `SELECT `+flowColumns+` FROM workflows WHERE id = $1 FOR UPDATE`, id)
	flow, err := scanFlow(row)
	if err != nil {
		return nil, err
	}
	applyUpdate(flow, req, time.Now().UTC())

	graph, metadata, err := encodeFlow(flow)
	if err != nil {
		return nil, err
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE workflows
		SET name = $2, description = $3, category = $4, status = $5, version = $6,
			graph = $7, metadata = $8, updated_at = $9
		WHERE id = $1`,
		flow.ID, flow.Name, flow.Description, flow.Category, string(flow.Status), flow.Version,
		graph, metadata, flow.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("update flow: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return flow, nil
}

// Delete removes a flow.
func (s *PostgresStore) Delete(ctx context.Context, id string) (err error) {
	defer func() { observe("delete", err) }()

	res, err := s.db.ExecContext(ctx, `DELETE FROM workflows WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete flow: %w", err)
	}
	return requireRow(res)
}

// List returns flows matching the options.
func (s *PostgresStore) List(ctx context.Context, opts *ListOptions) (_ []*Flow, err error) {
	defer func() { observe("list", err) }()

	if opts == nil {
		opts = &ListOptions{}
	}

	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, strings.Replace(cond, "?", "$"+strconv.Itoa(len(args)), 1))
	}
	if opts.CreatedBy != "" {
		add("created_by = ?", opts.CreatedBy)
	}
	if opts.Category != "" {
		add("category = ?", opts.Category)
	}
	if opts.Status != "" {
		add("status = ?", string(opts.Status))
	}
	if opts.FavoritesOnly {
		where = append(where, "favorite")
	}

	query := `SELECT ` + flowColumns + ` FROM workflows`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY updated_at DESC, id`
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += ` OFFSET $` + strconv.Itoa(len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list flows: %w", err)
	}
	defer rows.Close()

	flows := []*Flow{}
	for rows.Next() {
		flow, err := scanFlow(rows)
		if err != nil {
			return nil, err
		}
		flows = append(flows, flow)
	}
	return flows, rows.Err()
}

// ToggleFavorite flips the favorite flag.
func (s *PostgresStore) ToggleFavorite(ctx context.Context, id string) (_ *Flow, err error) {
	defer func() { observe("toggle_favorite", err) }()

	row := s.db.QueryRowContext(ctx,
		`UPDATE workflows SET favorite = NOT favorite WHERE id = $1 RETURNING `+flowColumns, id)
	return scanFlow(row)
}

// MarkRun records the time of the latest run.
func (s *PostgresStore) MarkRun(ctx context.Context, id string, at time.Time) (err error) {
	defer func() { observe("mark_run", err) }()

	res, err := s.db.ExecContext(ctx, `UPDATE workflows SET last_run = $2 WHERE id = $1`, id, at.UTC())
	if err != nil {
		return fmt.Errorf("mark run: %w", err)
	}
	return requireRow(res)
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// observe records the outcome of a query. Missing and duplicate rows are
// answers, not failures.
func observe(op string, err error) {
	if errors.Is(err, ErrFlowNotFound) || errors.Is(err, ErrFlowExists) {
		err = nil
	}
	metrics.ObserveStore("postgres_flows", op, err)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFlow(row rowScanner) (*Flow, error) {
	var (
		f               Flow
		status          string
		graph, metadata []byte
		lastRun         sql.NullTime
	)
	err := row.Scan(&f.ID, &f.Name, &f.Description, &f.Category, &status, &f.Favorite, &f.Version,
		&graph, &metadata, &f.CreatedBy, &f.CreatedAt, &f.UpdatedAt, &lastRun)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrFlowNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan flow: %w", err)
	}

	f.Status = Status(status)
	if err := json.Unmarshal(graph, &f.Graph); err != nil {
		return nil, fmt.Errorf("unmarshal graph: %w", err)
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &f.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	if lastRun.Valid {
		t := lastRun.Time.UTC()
		f.LastRun = &t
	}
	return &f, nil
}

// encodeFlow returns the JSONB parameters for a flow. Absent metadata is
// passed as SQL NULL.
func encodeFlow(f *Flow) (graph string, metadata any, err error) {
	g, err := json.Marshal(f.Graph)
	if err != nil {
		return "", nil, fmt.Errorf("marshal graph: %w", err)
	}
	if f.Metadata != nil {
		m, err := json.Marshal(f.Metadata)
		if err != nil {
			return "", nil, fmt.Errorf("marshal metadata: %w", err)
		}
		metadata = string(m)
	}
	return string(g), metadata, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrFlowNotFound
	}
	return nil
}

var _ FlowStore = (*PostgresStore)(nil)
