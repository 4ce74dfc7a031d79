package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"hookwatch/internal/model"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const DefaultTimeout = 5 * time.Second

const pgUniqueViolation = "23505"

// sqliteTimeLayout is fixed width so text comparison orders like time.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

const eventColumns = `id, request_id, author, action, from_branch, to_branch, event_time`

type SQLRepository struct {
	db      *sql.DB
	dialect string
	timeout time.Duration
	now     func() time.Time

	initMu   sync.Mutex
	init     func(ctx context.Context, db *sql.DB) error
	initDone bool
}

type SQLOption func(*SQLRepository)

// WithTimeout bounds every repository call. Non-positive values keep the
// default.
func WithTimeout(d time.Duration) SQLOption {
	return func(s *SQLRepository) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithInit registers schema preparation that must succeed once before the
// first read or write. A failed attempt is retried on the next call, so a
// repository can be created while the database is still unreachable.
func WithInit(fn func(ctx context.Context, db *sql.DB) error) SQLOption {
	return func(s *SQLRepository) {
		s.init = fn
	}
}

func NewSQLRepository(db *sql.DB, dialect string, opts ...SQLOption) (*SQLRepository, error) {
	if db == nil {
		return nil, fmt.Errorf("nil db")
	}
	d := strings.ToLower(strings.TrimSpace(dialect))
	if d == "" {
		return nil, fmt.Errorf("empty dialect")
	}
	if d != "postgres" && d != "sqlite" {
		return nil, fmt.Errorf("unsupported dialect: %s", dialect)
	}
	s := &SQLRepository{db: db, dialect: d, timeout: DefaultTimeout, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *SQLRepository) Dialect() string { return s.dialect }

func (s *SQLRepository) ensureInit(ctx context.Context) error {
	if s.init == nil {
		return nil
	}
	s.initMu.Lock()
	defer s.initMu.Unlock()
	if s.initDone {
		return nil
	}
	if err := s.init(ctx, s.db); err != nil {
		return fmt.Errorf("%w: prepare schema: %w", ErrStorage, err)
	}
	s.initDone = true
	return nil
}

func (s *SQLRepository) Save(ctx context.Context, ev model.Event) (bool, error) {
	ev, err := prepareEvent(ev)
	if err != nil {
		return false, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.ensureInit(ctx); err != nil {
		return false, err
	}

	insert := `INSERT INTO events (` + eventColumns + `, ingested_at) VALUES (` +
		s.ph(1) + `,` + s.ph(2) + `,` + s.ph(3) + `,` + s.ph(4) + `,` + s.ph(5) + `,` + s.ph(6) + `,` + s.ph(7) + `,` + s.ph(8) +
		`) ON CONFLICT (request_id) DO NOTHING`
	result, err := s.db.ExecContext(ctx, insert,
		ev.ID,
		ev.RequestID,
		ev.Author,
		string(ev.Action),
		nullable(ev.FromBranch),
		ev.ToBranch,
		s.tsValue(ev.Timestamp),
		s.tsValue(s.now()),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("%w: insert event %s: %w", ErrStorage, ev.RequestID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: insert event %s: %w", ErrStorage, ev.RequestID, err)
	}
	return affected > 0, nil
}

func (s *SQLRepository) Query(ctx context.Context, q Query) ([]model.Event, error) {
	q = q.normalized()
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.ensureInit(ctx); err != nil {
		return nil, err
	}

	params := make([]interface{}, 0, 2)
	add := func(v interface{}) string {
		params = append(params, v)
		return s.ph(len(params))
	}

	query := strings.Builder{}
	query.WriteString(`SELECT ` + eventColumns + ` FROM events`)
	if !q.Since.IsZero() {
		query.WriteString(` WHERE event_time > ` + add(s.tsValue(q.Since)))
	}
	query.WriteString(` ORDER BY event_time DESC, request_id DESC LIMIT ` + add(q.Limit))

	rows, err := s.db.QueryContext(ctx, query.String(), params...)
	if err != nil {
		return nil, fmt.Errorf("%w: query events: %w", ErrStorage, err)
	}
	defer rows.Close()

	items := make([]model.Event, 0, q.Limit)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan event: %w", ErrStorage, err)
		}
		items = append(items, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: query events: %w", ErrStorage, err)
	}
	return items, nil
}

func (s *SQLRepository) Get(ctx context.Context, requestID string) (model.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.ensureInit(ctx); err != nil {
		return model.Event{}, err
	}

	query := `SELECT ` + eventColumns + ` FROM events WHERE request_id = ` + s.ph(1)
	e, err := scanEvent(s.db.QueryRowContext(ctx, query, strings.TrimSpace(requestID)))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Event{}, ErrNotFound
	}
	if err != nil {
		return model.Event{}, fmt.Errorf("%w: get event %s: %w", ErrStorage, requestID, err)
	}
	return e, nil
}

func (s *SQLRepository) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return nil
}

func (s *SQLRepository) ph(n int) string {
	if s.dialect == "postgres" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (s *SQLRepository) tsValue(t time.Time) interface{} {
	if s.dialect == "sqlite" {
		return t.UTC().Format(sqliteTimeLayout)
	}
	return t.UTC()
}

func nullable(in *string) interface{} {
	if in == nil {
		return nil
	}
	return *in
}

// isUniqueViolation reports whether err is a unique constraint failure from
// either supported driver.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	return false
}

type eventScanner interface {
	Scan(dest ...interface{}) error
}

func scanEvent(row eventScanner) (model.Event, error) {
	var e model.Event
	var action string
	var fromBranch sql.NullString
	var tsRaw interface{}

	if err := row.Scan(&e.ID, &e.RequestID, &e.Author, &action, &fromBranch, &e.ToBranch, &tsRaw); err != nil {
		return model.Event{}, err
	}
	parsed, err := model.ParseAction(action)
	if err != nil {
		return model.Event{}, err
	}
	e.Action = parsed
	if fromBranch.Valid {
		e.FromBranch = model.StringPtr(fromBranch.String)
	}
	ts, err := parseTimeRaw(tsRaw)
	if err != nil {
		return model.Event{}, err
	}
	e.Timestamp = ts
	return e, nil
}

func parseTimeRaw(v interface{}) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), nil
	case []byte:
		return parseTimeString(string(t))
	case string:
		return parseTimeString(t)
	case nil:
		return time.Time{}, nil
	default:
		return time.Time{}, fmt.Errorf("unsupported time type %T", v)
	}
}

func parseTimeString(in string) (time.Time, error) {
	in = strings.TrimSpace(in)
	if in == "" {
		return time.Time{}, nil
	}
	formats := []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05.999999-07:00", "2006-01-02 15:04:05-07:00", "2006-01-02 15:04:05"}
	for _, f := range formats {
		if t, err := time.Parse(f, in); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time format: %s", in)
}
