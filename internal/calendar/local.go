package calendar

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

const backendLocal = "local"

// Local is a Calendar stored in a SQLite database. Times are kept as Unix
// seconds so range comparisons stay exact regardless of zone.
type Local struct {
	db  *sqlx.DB
	loc *time.Location
}

type eventRow struct {
	ID          string `db:"id"`
	Title       string `db:"title"`
	Description string `db:"description"`
	StartUnix   int64  `db:"start_unix"`
	EndUnix     int64  `db:"end_unix"`
}

// NewLocal opens (or creates) a SQLite calendar at dbPath, enables WAL
// mode, and runs any pending schema migrations. Returned times are in loc.
func NewLocal(dbPath string, loc *time.Location) (*Local, error) {
	if loc == nil {
		loc = time.Local
	}

	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// ":memory:" databases are per connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	l := &Local{db: db, loc: loc}
	if err := l.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return l, nil
}

// Close closes the underlying database connection.
func (l *Local) Close() error {
	return l.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (l *Local) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := l.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = l.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := l.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// CreateEvent inserts a new event with a generated UUID.
func (l *Local) CreateEvent(ctx context.Context, ev NewEvent) (Event, error) {
	if err := validateNewEvent(ev); err != nil {
		return Event{}, err
	}

	row := eventRow{
		ID:          uuid.New().String(),
		Title:       ev.Title,
		Description: ev.Description,
		StartUnix:   ev.Start.Unix(),
		EndUnix:     ev.End.Unix(),
	}

	_, err := l.db.NamedExecContext(ctx, `
		INSERT INTO events (id, title, description, start_unix, end_unix)
		VALUES (:id, :title, :description, :start_unix, :end_unix)`,
		row,
	)
	if err != nil {
		return Event{}, l.serviceError("create", fmt.Errorf("%q: %w", ev.Title, err))
	}

	return l.toEvent(row), nil
}

// Events returns events overlapping [from, to) whose title or description
// contains search.
func (l *Local) Events(ctx context.Context, from, to time.Time, search string) ([]Event, error) {
	conditions := []string{"start_unix < ?", "end_unix > ?"}
	args := []interface{}{to.Unix(), from.Unix()}

	if search != "" {
		conditions = append(conditions, "(instr(title, ?) > 0 OR instr(description, ?) > 0)")
		args = append(args, search, search)
	}

	query := "SELECT id, title, description, start_unix, end_unix FROM events WHERE " +
		strings.Join(conditions, " AND ") +
		" ORDER BY start_unix, id"

	var rows []eventRow
	if err := l.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, l.serviceError("list", err)
	}

	events := make([]Event, 0, len(rows))
	for _, r := range rows {
		events = append(events, l.toEvent(r))
	}
	return events, nil
}

// DeleteEvent removes the event by id. Deleting a missing event is an error.
func (l *Local) DeleteEvent(ctx context.Context, ev Event) error {
	res, err := l.db.ExecContext(ctx, "DELETE FROM events WHERE id = ?", ev.ID)
	if err != nil {
		return l.serviceError("delete", fmt.Errorf("%s: %w", ev.ID, err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return l.serviceError("delete", fmt.Errorf("%s: %w", ev.ID, err))
	}
	if n == 0 {
		return l.serviceError("delete", fmt.Errorf("event %s not found", ev.ID))
	}
	return nil
}

func (l *Local) toEvent(r eventRow) Event {
	return Event{
		ID:          r.ID,
		Title:       r.Title,
		Description: r.Description,
		Start:       time.Unix(r.StartUnix, 0).In(l.loc),
		End:         time.Unix(r.EndUnix, 0).In(l.loc),
	}
}

func (l *Local) serviceError(op string, err error) error {
	return &ServiceError{Backend: backendLocal, Op: op, Err: err}
}

var _ Calendar = (*Local)(nil)
