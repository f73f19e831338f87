package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/chrisdd2/federated-login/appconfig"
	"github.com/chrisdd2/federated-login/internal/services/storage"
	"github.com/chrisdd2/federated-login/model"
	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

var (
	ErrInvalidSchemaVersion = errors.New("invalid schema version")
)

const (
	schemaVersionTable = "passport_schema_version"
	profilesTable      = "passport_user_profiles"
	eventsTable        = "passport_events"

	profileColumns = "id,provider,display_name,family_name,given_name,middle_name,emails,photos,created_at"

	// fixed width so the text column sorts chronologically
	eventTimeFormat = "2006-01-02T15:04:05.000000000Z07:00"
)

const (
	DriverPostgres = "pgx"
	DriverSqlite   = "sqlite"
)

// SqlStore keeps profiles in a single table, PostgreSQL and SQLite share the same queries.
type SqlStore struct {
	db     *sql.DB
	driver string
}

func PostgresDsn(cfg *appconfig.AppConfig) string {
	pgCfg := cfg.Storage.Postgres
	if pgCfg.Port == 0 {
		pgCfg.Port = 5432
	}
	if pgCfg.Host == "" {
		pgCfg.Host = "localhost"
	}
	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s",
		url.QueryEscape(pgCfg.Username), url.QueryEscape(pgCfg.Password), pgCfg.Host, pgCfg.Port, pgCfg.Database,
	)
	if pgCfg.SslMode != "" {
		dsn += "?sslmode=" + url.QueryEscape(pgCfg.SslMode)
	}
	return dsn
}

func NewPostgresStore(ctx context.Context, cfg *appconfig.AppConfig) (*SqlStore, error) {
	return Open(ctx, DriverPostgres, PostgresDsn(cfg))
}

func NewSqliteStore(ctx context.Context, cfg *appconfig.AppConfig) (*SqlStore, error) {
	return Open(ctx, DriverSqlite, cfg.Storage.Sqlite.Path)
}

func Open(ctx context.Context, driver string, dsn string) (*SqlStore, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if driver == DriverSqlite {
		// one writer, and :memory: databases are per connection
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	store := &SqlStore{db: db, driver: driver}
	if err := store.prepareDb(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (p *SqlStore) placeholders(n int) string {
	ph := make([]string, n)
	for i := range ph {
		if p.driver == DriverSqlite {
			ph[i] = "?"
		} else {
			ph[i] = fmt.Sprintf("$%d", i+1)
		}
	}
	return strings.Join(ph, ",")
}

func (p *SqlStore) GetProfile(ctx context.Context, id string) (*model.UserProfile, error) {
	row := p.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT %s FROM %s WHERE id = %s", profileColumns, profilesTable, p.placeholders(1)), id)

	var (
		prof      model.UserProfile
		provider  string
		emails    string
		photos    string
		createdAt int64
	)
	err := row.Scan(&prof.Id, &provider, &prof.DisplayName,
		&prof.Name.FamilyName, &prof.Name.GivenName, &prof.Name.MiddleName,
		&emails, &photos, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrProfileNotFound
	}
	if err != nil {
		return nil, err
	}
	prof.Provider = model.Provider(provider)
	prof.CreatedAt = time.UnixMicro(createdAt).UTC()
	if err := unmarshalValues(emails, &prof.Emails); err != nil {
		return nil, fmt.Errorf("emails %s: %w", id, err)
	}
	if err := unmarshalValues(photos, &prof.Photos); err != nil {
		return nil, fmt.Errorf("photos %s: %w", id, err)
	}
	return &prof, nil
}

func (p *SqlStore) CreateProfile(ctx context.Context, prof *model.UserProfile) error {
	if err := storage.Validate(prof); err != nil {
		return err
	}
	emails, err := json.Marshal(prof.Emails)
	if err != nil {
		return err
	}
	photos, err := json.Marshal(prof.Photos)
	if err != nil {
		return err
	}
	createdAt := prof.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC().Truncate(time.Microsecond)
	}
	res, err := p.db.ExecContext(ctx,
		fmt.Sprintf("INSERT INTO %s(%s) VALUES(%s) ON CONFLICT (id) DO NOTHING", profilesTable, profileColumns, p.placeholders(9)),
		prof.Id, prof.Provider.String(), prof.DisplayName,
		prof.Name.FamilyName, prof.Name.GivenName, prof.Name.MiddleName,
		string(emails), string(photos), createdAt.UnixMicro(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrProfileExists
	}
	prof.CreatedAt = createdAt
	return nil
}

func (p *SqlStore) Publish(ctx context.Context, eventType string, metadata map[string]string) error {
	b, err := json.Marshal(metadata)
	if err != nil || metadata == nil {
		b = []byte("{}")
	}
	_, err = p.db.ExecContext(ctx,
		fmt.Sprintf("INSERT INTO %s(id,time,event_type,metadata) VALUES(%s)", eventsTable, p.placeholders(4)),
		uuid.NewString(), time.Now().UTC().Format(eventTimeFormat), eventType, string(b))
	return err
}

// Events returns the recorded events, oldest first.
func (p *SqlStore) Events(ctx context.Context) ([]storage.Event, error) {
	rows, err := p.db.QueryContext(ctx, fmt.Sprintf("SELECT id,time,event_type,metadata FROM %s ORDER BY time", eventsTable))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ret []storage.Event
	for rows.Next() {
		var (
			ev       storage.Event
			ts       string
			metadata string
		)
		if err := rows.Scan(&ev.Id, &ts, &ev.Type, &metadata); err != nil {
			return nil, err
		}
		if ev.Time, err = time.Parse(eventTimeFormat, ts); err != nil {
			return nil, fmt.Errorf("event %s time: %w", ev.Id, err)
		}
		if err := json.Unmarshal([]byte(metadata), &ev.Metadata); err != nil {
			return nil, err
		}
		ret = append(ret, ev)
	}
	return ret, rows.Err()
}

func (p *SqlStore) Close() error {
	return p.db.Close()
}

func unmarshalValues(s string, v *[]model.Value) error {
	if s == "" {
		return nil
	}
	return json.Unmarshal([]byte(s), v)
}
