package scheduling

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	contractx "github.com/pattarin-dev/voicebook/agent/contract"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type PostgresConfig struct {
	DSN          string        `envconfig:"DSN" split_words:"true"`
	DialTimeout  time.Duration `envconfig:"DIAL_TIMEOUT" split_words:"true" default:"10s"`
	QueryTimeout time.Duration `envconfig:"QUERY_TIMEOUT" split_words:"true" default:"10s"`
}

// PostgresStore backs the appointment record with Postgres. The slot
// exclusivity invariant lives in the database: a partial unique index on
// (date, time) scoped to status = 'booked', so the guarantee holds across
// server instances.
type PostgresStore struct {
	db *bun.DB
}

func NewPostgresStore(cfg PostgresConfig) (*PostgresStore, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}
	sqldb := sql.OpenDB(pgdriver.NewConnector(
		pgdriver.WithDSN(dsn),
		pgdriver.WithDialTimeout(cfg.DialTimeout),
		pgdriver.WithReadTimeout(cfg.QueryTimeout),
		pgdriver.WithWriteTimeout(cfg.QueryTimeout),
	))
	return &PostgresStore{db: bun.NewDB(sqldb, pgdialect.New())}, nil
}

// Migrate applies the embedded schema migrations.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set migration dialect: %w", err)
	}
	if err := goose.UpContext(ctx, s.db.DB, "migrations"); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) Book(ctx context.Context, date, timeOfDay, contactNumber, name string) (*Appointment, error) {
	appt := &Appointment{
		ID:            uuid.NewString(),
		ContactNumber: contactNumber,
		Name:          name,
		Date:          date,
		Time:          timeOfDay,
		Status:        StatusBooked,
		CreatedAt:     time.Now().UTC(),
	}
	if _, err := s.db.NewInsert().Model(appt).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s at %s", contractx.ErrSlotTaken, date, timeOfDay)
		}
		return nil, fmt.Errorf("%w: insert appointment: %v", contractx.ErrUnavailable, err)
	}
	return appt, nil
}

func (s *PostgresStore) Cancel(ctx context.Context, id string) error {
	res, err := s.db.NewUpdate().
		Model((*Appointment)(nil)).
		Set("status = ?", StatusCancelled).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("%w: cancel appointment: %v", contractx.ErrUnavailable, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: cancel appointment: %v", contractx.ErrUnavailable, err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: appointment %s", contractx.ErrNotFound, id)
	}
	return nil
}

func (s *PostgresStore) Modify(ctx context.Context, id, newDate, newTime string) (*Appointment, error) {
	original := new(Appointment)
	err := s.db.NewSelect().Model(original).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: appointment %s", contractx.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load appointment: %v", contractx.ErrUnavailable, err)
	}

	if err := s.Cancel(ctx, id); err != nil {
		return nil, err
	}
	// The cancel is not rolled back if the rebook loses the race; the
	// caller is told the original is cancelled and must pick another slot.
	return s.Book(ctx, newDate, newTime, original.ContactNumber, original.Name)
}

func (s *PostgresStore) ListFor(ctx context.Context, contactNumber string) ([]Appointment, error) {
	var appts []Appointment
	err := s.db.NewSelect().
		Model(&appts).
		Where("contact_number = ?", contactNumber).
		Order("date ASC", "time ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list appointments: %v", contractx.ErrUnavailable, err)
	}
	return appts, nil
}

func (s *PostgresStore) BookedFor(ctx context.Context, contactNumber string) ([]Appointment, error) {
	var appts []Appointment
	err := s.db.NewSelect().
		Model(&appts).
		Where("contact_number = ?", contactNumber).
		Where("status = ?", StatusBooked).
		Order("date ASC", "time ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list booked appointments: %v", contractx.ErrUnavailable, err)
	}
	return appts, nil
}

func (s *PostgresStore) FetchAvailable(ctx context.Context, from, to string) ([]Slot, error) {
	start, end, err := suggestionRange(from, to, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	var taken []Appointment
	err = s.db.NewSelect().
		Model(&taken).
		Column("date", "time").
		Where("status = ?", StatusBooked).
		Where("date >= ?", start.Format(dateLayout)).
		Where("date <= ?", end.Format(dateLayout)).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list booked slots: %v", contractx.ErrUnavailable, err)
	}

	booked := make(map[string]struct{}, len(taken))
	for _, a := range taken {
		booked[a.Date+" "+a.Time] = struct{}{}
	}
	return openSlots(start, end, booked), nil
}

func (s *PostgresStore) SaveSummary(ctx context.Context, sum *Summary) error {
	if sum == nil || strings.TrimSpace(sum.SessionID) == "" {
		return fmt.Errorf("%w: summary session id is required", contractx.ErrValidation)
	}
	if sum.CreatedAt.IsZero() {
		sum.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.NewInsert().
		Model(sum).
		On("CONFLICT (session_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("%w: save summary: %v", contractx.ErrUnavailable, err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr pgdriver.Error
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Field('C') == "23505"
}
