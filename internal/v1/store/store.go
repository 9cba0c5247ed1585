package store

import (
	"context"
	"fmt"
	"time"

	"github.com/RoseWrightdev/media-orchestrator/internal/v1/metrics"
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/sony/gobreaker"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store wraps the gorm connection to the relational metadata store named in
// spec.md §6. It is a mirror of live room/participant state, not the source
// of truth — internal/v1/room and internal/v1/participant are authoritative.
// Writes go through a circuit breaker (grounded on internal/v1/bus's Redis
// wrapping) so a stalled Postgres never blocks room/participant lifecycle
// operations — a tripped breaker degrades to "mirror is stale", not an outage.
type Store struct {
	db *gorm.DB
	cb *gobreaker.CircuitBreaker
}

// New opens a Postgres connection, runs migrations, and returns a ready Store.
func New(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open metadata store: %w", err)
	}
	return newWithDB(db)
}

// newWithDB builds a Store around an already-open gorm connection, grounded
// on DMRHub's db.MakeDB splitting connection setup from app wiring so tests
// can swap in an in-memory sqlite.DB in place of Postgres.
func newWithDB(db *gorm.DB) (*Store, error) {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "metadata_store",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     15 * time.Second,
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			var stateVal float64
			switch to {
			case gobreaker.StateClosed:
				stateVal = 0
			case gobreaker.StateOpen:
				stateVal = 1
			case gobreaker.StateHalfOpen:
				stateVal = 2
			}
			metrics.CircuitBreakerState.WithLabelValues("metadata_store").Set(stateVal)
		},
	})

	s := &Store{db: db, cb: cb}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate metadata store: %w", err)
	}
	return s, nil
}

// execute runs fn through the store's circuit breaker, translating a tripped
// breaker into a plain error so callers' existing error handling applies
// unchanged.
func (s *Store) execute(fn func() error) error {
	_, err := s.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if err == gobreaker.ErrOpenState {
		metrics.CircuitBreakerFailures.WithLabelValues("metadata_store").Inc()
		return fmt.Errorf("metadata store: %w", err)
	}
	return err
}

func (s *Store) migrate() error {
	m := gormigrate.New(s.db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID: "202601010000_create_rooms_and_participants",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&Room{}, &Participant{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&Room{}, &Participant{})
			},
		},
	})
	return m.Migrate()
}

// Ping verifies the connection is alive; used by the readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// CrashRecover implements spec.md §6's crash-recovery rule: on startup, mark
// every room inactive and truncate the participants mirror, since it can
// only ever be trusted to reflect a cleanly-shut-down process. Runs outside
// the circuit breaker — a fresh process with no working Postgres should fail
// fast at startup, not degrade silently.
func (s *Store) CrashRecover(ctx context.Context) error {
	if err := s.db.WithContext(ctx).Model(&Room{}).Where("1 = 1").Update("is_active", false).Error; err != nil {
		return fmt.Errorf("failed to mark rooms inactive: %w", err)
	}
	if err := s.db.WithContext(ctx).Where("1 = 1").Delete(&Participant{}).Error; err != nil {
		return fmt.Errorf("failed to truncate participants: %w", err)
	}
	return nil
}

// UpsertRoom creates or activates a room row.
func (s *Store) UpsertRoom(ctx context.Context, id, name string) error {
	now := time.Now()
	err := s.execute(func() error {
		return s.db.WithContext(ctx).Save(&Room{
			ID:        id,
			Name:      name,
			IsActive:  true,
			CreatedAt: now,
			UpdatedAt: now,
		}).Error
	})
	metrics.StoreOperationsTotal.WithLabelValues("upsert_room", statusOf(err)).Inc()
	return err
}

// SetRoomHLSURL persists (or clears, with "") the room's playlist URL.
func (s *Store) SetRoomHLSURL(ctx context.Context, id, hlsURL string) error {
	err := s.execute(func() error {
		return s.db.WithContext(ctx).Model(&Room{}).Where("id = ?", id).
			Updates(map[string]any{"hls_url": hlsURL, "updated_at": time.Now()}).Error
	})
	metrics.StoreOperationsTotal.WithLabelValues("set_room_hls_url", statusOf(err)).Inc()
	return err
}

// DeactivateRoom marks a room inactive without deleting its row, so
// GET /api/rooms/:id (an out-of-scope collaborator) can still report history.
func (s *Store) DeactivateRoom(ctx context.Context, id string) error {
	err := s.execute(func() error {
		return s.db.WithContext(ctx).Model(&Room{}).Where("id = ?", id).
			Updates(map[string]any{"is_active": false, "hls_url": "", "updated_at": time.Now()}).Error
	})
	metrics.StoreOperationsTotal.WithLabelValues("deactivate_room", statusOf(err)).Inc()
	return err
}

// UpsertParticipant mirrors a participant's live state.
func (s *Store) UpsertParticipant(ctx context.Context, p Participant) error {
	err := s.execute(func() error {
		return s.db.WithContext(ctx).Save(&p).Error
	})
	metrics.StoreOperationsTotal.WithLabelValues("upsert_participant", statusOf(err)).Inc()
	return err
}

// DeleteParticipant removes the mirror row for a disconnected participant.
func (s *Store) DeleteParticipant(ctx context.Context, id string) error {
	err := s.execute(func() error {
		return s.db.WithContext(ctx).Delete(&Participant{}, "id = ?", id).Error
	})
	metrics.StoreOperationsTotal.WithLabelValues("delete_participant", statusOf(err)).Inc()
	return err
}

// ActiveRoomsWithHLS lists rooms the store believes have a running transcoder;
// used by the periodic reconciliation job to detect orphaned segment directories.
func (s *Store) ActiveRoomsWithHLS(ctx context.Context) ([]Room, error) {
	var rooms []Room
	err := s.execute(func() error {
		return s.db.WithContext(ctx).Where("is_active = ? AND hls_url <> ''", true).Find(&rooms).Error
	})
	metrics.StoreOperationsTotal.WithLabelValues("list_active_hls_rooms", statusOf(err)).Inc()
	return rooms, err
}

func statusOf(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
