package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/lib/pq" // PostgreSQL driver, array support and error codes

	"github.com/tabanok/progression-engine/pkg/domain"
	"github.com/tabanok/progression-engine/pkg/errors"
)

// Schema creates the tables used by PostgresProfileStore.
const Schema = `
CREATE TABLE IF NOT EXISTS progression_profiles (
	user_id VARCHAR(100) PRIMARY KEY,
	points BIGINT NOT NULL DEFAULT 0,
	level INT NOT NULL DEFAULT 1,
	experience BIGINT NOT NULL DEFAULT 0,
	current_streak INT NOT NULL DEFAULT 0,
	longest_streak INT NOT NULL DEFAULT 0,
	last_activity_date DATE NULL,
	grace_period_used BOOLEAN NOT NULL DEFAULT false,
	points_reached_at TIMESTAMPTZ NULL,
	activity_log JSONB NOT NULL DEFAULT '[]',
	badge_ids TEXT[] NOT NULL DEFAULT '{}',
	achievement_progress JSONB NOT NULL DEFAULT '{}',
	mission_progress JSONB NOT NULL DEFAULT '{}',
	event_participation JSONB NOT NULL DEFAULT '{}',
	season_rewards JSONB NOT NULL DEFAULT '{}',
	season_tallies JSONB NOT NULL DEFAULT '{}',
	period_tallies JSONB NOT NULL DEFAULT '{}',
	version BIGINT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	CONSTRAINT check_points_non_negative CHECK (points >= 0),
	CONSTRAINT check_level_positive CHECK (level >= 1)
);

ALTER TABLE progression_profiles ADD COLUMN IF NOT EXISTS season_tallies JSONB NOT NULL DEFAULT '{}';
ALTER TABLE progression_profiles ADD COLUMN IF NOT EXISTS period_tallies JSONB NOT NULL DEFAULT '{}';

CREATE INDEX IF NOT EXISTS idx_progression_profiles_points
	ON progression_profiles(points DESC, points_reached_at ASC);

CREATE TABLE IF NOT EXISTS processed_activity_events (
	user_id VARCHAR(100) NOT NULL,
	event_id VARCHAR(200) NOT NULL,
	processed_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (user_id, event_id)
);
`

const profileColumns = `
	user_id, points, level, experience, current_streak, longest_streak,
	last_activity_date, grace_period_used, points_reached_at,
	activity_log, badge_ids, achievement_progress, mission_progress,
	event_participation, season_rewards, season_tallies, period_tallies,
	version, created_at, updated_at
`

// lock_timeout bounds how long a writer waits on another writer's row lock
// before the attempt surfaces as a concurrency conflict.
const defaultLockTimeout = 5 * time.Second

// PostgreSQL error codes treated as retryable concurrency conflicts.
const (
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
	pqLockNotAvailable     = "55P03"
)

// EnsureSchema creates the profile tables if they do not exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return errors.ErrPersistenceFailure("ensure schema", err)
	}
	return nil
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PostgresProfileStore implements ProfileStore using PostgreSQL.
type PostgresProfileStore struct {
	db          *sql.DB
	lockTimeout time.Duration
}

// NewPostgresProfileStore creates a new PostgreSQL-backed profile store.
func NewPostgresProfileStore(db *sql.DB) *PostgresProfileStore {
	return &PostgresProfileStore{
		db:          db,
		lockTimeout: defaultLockTimeout,
	}
}

// GetProfile retrieves a user's profile, or nil if none exists.
func (r *PostgresProfileStore) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	return getProfile(ctx, r.db, userID, false)
}

// CreateProfile inserts a zeroed profile; existing profiles are left untouched.
func (r *PostgresProfileStore) CreateProfile(ctx context.Context, profile *domain.Profile) error {
	return createProfile(ctx, r.db, profile)
}

// ListProfiles pages through profiles ordered by user_id.
func (r *PostgresProfileStore) ListProfiles(ctx context.Context, afterUserID string, limit int) ([]*domain.Profile, error) {
	query := `SELECT ` + profileColumns + `
		FROM progression_profiles
		WHERE user_id > $1
		ORDER BY user_id ASC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, afterUserID, limit)
	if err != nil {
		return nil, classifyError("list profiles", "", err)
	}
	defer func() { _ = rows.Close() }()

	profiles := make([]*domain.Profile, 0, limit)
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, errors.ErrPersistenceFailure("scan profile", err)
		}
		profiles = append(profiles, p)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.ErrPersistenceFailure("iterate profiles", err)
	}

	return profiles, nil
}

// BeginTx starts a transaction with a bounded lock wait.
func (r *PostgresProfileStore) BeginTx(ctx context.Context) (TxProfileStore, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, classifyError("begin transaction", "", err)
	}

	// SET LOCAL does not accept bind parameters.
	// #nosec G201
	stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", r.lockTimeout.Milliseconds())
	if _, err := tx.ExecContext(ctx, stmt); err != nil {
		_ = tx.Rollback()
		return nil, classifyError("set lock timeout", "", err)
	}

	return &PostgresTxProfileStore{tx: tx}, nil
}

// PostgresTxProfileStore implements TxProfileStore within a PostgreSQL transaction.
type PostgresTxProfileStore struct {
	tx *sql.Tx
}

// GetProfileForUpdate retrieves the profile with SELECT ... FOR UPDATE (row-level lock).
func (r *PostgresTxProfileStore) GetProfileForUpdate(ctx context.Context, userID string) (*domain.Profile, error) {
	return getProfile(ctx, r.tx, userID, true)
}

// CreateProfile inserts a zeroed profile inside the transaction.
func (r *PostgresTxProfileStore) CreateProfile(ctx context.Context, profile *domain.Profile) error {
	return createProfile(ctx, r.tx, profile)
}

// IsEventProcessed reports whether (userID, eventID) was already applied.
func (r *PostgresTxProfileStore) IsEventProcessed(ctx context.Context, userID, eventID string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM processed_activity_events
			WHERE user_id = $1 AND event_id = $2
		)
	`

	var exists bool
	if err := r.tx.QueryRowContext(ctx, query, userID, eventID).Scan(&exists); err != nil {
		return false, classifyError("check processed event", userID, err)
	}

	return exists, nil
}

// SaveProfile writes the profile with an optimistic version check.
func (r *PostgresTxProfileStore) SaveProfile(ctx context.Context, profile *domain.Profile) error {
	cols, err := encodeProfile(profile)
	if err != nil {
		return errors.ErrPersistenceFailure("encode profile", err)
	}

	query := `
		UPDATE progression_profiles SET
			points = $2,
			level = $3,
			experience = $4,
			current_streak = $5,
			longest_streak = $6,
			last_activity_date = $7,
			grace_period_used = $8,
			points_reached_at = $9,
			activity_log = $10,
			badge_ids = $11,
			achievement_progress = $12,
			mission_progress = $13,
			event_participation = $14,
			season_rewards = $15,
			season_tallies = $16,
			period_tallies = $17,
			version = version + 1,
			updated_at = $18
		WHERE user_id = $1 AND version = $19
	`

	updatedAt := time.Now().UTC()
	result, err := r.tx.ExecContext(ctx, query,
		profile.UserID,
		profile.Points,
		profile.Level,
		profile.Experience,
		profile.CurrentStreak,
		profile.LongestStreak,
		dateParam(profile.LastActivityDate),
		profile.GracePeriodUsed,
		profile.PointsReachedAt,
		cols.activityLog,
		pq.StringArray(cols.badgeIDs),
		cols.achievementProgress,
		cols.missionProgress,
		cols.eventParticipation,
		cols.seasonRewards,
		cols.seasonTallies,
		cols.periodTallies,
		updatedAt,
		profile.Version,
	)
	if err != nil {
		return classifyError("save profile", profile.UserID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.ErrPersistenceFailure("save profile", err)
	}

	if rows == 0 {
		return errors.ErrConcurrencyConflict(profile.UserID,
			fmt.Errorf("profile version %d is stale", profile.Version))
	}

	profile.Version++
	profile.UpdatedAt = updatedAt

	return nil
}

// MarkEventProcessed records the idempotence key for an applied activity.
func (r *PostgresTxProfileStore) MarkEventProcessed(ctx context.Context, userID, eventID string) error {
	query := `
		INSERT INTO processed_activity_events (user_id, event_id)
		VALUES ($1, $2)
		ON CONFLICT (user_id, event_id) DO NOTHING
	`

	if _, err := r.tx.ExecContext(ctx, query, userID, eventID); err != nil {
		return classifyError("mark event processed", userID, err)
	}

	return nil
}

// Commit commits the transaction.
func (r *PostgresTxProfileStore) Commit() error {
	if err := r.tx.Commit(); err != nil {
		return classifyError("commit transaction", "", err)
	}
	return nil
}

// Rollback rolls back the transaction.
func (r *PostgresTxProfileStore) Rollback() error {
	if err := r.tx.Rollback(); err != nil && !stderrors.Is(err, sql.ErrTxDone) {
		return errors.ErrPersistenceFailure("rollback transaction", err)
	}
	return nil
}

func getProfile(ctx context.Context, q querier, userID string, forUpdate bool) (*domain.Profile, error) {
	query := `SELECT ` + profileColumns + `
		FROM progression_profiles
		WHERE user_id = $1
	`
	op := "get profile"
	if forUpdate {
		query += " FOR UPDATE"
		op = "get profile for update"
	}

	rows, err := q.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, classifyError(op, userID, err)
	}
	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, classifyError(op, userID, err)
		}
		return nil, nil // No profile exists (lazy initialization)
	}

	p, err := scanProfile(rows)
	if err != nil {
		return nil, errors.ErrPersistenceFailure(op, err)
	}

	return p, nil
}

func createProfile(ctx context.Context, q querier, profile *domain.Profile) error {
	cols, err := encodeProfile(profile)
	if err != nil {
		return errors.ErrPersistenceFailure("encode profile", err)
	}

	query := `
		INSERT INTO progression_profiles (
			user_id, points, level, experience, current_streak, longest_streak,
			last_activity_date, grace_period_used, points_reached_at,
			activity_log, badge_ids, achievement_progress, mission_progress,
			event_participation, season_rewards, season_tallies, period_tallies,
			version, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, 0, $18, $18
		)
		ON CONFLICT (user_id) DO NOTHING
	`

	createdAt := profile.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = q.ExecContext(ctx, query,
		profile.UserID,
		profile.Points,
		profile.Level,
		profile.Experience,
		profile.CurrentStreak,
		profile.LongestStreak,
		dateParam(profile.LastActivityDate),
		profile.GracePeriodUsed,
		profile.PointsReachedAt,
		cols.activityLog,
		pq.StringArray(cols.badgeIDs),
		cols.achievementProgress,
		cols.missionProgress,
		cols.eventParticipation,
		cols.seasonRewards,
		cols.seasonTallies,
		cols.periodTallies,
		createdAt,
	)
	if err != nil {
		return classifyError("create profile", profile.UserID, err)
	}

	return nil
}

// encodedColumns holds the JSONB payloads of a profile.
// JSON is sent as text: lib/pq encodes []byte parameters as bytea.
type encodedColumns struct {
	activityLog         string
	badgeIDs            []string
	achievementProgress string
	missionProgress     string
	eventParticipation  string
	seasonRewards       string
	seasonTallies       string
	periodTallies       string
}

func encodeProfile(p *domain.Profile) (*encodedColumns, error) {
	c := p.Clone()
	c.EnsureMaps()

	var cols encodedColumns

	for name, field := range map[string]struct {
		src any
		dst *string
	}{
		"activity_log":         {c.ActivityLog, &cols.activityLog},
		"achievement_progress": {c.AchievementProgress, &cols.achievementProgress},
		"mission_progress":     {c.MissionProgress, &cols.missionProgress},
		"event_participation":  {c.EventParticipation, &cols.eventParticipation},
		"season_rewards":       {c.SeasonRewards, &cols.seasonRewards},
		"season_tallies":       {c.SeasonTallies, &cols.seasonTallies},
		"period_tallies":       {c.PeriodTallies, &cols.periodTallies},
	} {
		data, err := json.Marshal(field.src)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		*field.dst = string(data)
	}

	cols.badgeIDs = c.BadgeIDs

	return &cols, nil
}

func scanProfile(rows *sql.Rows) (*domain.Profile, error) {
	var (
		p                   domain.Profile
		badgeIDs            pq.StringArray
		activityLog         []byte
		achievementProgress []byte
		missionProgress     []byte
		eventParticipation  []byte
		seasonRewards       []byte
		seasonTallies       []byte
		periodTallies       []byte
	)

	err := rows.Scan(
		&p.UserID,
		&p.Points,
		&p.Level,
		&p.Experience,
		&p.CurrentStreak,
		&p.LongestStreak,
		&p.LastActivityDate,
		&p.GracePeriodUsed,
		&p.PointsReachedAt,
		&activityLog,
		&badgeIDs,
		&achievementProgress,
		&missionProgress,
		&eventParticipation,
		&seasonRewards,
		&seasonTallies,
		&periodTallies,
		&p.Version,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.BadgeIDs = []string(badgeIDs)

	for name, field := range map[string]struct {
		data []byte
		dst  any
	}{
		"activity_log":         {activityLog, &p.ActivityLog},
		"achievement_progress": {achievementProgress, &p.AchievementProgress},
		"mission_progress":     {missionProgress, &p.MissionProgress},
		"event_participation":  {eventParticipation, &p.EventParticipation},
		"season_rewards":       {seasonRewards, &p.SeasonRewards},
		"season_tallies":       {seasonTallies, &p.SeasonTallies},
		"period_tallies":       {periodTallies, &p.PeriodTallies},
	} {
		if len(field.data) == 0 {
			continue
		}
		if err := json.Unmarshal(field.data, field.dst); err != nil {
			return nil, fmt.Errorf("decode %s: %w", name, err)
		}
	}

	// DATE columns come back without a fixed location.
	if p.LastActivityDate != nil {
		d := time.Date(p.LastActivityDate.Year(), p.LastActivityDate.Month(), p.LastActivityDate.Day(), 0, 0, 0, 0, time.UTC)
		p.LastActivityDate = &d
	}

	p.EnsureMaps()

	return &p, nil
}

// dateParam formats a UTC calendar date so the DATE column never depends on the
// session time zone.
func dateParam(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format("2006-01-02")
}

// classifyError maps lock contention and serialization failures to
// CONCURRENCY_CONFLICT and everything else to PERSISTENCE_FAILURE.
func classifyError(op, userID string, err error) error {
	var pqErr *pq.Error
	if stderrors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case pqSerializationFailure, pqDeadlockDetected, pqLockNotAvailable:
			return errors.ErrConcurrencyConflict(userID, err)
		}
	}
	return errors.ErrPersistenceFailure(op, err)
}
