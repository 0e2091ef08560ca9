// Package sqlite provides a SQLite-backed game store.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/tatianab/castle-adventure/internal/models"
	"github.com/tatianab/castle-adventure/internal/storage"
	"github.com/tatianab/castle-adventure/internal/storage/sqlite/migrations"
)

// Store persists game states and ending unlocks in SQLite.
type Store struct {
	sqlDB *sql.DB
}

var _ storage.Store = (*Store)(nil)

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite store and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

func applyMigrations(sqlDB *sql.DB) error {
	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return err
	}
	driver, err := migratesqlite.WithInstance(sqlDB, &migratesqlite.Config{})
	if err != nil {
		return err
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return err
	}
	// m.Close would also close sqlDB, which the store keeps using.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

const stateColumns = `id, owner_kind, owner_id, current_scene, inventory, visited_scenes, flags,
	choices_made, deaths, items_collected, is_complete, ending_reached, started_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanState(row rowScanner) (*models.GameState, error) {
	var (
		st                        models.GameState
		ownerKind, ownerID        string
		inventory, visited, flags string
		complete                  int
		endingReached             sql.NullString
		startedAt, updatedAt      int64
	)
	err := row.Scan(
		&st.ID, &ownerKind, &ownerID, &st.CurrentScene, &inventory, &visited, &flags,
		&st.ChoicesMade, &st.Deaths, &st.ItemsCollected, &complete, &endingReached,
		&startedAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(inventory), &st.Inventory); err != nil {
		return nil, fmt.Errorf("decode inventory: %w", err)
	}
	if err := json.Unmarshal([]byte(visited), &st.Visited); err != nil {
		return nil, fmt.Errorf("decode visited scenes: %w", err)
	}
	if err := json.Unmarshal([]byte(flags), &st.Flags); err != nil {
		return nil, fmt.Errorf("decode flags: %w", err)
	}
	st.Owner = identityFromColumns(ownerKind, ownerID)
	st.IsComplete = complete != 0
	st.EndingReached = endingReached.String
	st.StartedAt = fromMillis(startedAt)
	st.UpdatedAt = fromMillis(updatedAt)
	return &st, nil
}

func identityFromColumns(kind, id string) models.Identity {
	if models.IdentityKind(kind) == models.KindUser {
		return models.UserIdentity(id)
	}
	return models.SessionIdentity(id)
}

type encodedState struct {
	inventory, visited, flags string
}

func encodeState(st *models.GameState) (encodedState, error) {
	inv := st.Inventory
	if inv == nil {
		inv = []string{}
	}
	vis := st.Visited
	if vis == nil {
		vis = []string{}
	}
	invJSON, err := json.Marshal(inv)
	if err != nil {
		return encodedState{}, fmt.Errorf("encode inventory: %w", err)
	}
	visJSON, err := json.Marshal(vis)
	if err != nil {
		return encodedState{}, fmt.Errorf("encode visited scenes: %w", err)
	}
	flagsJSON, err := json.Marshal(st.Flags)
	if err != nil {
		return encodedState{}, fmt.Errorf("encode flags: %w", err)
	}
	return encodedState{string(invJSON), string(visJSON), string(flagsJSON)}, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return nil
}

// ActiveState returns the owner's incomplete game.
func (s *Store) ActiveState(ctx context.Context, owner models.Identity) (*models.GameState, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT `+stateColumns+`
		   FROM game_states
		  WHERE owner_kind = ? AND owner_id = ? AND is_complete = 0`,
		string(owner.Kind()), owner.Key(),
	)
	st, err := scanState(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get active game state: %w", err)
	}
	return st, nil
}

// LastCompleted returns the owner's most recently finished game.
func (s *Store) LastCompleted(ctx context.Context, owner models.Identity) (*models.GameState, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT `+stateColumns+`
		   FROM game_states
		  WHERE owner_kind = ? AND owner_id = ? AND is_complete = 1
		  ORDER BY updated_at DESC, rowid DESC
		  LIMIT 1`,
		string(owner.Kind()), owner.Key(),
	)
	st, err := scanState(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get completed game state: %w", err)
	}
	return st, nil
}

// CreateState inserts a new game.
func (s *Store) CreateState(ctx context.Context, st *models.GameState) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if err := st.Owner.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(st.ID) == "" {
		return fmt.Errorf("game state id is required")
	}
	return insertState(ctx, s.sqlDB, st)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertState(ctx context.Context, db execer, st *models.GameState) error {
	enc, err := encodeState(st)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO game_states (`+stateColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		st.ID, string(st.Owner.Kind()), st.Owner.Key(), st.CurrentScene,
		enc.inventory, enc.visited, enc.flags,
		st.ChoicesMade, st.Deaths, st.ItemsCollected, boolInt(st.IsComplete), nullable(st.EndingReached),
		toMillis(st.StartedAt), toMillis(st.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("create game state: %w", err)
	}
	return nil
}

// SaveState replaces every mutable column of a stored game.
func (s *Store) SaveState(ctx context.Context, st *models.GameState) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	enc, err := encodeState(st)
	if err != nil {
		return err
	}
	res, err := s.sqlDB.ExecContext(ctx,
		`UPDATE game_states
		    SET current_scene = ?, inventory = ?, visited_scenes = ?, flags = ?,
		        choices_made = ?, deaths = ?, items_collected = ?,
		        is_complete = ?, ending_reached = ?, updated_at = ?
		  WHERE id = ?`,
		st.CurrentScene, enc.inventory, enc.visited, enc.flags,
		st.ChoicesMade, st.Deaths, st.ItemsCollected,
		boolInt(st.IsComplete), nullable(st.EndingReached), toMillis(st.UpdatedAt),
		st.ID,
	)
	if err != nil {
		return fmt.Errorf("save game state: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save game state: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// DeleteState removes a game.
func (s *Store) DeleteState(ctx context.Context, id string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	res, err := s.sqlDB.ExecContext(ctx, `DELETE FROM game_states WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete game state: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete game state: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ReplaceState swaps the owner's active game for next inside a transaction.
func (s *Store) ReplaceState(ctx context.Context, oldID string, next *models.GameState) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if err := next.Owner.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(next.ID) == "" {
		return fmt.Errorf("game state id is required")
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`DELETE FROM game_states
		  WHERE id = ? AND owner_kind = ? AND owner_id = ? AND is_complete = 0`,
		oldID, string(next.Owner.Kind()), next.Owner.Key(),
	)
	if err != nil {
		return fmt.Errorf("delete game state: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete game state: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	if err := insertState(ctx, tx, next); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace: %w", err)
	}
	return nil
}

// RecordUnlock stores an unlock unless the owner already has it.
func (s *Store) RecordUnlock(ctx context.Context, owner models.Identity, endingID string, at time.Time) (bool, error) {
	if err := s.ready(ctx); err != nil {
		return false, err
	}
	if err := owner.Validate(); err != nil {
		return false, err
	}
	res, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO ending_unlocks (owner_kind, owner_id, ending_id, unlocked_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (owner_kind, owner_id, ending_id) DO NOTHING`,
		string(owner.Kind()), owner.Key(), endingID, toMillis(at),
	)
	if err != nil {
		return false, fmt.Errorf("record ending unlock: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record ending unlock: %w", err)
	}
	return n == 1, nil
}

// UnlockedEndings lists the owner's unlocks, oldest first.
func (s *Store) UnlockedEndings(ctx context.Context, owner models.Identity) ([]models.EndingUnlock, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT ending_id, unlocked_at
		   FROM ending_unlocks
		  WHERE owner_kind = ? AND owner_id = ?
		  ORDER BY unlocked_at, ending_id`,
		string(owner.Kind()), owner.Key(),
	)
	if err != nil {
		return nil, fmt.Errorf("list ending unlocks: %w", err)
	}
	defer rows.Close()

	var out []models.EndingUnlock
	for rows.Next() {
		u := models.EndingUnlock{Owner: owner}
		var at int64
		if err := rows.Scan(&u.EndingID, &at); err != nil {
			return nil, fmt.Errorf("scan ending unlock: %w", err)
		}
		u.UnlockedAt = fromMillis(at)
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list ending unlocks: %w", err)
	}
	return out, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
