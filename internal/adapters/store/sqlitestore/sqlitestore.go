// Package sqlitestore keeps room documents in an embedded SQLite database.
// Documents are stored as JSON; a side table indexes membership for
// QueryByMember and is rewritten in the same transaction as the document.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/dkeye/Poker/internal/adapters/store/fanout"
	"github.com/dkeye/Poker/internal/core"
	"github.com/dkeye/Poker/internal/domain"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

type Store struct {
	db     *sql.DB
	mu     sync.Mutex
	broker *fanout.Broker
}

var _ core.DocumentStore = (*Store)(nil)

func New(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// one connection: pragmas stick and writers never see SQLITE_BUSY from
	// this process
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, err
		}
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}

	log.Info().Str("module", "store.sqlite").Str("path", dbPath).Msg("database initialized")
	return &Store{db: db, broker: fanout.NewBroker()}, nil
}

func createTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS rooms (
		id TEXT PRIMARY KEY,
		doc TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS room_members (
		room_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		PRIMARY KEY (room_id, user_id),
		FOREIGN KEY (room_id) REFERENCES rooms(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_room_members_user_id ON room_members(user_id);
	`

	_, err := db.Exec(schema)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

func transient(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", domain.ErrTransient, err)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func loadDoc(ctx context.Context, q queryer, id domain.RoomID) ([]byte, error) {
	var raw string
	err := q.QueryRowContext(ctx, "SELECT doc FROM rooms WHERE id = ?", string(id)).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, transient(err)
	}
	return []byte(raw), nil
}

func (s *Store) Get(ctx context.Context, id domain.RoomID) (*domain.Room, error) {
	raw, err := loadDoc(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	return core.UnmarshalRoom(raw)
}

func (s *Store) Put(ctx context.Context, room *domain.Room) error {
	if room == nil || room.RoomID == "" {
		return domain.ErrInvalidArgument
	}
	raw, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("encode room: %w", err)
	}
	decoded, err := core.UnmarshalRoom(raw)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO rooms (id, doc) VALUES (?, ?)
			ON CONFLICT(id) DO UPDATE SET doc = excluded.doc, updated_at = CURRENT_TIMESTAMP`,
			string(room.RoomID), string(raw))
		if err != nil {
			return err
		}
		return writeMembers(ctx, tx, room.RoomID, decoded.MemberIDs())
	})
	if err != nil {
		return transient(err)
	}
	s.broker.Publish(core.Snapshot{RoomID: room.RoomID, Room: decoded})
	return nil
}

func (s *Store) Update(ctx context.Context, id domain.RoomID, patch core.Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var room *domain.Room
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		raw, err := loadDoc(ctx, tx, id)
		if err != nil {
			return err
		}
		out, r, err := core.ApplyJSON(raw, patch)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE rooms SET doc = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
			string(out), string(id)); err != nil {
			return transient(err)
		}
		if err := writeMembers(ctx, tx, id, r.MemberIDs()); err != nil {
			return transient(err)
		}
		room = r
		return nil
	})
	if err != nil {
		return err
	}
	s.broker.Publish(core.Snapshot{RoomID: id, Room: room})
	return nil
}

func (s *Store) Delete(ctx context.Context, id domain.RoomID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM room_members WHERE room_id = ?", string(id)); err != nil {
			return transient(err)
		}
		res, err := tx.ExecContext(ctx, "DELETE FROM rooms WHERE id = ?", string(id))
		if err != nil {
			return transient(err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.broker.Publish(core.Snapshot{RoomID: id})
	return nil
}

func (s *Store) Subscribe(ctx context.Context, id domain.RoomID) (core.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	initial := core.Snapshot{RoomID: id}
	raw, err := loadDoc(ctx, s.db, id)
	switch {
	case errors.Is(err, domain.ErrNotFound):
	case err != nil:
		return nil, err
	default:
		room, err := core.UnmarshalRoom(raw)
		if err != nil {
			return nil, err
		}
		initial.Room = room
	}
	return s.broker.Subscribe(id, initial), nil
}

func (s *Store) QueryByMember(ctx context.Context, uid domain.UserID) ([]*domain.Room, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.doc FROM rooms r
		JOIN room_members m ON m.room_id = r.id
		WHERE m.user_id = ?
		ORDER BY r.updated_at DESC`, string(uid))
	if err != nil {
		return nil, transient(err)
	}
	defer rows.Close()

	var out []*domain.Room
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, transient(err)
		}
		room, err := core.UnmarshalRoom([]byte(raw))
		if err != nil {
			return nil, err
		}
		out = append(out, room)
	}
	return out, transient(rows.Err())
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return transient(err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return transient(err)
	}
	return nil
}

func writeMembers(ctx context.Context, tx *sql.Tx, id domain.RoomID, members []domain.UserID) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM room_members WHERE room_id = ?", string(id)); err != nil {
		return err
	}
	for _, uid := range members {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO room_members (room_id, user_id) VALUES (?, ?)",
			string(id), string(uid)); err != nil {
			return err
		}
	}
	return nil
}
