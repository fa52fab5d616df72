package handle

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/AmeliaRose802/enhanced-ado-mcp-sub011/internal/errors"
	"github.com/AmeliaRose802/enhanced-ado-mcp-sub011/internal/workitem"
)

// schemaVersion is the latest handles schema version.
const schemaVersion = 1

// SQLiteStore is the pluggable on-disk Store backend. Expiry semantics are
// identical to MemoryStore; the snapshot payload is stored as one JSON blob
// since records are opaque and never queried by field.
type SQLiteStore struct {
	db     *sql.DB
	clock  Clock
	logger *zap.Logger
}

// payload is the serialized snapshot portion of a record.
type payload struct {
	IDs   []int                      `json:"ids"`
	Items []workitem.Context         `json:"items"`
	Meta  workitem.SelectionMetadata `json:"meta"`
}

// OpenSQLite opens (creating if needed) the handle database at
// baseDir/handles.db. The baseDir parameter allows tests to use t.TempDir().
func OpenSQLite(baseDir string, clock Clock, logger *zap.Logger) (*SQLiteStore, error) {
	if clock == nil {
		clock = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	dbPath := filepath.Join(baseDir, "handles.db")
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open handle database: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	_ = os.Chmod(dbPath, 0600)

	return &SQLiteStore{db: db, clock: clock, logger: logger}, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// migrate applies schema migrations based on user_version.
func migrate(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return fmt.Errorf("failed to get user_version: %w", err)
	}

	if version < 1 {
		schema := `
		CREATE TABLE IF NOT EXISTS handles (
		  token       TEXT PRIMARY KEY,
		  payload     TEXT NOT NULL,
		  item_count  INTEGER NOT NULL,
		  created_at  INTEGER NOT NULL,
		  expires_at  INTEGER NOT NULL,
		  origin      TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_handles_expires_at
		ON handles(expires_at);
		`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("migration 1 failed: %w", err)
		}
		if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version=%d", schemaVersion)); err != nil {
			return fmt.Errorf("failed to set user_version: %w", err)
		}
	}

	return nil
}

// Put implements Store.
func (s *SQLiteStore) Put(ids []int, items []workitem.Context, meta workitem.SelectionMetadata, ttl time.Duration, origin string) (string, error) {
	if err := validateSnapshot(ids, items, meta); err != nil {
		return "", err
	}

	now := s.clock()
	token, err := NewToken(now)
	if err != nil {
		return "", errors.NewInternal(err)
	}

	body, err := json.Marshal(payload{IDs: ids, Items: items, Meta: meta})
	if err != nil {
		return "", errors.NewInternal(err)
	}

	ttl = clampTTL(ttl)
	_, err = s.db.Exec(
		`INSERT INTO handles (token, payload, item_count, created_at, expires_at, origin)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		token, string(body), len(ids), now.Unix(), now.Add(ttl).Unix(), origin,
	)
	if err != nil {
		return "", errors.NewInternal(err)
	}

	s.logger.Debug("stored query handle",
		zap.String("token", token),
		zap.Int("items", len(ids)))
	return token, nil
}

// Get implements Store.
func (s *SQLiteStore) Get(token string) (*Record, error) {
	var (
		body                 string
		createdAt, expiresAt int64
		origin               sql.NullString
	)
	err := s.db.QueryRow(
		`SELECT payload, created_at, expires_at, origin FROM handles WHERE token = ?`,
		token,
	).Scan(&body, &createdAt, &expiresAt, &origin)
	if err == sql.ErrNoRows {
		return nil, errors.NewHandleNotFound(token)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	rec := &Record{
		Token:     token,
		CreatedAt: time.Unix(createdAt, 0),
		ExpiresAt: time.Unix(expiresAt, 0),
		TTL:       time.Duration(expiresAt-createdAt) * time.Second,
		Origin:    origin.String,
	}
	if rec.Expired(s.clock()) {
		s.Delete(token)
		return nil, errors.NewHandleExpired(token)
	}

	var p payload
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		return nil, errors.NewInternal(err)
	}
	rec.IDs = p.IDs
	rec.Items = p.Items
	rec.Meta = p.Meta
	return rec, nil
}

// Delete implements Store.
func (s *SQLiteStore) Delete(token string) {
	_, _ = s.db.Exec(`DELETE FROM handles WHERE token = ?`, token)
}

// Sweep implements Store.
func (s *SQLiteStore) Sweep() int {
	res, err := s.db.Exec(`DELETE FROM handles WHERE expires_at <= ?`, s.clock().Unix())
	if err != nil {
		s.logger.Warn("handle sweep failed", zap.Error(err))
		return 0
	}
	purged, _ := res.RowsAffected()
	return int(purged)
}

// List implements Store.
func (s *SQLiteStore) List() []Summary {
	rows, err := s.db.Query(
		`SELECT token, item_count, created_at, expires_at, origin
		 FROM handles WHERE expires_at > ? ORDER BY created_at`,
		s.clock().Unix(),
	)
	if err != nil {
		s.logger.Warn("handle list failed", zap.Error(err))
		return nil
	}
	defer rows.Close()

	var summaries []Summary
	for rows.Next() {
		var (
			sum                  Summary
			createdAt, expiresAt int64
			origin               sql.NullString
		)
		if err := rows.Scan(&sum.Token, &sum.Count, &createdAt, &expiresAt, &origin); err != nil {
			continue
		}
		sum.CreatedAt = time.Unix(createdAt, 0)
		sum.ExpiresAt = time.Unix(expiresAt, 0)
		sum.Origin = origin.String
		summaries = append(summaries, sum)
	}
	return summaries
}

// Len implements Store.
func (s *SQLiteStore) Len() int {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM handles`).Scan(&n); err != nil {
		return 0
	}
	return n
}
