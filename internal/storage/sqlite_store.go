package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"math"
	"net/url"

	"docregistry/go-backend/internal/registry"
	"docregistry/go-backend/pkg/models"

	"github.com/ethereum/go-ethereum/common"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema versions:
// 1 - documents table keyed by hash with a unique insertion position
const currentSchemaVersion = 1

var ErrCorruptSnapshot = errors.New("registry snapshot is corrupt")

// SQLiteStore keeps the registry in SQLite. Writes go through a single
// connection; reads use a separate read-only pool so they never queue
// behind a commit.
type SQLiteStore struct {
	writer *sql.DB
	reader *sql.DB
}

func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("sqlite store: path is required")
	}
	writer, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := writer.Ping(); err != nil {
		writer.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	writer.SetMaxOpenConns(1)
	writer.SetMaxIdleConns(1)

	if err := applyPragmas(writer); err != nil {
		writer.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	if err := applySchema(writer); err != nil {
		writer.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	reader, err := sql.Open("sqlite3", readOnlyDSN(path))
	if err != nil {
		writer.Close()
		return nil, fmt.Errorf("open read pool: %w", err)
	}
	if err := reader.Ping(); err != nil {
		reader.Close()
		writer.Close()
		return nil, fmt.Errorf("connect read pool: %w", err)
	}
	return &SQLiteStore{writer: writer, reader: reader}, nil
}

func readOnlyDSN(path string) string {
	u := url.URL{Scheme: "file", Opaque: path}
	q := url.Values{}
	q.Set("mode", "ro")
	q.Set("_busy_timeout", "5000")
	u.RawQuery = q.Encode()
	return u.String()
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported %d", version, currentSchemaVersion)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// Insert writes records in one transaction. The existence check runs inside
// the transaction, and the primary key backs it up.
func (s *SQLiteStore) Insert(ctx context.Context, records []models.DocumentRecord) (uint64, error) {
	tx, err := s.writer.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("insert documents: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var next int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(position) + 1, 0) FROM documents`).Scan(&next); err != nil {
		return 0, fmt.Errorf("insert documents: next position: %w", err)
	}
	first := uint64(next)

	for i, rec := range records {
		if rec.Timestamp > registry.MaxTimestamp {
			return 0, fmt.Errorf("insert documents: %w: %d", registry.ErrTimestampOutOfRange, rec.Timestamp)
		}
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM documents WHERE hash = ?`, rec.Hash.Hex()).Scan(&exists)
		switch {
		case err == nil:
			return 0, &registry.DocumentAlreadyExistsError{Hash: rec.Hash}
		case !errors.Is(err, sql.ErrNoRows):
			return 0, fmt.Errorf("insert documents: check %s: %w", rec.Hash.Hex(), err)
		}
		for _, prev := range records[:i] {
			if prev.Hash == rec.Hash {
				return 0, &registry.DocumentAlreadyExistsError{Hash: rec.Hash}
			}
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO documents (hash, position, signer, timestamp, signature)
			VALUES (?, ?, ?, ?, ?)
		`,
			rec.Hash.Hex(),
			next+int64(i),
			rec.Signer.Hex(),
			int64(rec.Timestamp),
			[]byte(rec.Signature),
		)
		if err != nil {
			return 0, fmt.Errorf("insert documents: %s: %w", rec.Hash.Hex(), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("insert documents: commit: %w", err)
	}
	return first, nil
}

func (s *SQLiteStore) Has(ctx context.Context, hash common.Hash) (bool, error) {
	var exists int
	err := s.reader.QueryRowContext(ctx, `SELECT 1 FROM documents WHERE hash = ?`, hash.Hex()).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("has document: %w", err)
	}
	return true, nil
}

func (s *SQLiteStore) Get(ctx context.Context, hash common.Hash) (models.DocumentRecord, bool, error) {
	var (
		signer    string
		timestamp int64
		signature []byte
	)
	err := s.reader.QueryRowContext(ctx, `
		SELECT signer, timestamp, signature FROM documents WHERE hash = ?
	`, hash.Hex()).Scan(&signer, &timestamp, &signature)
	if errors.Is(err, sql.ErrNoRows) {
		return models.DocumentRecord{}, false, nil
	}
	if err != nil {
		return models.DocumentRecord{}, false, fmt.Errorf("get document: %w", err)
	}
	if !common.IsHexAddress(signer) {
		return models.DocumentRecord{}, false, fmt.Errorf("get document: stored signer %q is not an address", signer)
	}
	rec := models.DocumentRecord{
		Hash:      hash,
		Signer:    common.HexToAddress(signer),
		Timestamp: uint64(timestamp),
	}
	if len(signature) > 0 {
		rec.Signature = append(models.Signature(nil), signature...)
	}
	return rec, true, nil
}

func (s *SQLiteStore) Count(ctx context.Context) (uint64, error) {
	var n int64
	if err := s.reader.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return uint64(n), nil
}

func (s *SQLiteStore) HashAt(ctx context.Context, index uint64) (common.Hash, bool, error) {
	if index > math.MaxInt64 {
		return common.Hash{}, false, nil
	}
	var text string
	err := s.reader.QueryRowContext(ctx, `SELECT hash FROM documents WHERE position = ?`, int64(index)).Scan(&text)
	if errors.Is(err, sql.ErrNoRows) {
		return common.Hash{}, false, nil
	}
	if err != nil {
		return common.Hash{}, false, fmt.Errorf("hash at %d: %w", index, err)
	}
	return common.HexToHash(text), true, nil
}

func (s *SQLiteStore) Close() error {
	var errs []error
	if s.reader != nil {
		errs = append(errs, s.reader.Close())
	}
	if s.writer != nil {
		errs = append(errs, s.writer.Close())
	}
	return errors.Join(errs...)
}
