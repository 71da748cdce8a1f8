package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"apidoc/internal/model"
)

const driverName = "sqlite"

type Store struct {
	path string
	db   *sql.DB
	mu   sync.Mutex
}

func Open(path string) (*Store, error) {
	cleanPath := strings.TrimSpace(path)
	if cleanPath == "" {
		return nil, fmt.Errorf("history path must not be empty")
	}
	if info, err := os.Stat(cleanPath); err == nil && info.IsDir() {
		return nil, fmt.Errorf("history path %q is a directory, expected file", cleanPath)
	}

	dir := filepath.Dir(cleanPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history directory %q: %w", dir, err)
		}
	}

	// busy_timeout + WAL reduce lock conflicts during watch-mode churn.
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(2000)&_pragma=journal_mode(WAL)", cleanPath)
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite history %q: %w", cleanPath, err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite history %q: %w", cleanPath, err)
	}
	if err := EnsureSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize sqlite schema %q: %w", cleanPath, err)
	}

	return &Store{path: cleanPath, db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Summarize derives a snapshot from a post-processed system.
func Summarize(sys *model.System, duration time.Duration) Snapshot {
	snap := Snapshot{
		SchemaVersion: SchemaVersion,
		BuildID:       uuid.NewString(),
		Timestamp:     time.Now().UTC(),
		DurationMS:    duration.Milliseconds(),
	}
	for _, d := range sys.All() {
		switch {
		case d.Kind == model.KindPackage:
			snap.PackageCount++
		case d.Kind == model.KindModule:
			snap.ModuleCount++
		case d.Kind.IsClassLike():
			snap.ClassCount++
		case d.Kind.IsCallable():
			snap.FunctionCount++
		case d.Kind.IsAttribute():
			snap.AttributeCount++
		}
		if d.ParseError {
			snap.ParseErrorCount++
		}
	}
	for _, n := range sys.WarningCount {
		snap.WarningCount += n
	}
	return snap
}

func (s *Store) SaveSnapshot(snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if snap.BuildID == "" {
		snap.BuildID = uuid.NewString()
	}
	if snap.Timestamp.IsZero() {
		snap.Timestamp = time.Now().UTC()
	}
	if snap.SchemaVersion == 0 {
		snap.SchemaVersion = SchemaVersion
	}
	if snap.SchemaVersion != SchemaVersion {
		return fmt.Errorf("unsupported snapshot schema version %d", snap.SchemaVersion)
	}

	_, err := s.db.Exec(`
INSERT INTO builds (
  build_id, schema_version, ts_utc, package_count, module_count, class_count,
  function_count, attribute_count, parse_error_count, warning_count, duration_ms
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.BuildID, snap.SchemaVersion, snap.Timestamp.UTC().Format(time.RFC3339Nano),
		snap.PackageCount, snap.ModuleCount, snap.ClassCount,
		snap.FunctionCount, snap.AttributeCount, snap.ParseErrorCount,
		snap.WarningCount, snap.DurationMS)
	if err != nil {
		return fmt.Errorf("save build snapshot: %w", err)
	}
	return nil
}

// Recent returns up to limit snapshots, newest first.
func (s *Store) Recent(limit int) ([]Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(`
SELECT build_id, schema_version, ts_utc, package_count, module_count, class_count,
       function_count, attribute_count, parse_error_count, warning_count, duration_ms
FROM builds ORDER BY ts_utc DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query build snapshots: %w", err)
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		var snap Snapshot
		var ts string
		if err := rows.Scan(&snap.BuildID, &snap.SchemaVersion, &ts,
			&snap.PackageCount, &snap.ModuleCount, &snap.ClassCount,
			&snap.FunctionCount, &snap.AttributeCount, &snap.ParseErrorCount,
			&snap.WarningCount, &snap.DurationMS); err != nil {
			return nil, err
		}
		if parsed, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			snap.Timestamp = parsed
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}
