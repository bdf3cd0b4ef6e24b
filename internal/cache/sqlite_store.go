package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteFileName 是 sqlite 驱动在 StoragePath 下使用的数据库文件名。
const SQLiteFileName = "offline-gate.db"

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS namespaces (
	name       TEXT PRIMARY KEY,
	created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS entries (
	namespace TEXT    NOT NULL,
	path      TEXT    NOT NULL,
	query     TEXT    NOT NULL,
	url       TEXT    NOT NULL,
	status    INTEGER NOT NULL,
	header    TEXT    NOT NULL,
	body      BLOB,
	stored_at INTEGER NOT NULL,
	PRIMARY KEY (namespace, path, query)
);`

// NewSQLiteStore 在 basePath 下打开（或创建）sqlite 数据库。
func NewSQLiteStore(basePath string) (Store, error) {
	if basePath == "" {
		return nil, errors.New("storage path required")
	}
	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolve storage path: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage path: %w", err)
	}

	db, err := sql.Open("sqlite", filepath.Join(abs, SQLiteFileName))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// 单连接避免 SQLITE_BUSY，所有语句天然串行。
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite pragma %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	return &sqliteStore{db: db, now: time.Now}, nil
}

type sqliteStore struct {
	db  *sql.DB
	now func() time.Time
}

type sqliteNamespace struct {
	store *sqliteStore
	name  string
}

func (s *sqliteStore) Open(ctx context.Context, namespace string) (Namespace, error) {
	if err := validateNamespace(namespace); err != nil {
		return nil, err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO namespaces (name, created_at) VALUES (?, ?)`,
		namespace, s.now().UTC().UnixNano())
	if err != nil {
		return nil, fmt.Errorf("create namespace %s: %w", namespace, err)
	}
	return &sqliteNamespace{store: s, name: namespace}, nil
}

func (s *sqliteStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name FROM namespaces WHERE substr(name, 1, length(?1)) = ?1 ORDER BY name`,
		prefix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *sqliteStore) Delete(ctx context.Context, namespace string) (bool, error) {
	if err := validateNamespace(namespace); err != nil {
		return false, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE namespace = ?`, namespace); err != nil {
		return false, err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM namespaces WHERE name = ?`, namespace)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}

func (n *sqliteNamespace) Name() string {
	return n.name
}

func (n *sqliteNamespace) Put(ctx context.Context, rawKey string, resp *Response) error {
	if resp == nil {
		return errors.New("response required")
	}
	key, err := ParseKey(rawKey)
	if err != nil {
		return err
	}
	header, err := json.Marshal(resp.Header)
	if err != nil {
		return fmt.Errorf("encode header: %w", err)
	}
	storedAt := resp.StoredAt
	if storedAt.IsZero() {
		storedAt = n.store.now().UTC()
	}

	// 命名空间可能已被并发的 activate 删除；与平台行为一致，写入时重新创建。
	_, err = n.store.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO namespaces (name, created_at) VALUES (?, ?)`,
		n.name, storedAt.UnixNano())
	if err != nil {
		return err
	}
	_, err = n.store.db.ExecContext(ctx, `
INSERT INTO entries (namespace, path, query, url, status, header, body, stored_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (namespace, path, query) DO UPDATE SET
	url = excluded.url,
	status = excluded.status,
	header = excluded.header,
	body = excluded.body,
	stored_at = excluded.stored_at`,
		n.name, key.Path, key.Query, resp.URL, resp.Status, string(header), resp.Body, storedAt.UnixNano())
	return err
}

func (n *sqliteNamespace) Match(ctx context.Context, rawKey string, opts MatchOptions) (*Response, error) {
	key, err := ParseKey(rawKey)
	if err != nil {
		return nil, err
	}

	query := `SELECT url, status, header, body, stored_at FROM entries
WHERE namespace = ? AND path = ? AND query = ?`
	args := []any{n.name, key.Path, key.Query}
	if opts.IgnoreSearch {
		// 精确匹配优先，其次取 query 字典序最小的条目。
		query = `SELECT url, status, header, body, stored_at FROM entries
WHERE namespace = ? AND path = ?
ORDER BY (query = ?) DESC, query ASC LIMIT 1`
	}

	var (
		resp     Response
		header   string
		storedAt int64
	)
	row := n.store.db.QueryRowContext(ctx, query, args...)
	if err := row.Scan(&resp.URL, &resp.Status, &header, &resp.Body, &storedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	resp.Header = http.Header{}
	if err := json.Unmarshal([]byte(header), &resp.Header); err != nil {
		return nil, fmt.Errorf("decode header: %w", err)
	}
	resp.StoredAt = time.Unix(0, storedAt).UTC()
	return &resp, nil
}
