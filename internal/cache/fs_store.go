package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	entrySuffix   = ".json"
	emptyQueryTag = "_"
	trashPrefix   = ".trash-"
)

// NewFileStore 以 basePath 为根目录构建磁盘缓存，整站复用一份实例。
func NewFileStore(basePath string) (Store, error) {
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

	return &fileStore{
		basePath: abs,
		locks:    make(map[string]*entryLock),
		now:      time.Now,
	}, nil
}

// fileStore 通过 entryLock 避免同一条目并发 rename，同时复用 basePath。
type fileStore struct {
	basePath string
	now      func() time.Time

	mu    sync.Mutex
	locks map[string]*entryLock
}

type entryLock struct {
	mu   sync.Mutex
	refs int
}

// fileRecord 是单个条目在磁盘上的 JSON 结构。
type fileRecord struct {
	Path     string    `json:"path"`
	Query    string    `json:"query"`
	Response *Response `json:"response"`
}

type fileNamespace struct {
	store *fileStore
	name  string
	dir   string
}

func (s *fileStore) Open(ctx context.Context, namespace string) (Namespace, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir, err := s.namespaceDir(namespace)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create namespace %s: %w", namespace, err)
	}
	return &fileNamespace{store: s, name: namespace, dir: dir}, nil
}

func (s *fileStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (s *fileStore) Delete(ctx context.Context, namespace string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	dir, err := s.namespaceDir(namespace)
	if err != nil {
		return false, err
	}

	// 先 rename 到隐藏目录，使命名空间在 Keys/Open 视角下瞬间消失，再慢慢清理。
	trash, err := os.MkdirTemp(s.basePath, trashPrefix+namespace+"-")
	if err != nil {
		return false, err
	}
	target := filepath.Join(trash, "ns")
	if err := os.Rename(dir, target); err != nil {
		os.RemoveAll(trash)
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	if err := os.RemoveAll(trash); err != nil {
		return true, err
	}
	return true, nil
}

func (s *fileStore) Close() error {
	return nil
}

func (n *fileNamespace) Name() string {
	return n.name
}

func (n *fileNamespace) Put(ctx context.Context, rawKey string, resp *Response) error {
	if resp == nil {
		return errors.New("response required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	key, err := ParseKey(rawKey)
	if err != nil {
		return err
	}

	filePath := n.entryPath(key)
	unlock := n.store.lockEntry(filePath)
	defer unlock()

	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return err
	}

	stored := resp.Clone()
	if stored.StoredAt.IsZero() {
		stored.StoredAt = n.store.now().UTC()
	}
	payload, err := json.Marshal(fileRecord{Path: key.Path, Query: key.Query, Response: stored})
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(filePath), ".cache-*")
	if err != nil {
		return err
	}
	tempName := tempFile.Name()

	_, err = tempFile.Write(payload)
	closeErr := tempFile.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tempName)
		return err
	}

	if err := os.Rename(tempName, filePath); err != nil {
		os.Remove(tempName)
		return err
	}
	return nil
}

func (n *fileNamespace) Match(ctx context.Context, rawKey string, opts MatchOptions) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key, err := ParseKey(rawKey)
	if err != nil {
		return nil, err
	}

	record, err := readRecord(n.entryPath(key))
	if err == nil {
		return record.Response, nil
	}
	if !errors.Is(err, ErrNotFound) || !opts.IgnoreSearch {
		return nil, err
	}

	// 忽略查询串：同一路径下的全部条目中取 Query 字典序最小者，保证结果确定。
	dir := filepath.Join(n.dir, hashComponent(key.Path))
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var best *fileRecord
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, entrySuffix) {
			continue
		}
		candidate, err := readRecord(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		if candidate.Path != key.Path {
			continue
		}
		if best == nil || candidate.Query < best.Query {
			best = candidate
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	return best.Response, nil
}

func (n *fileNamespace) entryPath(key Key) string {
	queryTag := emptyQueryTag
	if key.Query != "" {
		queryTag = hashComponent(key.Query)
	}
	return filepath.Join(n.dir, hashComponent(key.Path), queryTag+entrySuffix)
}

func readRecord(filePath string) (*fileRecord, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var record fileRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("decode cache entry %s: %w", filePath, err)
	}
	if record.Response == nil {
		return nil, ErrNotFound
	}
	return &record, nil
}

func (s *fileStore) lockEntry(key string) func() {
	s.mu.Lock()
	lock := s.locks[key]
	if lock == nil {
		lock = &entryLock{}
		s.locks[key] = lock
	}
	lock.refs++
	s.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		s.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(s.locks, key)
		}
		s.mu.Unlock()
	}
}

func (s *fileStore) namespaceDir(namespace string) (string, error) {
	if err := validateNamespace(namespace); err != nil {
		return "", err
	}
	dir := filepath.Join(s.basePath, namespace)
	if filepath.Dir(dir) != s.basePath {
		return "", fmt.Errorf("%w: %s", ErrInvalidNamespace, namespace)
	}
	return dir, nil
}

func hashComponent(value string) string {
	sum := sha1.Sum([]byte(value))
	return hex.EncodeToString(sum[:])
}
