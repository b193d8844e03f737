package kvstore

import (
	"context"
	"crypto/rand"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// ---------------------------------------------------------------------------
// Shared test-suite that can run against ANY Store implementation
// ---------------------------------------------------------------------------

func runStoreTests(t *testing.T, name string, newStore func(t *testing.T) Store) {
	t.Run(name+"/SetAndGet", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		if err := store.Set(ctx, "token", "abc.def.ghi"); err != nil {
			t.Fatalf("Set: unexpected error: %v", err)
		}
		got, found, err := store.Get(ctx, "token")
		if err != nil {
			t.Fatalf("Get: unexpected error: %v", err)
		}
		if !found {
			t.Fatal("Get: expected key to be found")
		}
		if got != "abc.def.ghi" {
			t.Errorf("Get = %q, want %q", got, "abc.def.ghi")
		}
	})

	t.Run(name+"/GetMissing", func(t *testing.T) {
		store := newStore(t)
		got, found, err := store.Get(context.Background(), "missing")
		if err != nil {
			t.Fatalf("Get: unexpected error: %v", err)
		}
		if found {
			t.Errorf("expected found=false, got value %q", got)
		}
	})

	t.Run(name+"/Overwrite", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		store.Set(ctx, "role", "medico")
		store.Set(ctx, "role", "admin")

		got, _, err := store.Get(ctx, "role")
		if err != nil {
			t.Fatalf("Get: unexpected error: %v", err)
		}
		if got != "admin" {
			t.Errorf("Get = %q, want %q", got, "admin")
		}
	})

	t.Run(name+"/DeleteMany", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		store.Set(ctx, "token", "t")
		store.Set(ctx, "user", `{"nombre":"Ana"}`)
		store.Set(ctx, "role", "secretaria")

		if err := store.Delete(ctx, "token", "user", "role"); err != nil {
			t.Fatalf("Delete: unexpected error: %v", err)
		}
		for _, k := range []string{"token", "user", "role"} {
			if _, found, _ := store.Get(ctx, k); found {
				t.Errorf("expected %q to be deleted", k)
			}
		}
	})

	t.Run(name+"/DeleteMissingIsNotError", func(t *testing.T) {
		store := newStore(t)
		if err := store.Delete(context.Background(), "never-set"); err != nil {
			t.Errorf("Delete of missing key: unexpected error: %v", err)
		}
	})

	t.Run(name+"/JSONValueRoundTrip", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		user := `{"nombre":"Dr. Pérez","username":"jperez","tags":["a","b"]}`

		store.Set(ctx, "user", user)
		got, _, err := store.Get(ctx, "user")
		if err != nil {
			t.Fatalf("Get: unexpected error: %v", err)
		}
		if got != user {
			t.Errorf("Get = %q, want %q", got, user)
		}
	})

	t.Run(name+"/ConcurrentAccess", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				store.Set(ctx, "token", "tok")
				store.Get(ctx, "token")
			}()
		}
		wg.Wait()

		if got, _, _ := store.Get(ctx, "token"); got != "tok" {
			t.Errorf("Get = %q, want %q", got, "tok")
		}
	})
}

func TestMemory(t *testing.T) {
	runStoreTests(t, "Memory", func(t *testing.T) Store {
		return NewMemory()
	})
}

func TestFile(t *testing.T) {
	runStoreTests(t, "File", func(t *testing.T) Store {
		return NewFile(filepath.Join(t.TempDir(), "nested", "session.json"))
	})
}

func TestRedis(t *testing.T) {
	runStoreTests(t, "Redis", func(t *testing.T) Store {
		_, rdb := newTestRedis(t)
		return NewRedis(rdb, "test", 0)
	})
}

func TestPostgres(t *testing.T) {
	runStoreTests(t, "Postgres", func(t *testing.T) Store {
		return NewPostgres(newMockPGConn())
	})
}

func TestEncrypted(t *testing.T) {
	runStoreTests(t, "Encrypted", func(t *testing.T) Store {
		enc, err := NewEncrypted(NewMemory(), generateTestKey(t))
		if err != nil {
			t.Fatalf("NewEncrypted: %v", err)
		}
		return enc
	})
}

// ---------------------------------------------------------------------------
// Backend specific behaviour
// ---------------------------------------------------------------------------

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})
	return mr, rdb
}

func generateTestKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("generate test key: %v", err)
	}
	return key
}

func TestFile_PersistsAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	ctx := context.Background()

	if err := NewFile(path).Set(ctx, "token", "persisted"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, found, err := NewFile(path).Get(ctx, "token")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !found || got != "persisted" {
		t.Errorf("Get = (%q, %v), want (%q, true)", got, found, "persisted")
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("file mode = %o, want 600", perm)
	}
}

func TestFile_CorruptDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	_, _, err := NewFile(path).Get(context.Background(), "token")
	if err == nil {
		t.Fatal("expected error for corrupt session file")
	}
}

func TestRedis_PrefixAndTTL(t *testing.T) {
	mr, rdb := newTestRedis(t)
	store := NewRedis(rdb, "console-1", 0)
	ctx := context.Background()

	store.Set(ctx, "token", "abc")

	if !mr.Exists("console-1:token") {
		t.Error("expected key stored under prefix console-1:token")
	}
	if ttl := mr.TTL("console-1:token"); ttl != 0 {
		t.Errorf("expected no TTL, got %v", ttl)
	}
}

func TestRedis_DefaultPrefix(t *testing.T) {
	mr, rdb := newTestRedis(t)
	NewRedis(rdb, "", 0).Set(context.Background(), "role", "admin")

	if !mr.Exists("hms:session:role") {
		t.Error("expected default prefix hms:session")
	}
}

func TestRedis_Unavailable(t *testing.T) {
	mr, rdb := newTestRedis(t)
	mr.Close()

	_, _, err := NewRedis(rdb, "x", 0).Get(context.Background(), "token")
	if err == nil {
		t.Fatal("expected error when redis is down")
	}
}

func TestPostgres_Migrate(t *testing.T) {
	mock := newMockPGConn()
	if err := NewPostgres(mock).Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if len(mock.execs) != 1 || !strings.Contains(mock.execs[0], "CREATE TABLE IF NOT EXISTS client_session_kv") {
		t.Errorf("unexpected migration statements: %v", mock.execs)
	}
}

func TestPostgres_SetError(t *testing.T) {
	mock := newMockPGConn()
	mock.execErr = errors.New("db write failed")

	err := NewPostgres(mock).Set(context.Background(), "token", "t")
	if err == nil {
		t.Fatal("expected error from Set")
	}
	if !strings.Contains(err.Error(), "db write failed") {
		t.Errorf("expected wrapped cause, got %v", err)
	}
}

func TestPostgres_GetError(t *testing.T) {
	mock := newMockPGConn()
	mock.queryErr = errors.New("connection reset")

	_, _, err := NewPostgres(mock).Get(context.Background(), "token")
	if err == nil {
		t.Fatal("expected error from Get")
	}
}

func TestEncrypted_ValuesAreSealed(t *testing.T) {
	inner := NewMemory()
	enc, err := NewEncrypted(inner, generateTestKey(t))
	if err != nil {
		t.Fatalf("NewEncrypted: %v", err)
	}
	ctx := context.Background()

	enc.Set(ctx, "token", "secret-token")

	raw, _, _ := inner.Get(ctx, "token")
	if raw == "secret-token" || strings.Contains(raw, "secret") {
		t.Errorf("expected ciphertext in inner store, got %q", raw)
	}
}

func TestEncrypted_WrongKeyReadsAsAbsent(t *testing.T) {
	inner := NewMemory()
	ctx := context.Background()

	writer, _ := NewEncrypted(inner, generateTestKey(t))
	writer.Set(ctx, "token", "secret-token")

	reader, _ := NewEncrypted(inner, generateTestKey(t))
	_, found, err := reader.Get(ctx, "token")
	if err != nil {
		t.Fatalf("Get: unexpected error: %v", err)
	}
	if found {
		t.Error("expected value sealed with another key to read as absent")
	}
}

func TestEncrypted_PlaintextReadsAsAbsent(t *testing.T) {
	inner := NewMemory()
	ctx := context.Background()
	inner.Set(ctx, "role", "admin")

	enc, _ := NewEncrypted(inner, generateTestKey(t))
	if _, found, _ := enc.Get(ctx, "role"); found {
		t.Error("expected legacy plaintext to read as absent")
	}
}

func TestEncrypted_ValueBoundToKey(t *testing.T) {
	inner := NewMemory()
	ctx := context.Background()
	enc, _ := NewEncrypted(inner, generateTestKey(t))

	enc.Set(ctx, "role", "admin")
	sealed, _, _ := inner.Get(ctx, "role")
	inner.Set(ctx, "token", sealed)

	if _, found, _ := enc.Get(ctx, "token"); found {
		t.Error("expected value moved to another key to read as absent")
	}
	if v, found, _ := enc.Get(ctx, "role"); !found || v != "admin" {
		t.Errorf("Get(role) = %q, %v, want admin, true", v, found)
	}
}

func TestNewEncrypted_KeyLength(t *testing.T) {
	for _, n := range []int{0, 16, 64} {
		if _, err := NewEncrypted(NewMemory(), make([]byte, n)); !errors.Is(err, ErrKeySize) {
			t.Errorf("expected error for %d-byte key", n)
		}
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	t.Run("memory", func(t *testing.T) {
		store, closeFn, err := Open(ctx, Options{Backend: BackendMemory})
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		defer closeFn()
		if _, ok := store.(*Memory); !ok {
			t.Errorf("expected *Memory, got %T", store)
		}
	})

	t.Run("file is default", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "s.json")
		store, closeFn, err := Open(ctx, Options{FilePath: path})
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		defer closeFn()
		f, ok := store.(*File)
		if !ok {
			t.Fatalf("expected *File, got %T", store)
		}
		if f.Path() != path {
			t.Errorf("Path = %q, want %q", f.Path(), path)
		}
	})

	t.Run("redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		store, closeFn, err := Open(ctx, Options{Backend: BackendRedis, RedisURL: "redis://" + mr.Addr()})
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		defer closeFn()
		if err := store.Set(ctx, "token", "x"); err != nil {
			t.Fatalf("Set: %v", err)
		}
		if !mr.Exists("hms:session:token") {
			t.Error("expected key in redis")
		}
	})

	t.Run("encrypted", func(t *testing.T) {
		key := "00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff"
		store, closeFn, err := Open(ctx, Options{Backend: BackendMemory, EncryptionKey: key})
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		defer closeFn()
		if _, ok := store.(*Encrypted); !ok {
			t.Errorf("expected *Encrypted, got %T", store)
		}
	})

	t.Run("bad encryption key", func(t *testing.T) {
		_, _, err := Open(ctx, Options{Backend: BackendMemory, EncryptionKey: "zz"})
		if err == nil {
			t.Fatal("expected error for invalid hex key")
		}
	})

	t.Run("unknown backend", func(t *testing.T) {
		_, _, err := Open(ctx, Options{Backend: "etcd"})
		if !errors.Is(err, ErrUnknownBackend) {
			t.Errorf("expected ErrUnknownBackend, got %v", err)
		}
	})
}

// ---------------------------------------------------------------------------
// mock pgConn
// ---------------------------------------------------------------------------

type mockPGRow struct {
	value   string
	scanErr error
	noRows  bool
}

func (r *mockPGRow) Scan(dest ...any) error {
	if r.scanErr != nil {
		return r.scanErr
	}
	if r.noRows {
		return errors.New("no rows in result set")
	}
	if len(dest) > 0 {
		if s, ok := dest[0].(*string); ok {
			*s = r.value
		}
	}
	return nil
}

type mockPGConn struct {
	mu       sync.Mutex
	rows     map[string]string
	execs    []string
	queryErr error
	execErr  error
}

func newMockPGConn() *mockPGConn {
	return &mockPGConn{rows: make(map[string]string)}
}

func (m *mockPGConn) QueryRow(_ context.Context, _ string, args ...any) pgRow {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.queryErr != nil {
		return &mockPGRow{scanErr: m.queryErr}
	}
	if len(args) == 0 {
		return &mockPGRow{noRows: true}
	}
	key, _ := args[0].(string)
	v, ok := m.rows[key]
	if !ok {
		return &mockPGRow{noRows: true}
	}
	return &mockPGRow{value: v}
}

func (m *mockPGConn) Exec(_ context.Context, sql string, args ...any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.execErr != nil {
		return m.execErr
	}
	m.execs = append(m.execs, sql)

	stmt := strings.TrimSpace(sql)
	switch {
	case strings.HasPrefix(stmt, "INSERT"):
		key, _ := args[0].(string)
		value, _ := args[1].(string)
		m.rows[key] = value
	case strings.HasPrefix(stmt, "DELETE"):
		keys, _ := args[0].([]string)
		for _, k := range keys {
			delete(m.rows, k)
		}
	}
	return nil
}
