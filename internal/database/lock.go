package database

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/cespare/xxhash/v2"
)

const (
	LockAdvisory = "advisory"
	LockLocal    = "local"
	LockNone     = "none"
)

// KeyLocker serialises SafeUpsert calls that target the same business key.
// The returned context must be used for the work done under the lock and the
// returned function releases the lock and must always be called.
type KeyLocker interface {
	Lock(ctx context.Context, table, key string) (context.Context, func(), error)
}

func NewLocker(mode string, db *sql.DB) (KeyLocker, error) {
	switch mode {
	case LockAdvisory:
		return &AdvisoryLocker{db: db}, nil
	case LockLocal, "":
		return NewLocalLocker(), nil
	case LockNone:
		return NoopLocker{}, nil
	default:
		return nil, fmt.Errorf("unknown lock mode %q", mode)
	}
}

type NoopLocker struct{}

func (NoopLocker) Lock(ctx context.Context, _, _ string) (context.Context, func(), error) {
	return ctx, func() {}, nil
}

// LocalLocker is an in-process keyed mutex. Entries are dropped once no
// goroutine holds or waits for them.
type LocalLocker struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{entries: make(map[string]*lockEntry)}
}

func (l *LocalLocker) Lock(ctx context.Context, table, key string) (context.Context, func(), error) {
	name := lockName(table, key)

	l.mu.Lock()
	entry, ok := l.entries[name]
	if !ok {
		entry = &lockEntry{}
		l.entries[name] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()

	return ctx, func() {
		entry.mu.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.entries, name)
		}
		l.mu.Unlock()
	}, nil
}

// AdvisoryLocker takes a session-level postgres advisory lock keyed by a hash
// of the table and business key. The locked session is pinned to the returned
// context, so the lookup and insert made under the lock run on that same
// session and a caller never holds more than one pool connection.
type AdvisoryLocker struct {
	db *sql.DB
}

func (a *AdvisoryLocker) Lock(ctx context.Context, table, key string) (context.Context, func(), error) {
	pinned, conn, err := pinSession(ctx, a.db)
	if err != nil {
		return nil, nil, fmt.Errorf("error acquiring lock session: %w", err)
	}

	id := AdvisoryKey(table, key)
	if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_lock($1)", id); err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("error taking advisory lock for %s: %w", lockName(table, key), err)
	}

	return pinned, func() {
		_, _ = conn.ExecContext(context.Background(), "SELECT pg_advisory_unlock($1)", id)
		_ = conn.Close()
	}, nil
}

type sessionKey struct{}

// pinSession checks out a connection and returns a context that makes
// withSession reuse it. The caller owns the connection and must close it.
func pinSession(ctx context.Context, db *sql.DB) (context.Context, *sql.Conn, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, nil, err
	}
	return context.WithValue(ctx, sessionKey{}, conn), conn, nil
}

func pinnedSession(ctx context.Context) *sql.Conn {
	conn, _ := ctx.Value(sessionKey{}).(*sql.Conn)
	return conn
}

func AdvisoryKey(table, key string) int64 {
	return int64(xxhash.Sum64String(lockName(table, key)))
}

func lockName(table, key string) string {
	return table + ":" + key
}
