package database

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrTenantDatabaseUnavailable marks a failed tenant connection open. The
// failure is retryable: nothing is cached for the key.
var ErrTenantDatabaseUnavailable = errors.New("tenant database unavailable")

// Opener turns a decrypted connection string into a live handle. The
// composition root injects a postgres opener; tests inject sqlite.
type Opener func(connectionString string) (*gorm.DB, error)

func PostgresOpener() Opener {
	return func(connectionString string) (*gorm.DB, error) {
		return gorm.Open(postgres.Open(connectionString), &gorm.Config{
			Logger:         logger.Default.LogMode(logger.Warn),
			TranslateError: true,
		})
	}
}

// ConnectionPool caches one live handle per tenant database. Connections are
// opened lazily and never proactively closed; the driver maintains health.
// Concurrent first acquisitions of one key are coalesced through a
// single-flight group so exactly one open happens.
type ConnectionPool struct {
	opener Opener

	mu    sync.RWMutex
	conns map[string]*gorm.DB
	group singleflight.Group
}

func NewConnectionPool(opener Opener) *ConnectionPool {
	return &ConnectionPool{opener: opener, conns: make(map[string]*gorm.DB)}
}

// Acquire returns the cached handle for key, opening and migrating it on
// first use. An open failure is not cached; a later call retries a fresh
// open.
func (p *ConnectionPool) Acquire(ctx context.Context, key, connectionString string) (*gorm.DB, error) {
	p.mu.RLock()
	db, ok := p.conns[key]
	p.mu.RUnlock()
	if ok {
		return db.WithContext(ctx), nil
	}

	v, err, _ := p.group.Do(key, func() (interface{}, error) {
		p.mu.RLock()
		existing, ok := p.conns[key]
		p.mu.RUnlock()
		if ok {
			return existing, nil
		}

		opened, err := p.opener(connectionString)
		if err != nil {
			// Never include the connection string: it is decrypted tenant
			// material.
			return nil, fmt.Errorf("%w: open %s: %v", ErrTenantDatabaseUnavailable, key, err)
		}
		if err := MigrateTenant(opened); err != nil {
			return nil, fmt.Errorf("%w: migrate %s: %v", ErrTenantDatabaseUnavailable, key, err)
		}

		p.mu.Lock()
		p.conns[key] = opened
		p.mu.Unlock()
		return opened, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*gorm.DB).WithContext(ctx), nil
}

// Range calls fn for every cached connection. It snapshots under the read
// lock so fn may itself acquire.
func (p *ConnectionPool) Range(fn func(key string, db *gorm.DB)) {
	p.mu.RLock()
	snapshot := make(map[string]*gorm.DB, len(p.conns))
	for key, db := range p.conns {
		snapshot[key] = db
	}
	p.mu.RUnlock()
	for key, db := range snapshot {
		fn(key, db)
	}
}

// Size reports how many tenant connections are cached.
func (p *ConnectionPool) Size() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.conns)
}
