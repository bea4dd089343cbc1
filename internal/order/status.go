package order

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
)

// StatusRegistry resolves order statuses by name, creating missing ones on
// first use.
type StatusRegistry interface {
	Resolve(ctx context.Context, name string) (Status, error)
}

type statusRegistry struct {
	db *sqlx.DB

	mu    sync.RWMutex
	cache map[string]Status
}

func NewStatusRegistry(db *sqlx.DB) StatusRegistry {
	return &statusRegistry{
		db:    db,
		cache: make(map[string]Status),
	}
}

func (r *statusRegistry) Resolve(ctx context.Context, name string) (Status, error) {
	if name == "" {
		return Status{}, errors.New("repository: status name cannot be empty")
	}

	r.mu.RLock()
	status, ok := r.cache[name]
	r.mu.RUnlock()
	if ok {
		return status, nil
	}

	err := r.db.GetContext(ctx, &status, `SELECT id, name FROM order_statuses WHERE name = $1`, name)
	if errors.Is(err, sql.ErrNoRows) {
		err = r.db.GetContext(ctx, &status, `
			INSERT INTO order_statuses (name) VALUES ($1)
			ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
			RETURNING id, name
		`, name)
		if err == nil {
			log.Info().Str("status", name).Int("status_id", status.ID).Msg("repository: order status seeded")
		}
	}
	if err != nil {
		return Status{}, fmt.Errorf("repository: failed to resolve order status %q: %w", name, err)
	}

	r.mu.Lock()
	r.cache[name] = status
	r.mu.Unlock()

	return status, nil
}
