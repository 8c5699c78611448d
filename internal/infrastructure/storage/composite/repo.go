package composite

import (
	"context"
	"time"

	"stockpulse/internal/application/port"
	"stockpulse/internal/domain"
)

// Repo fans staging writes to several repositories. Every repo is attempted;
// the first error is returned. Reads go to the first repo.
type Repo struct {
	repos []port.Repository
}

func New(repos ...port.Repository) *Repo {
	// nil repos are allowed; filter in constructor for safety
	out := make([]port.Repository, 0, len(repos))
	for _, r := range repos {
		if r != nil {
			out = append(out, r)
		}
	}
	return &Repo{repos: out}
}

func (r *Repo) InsertTick(ctx context.Context, t *domain.MarketTick) error {
	var firstErr error
	for _, repo := range r.repos {
		if err := repo.InsertTick(ctx, t); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *Repo) InsertTicks(ctx context.Context, ticks []*domain.MarketTick) error {
	var firstErr error
	for _, repo := range r.repos {
		if err := repo.InsertTicks(ctx, ticks); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *Repo) GetTicks(ctx context.Context, symbol string, start, end time.Time) ([]*domain.MarketTick, error) {
	if len(r.repos) == 0 {
		return nil, nil
	}
	return r.repos[0].GetTicks(ctx, symbol, start, end)
}

func (r *Repo) DeleteOldTicks(ctx context.Context, before time.Time) error {
	var firstErr error
	for _, repo := range r.repos {
		if err := repo.DeleteOldTicks(ctx, before); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *Repo) Close() error {
	var firstErr error
	for _, repo := range r.repos {
		if err := repo.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

var _ port.Repository = (*Repo)(nil)
