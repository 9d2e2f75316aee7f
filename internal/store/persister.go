package store

import (
	"context"
	"time"

	appLog "bookcal/internal/log"
	"bookcal/internal/model"
)

// Persister writes view commits through to a Store. The view does not wait
// for or see the outcome, so failures are logged and counted here.
type Persister struct {
	store   *Store
	timeout time.Duration

	// OnError, if set, is called after a failed write.
	OnError func(op, id string, err error)
}

// NewPersister returns a Persister bounding each write by timeout
// (5s when zero).
func NewPersister(s *Store, timeout time.Duration) *Persister {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Persister{store: s, timeout: timeout}
}

func (p *Persister) Create(ev model.CalendarEvent) {
	p.run("create", ev.ID, func(ctx context.Context) error {
		return p.store.Insert(ctx, ev)
	})
}

func (p *Persister) Move(id string, start, end time.Time) {
	p.run("move", id, func(ctx context.Context) error {
		return p.store.UpdateTimes(ctx, id, start, end)
	})
}

func (p *Persister) Resize(id string, start, end time.Time) {
	p.run("resize", id, func(ctx context.Context) error {
		return p.store.UpdateTimes(ctx, id, start, end)
	})
}

func (p *Persister) Delete(id string) {
	p.run("delete", id, func(ctx context.Context) error {
		return p.store.Delete(ctx, id)
	})
}

func (p *Persister) run(op, id string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	if err := fn(ctx); err != nil {
		appLog.Error("persist failed", err, "op", op, "id", id)
		if p.OnError != nil {
			p.OnError(op, id, err)
		}
		return
	}
	appLog.Debug("persisted", "op", op, "id", id)
}
