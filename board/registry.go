package board

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"

	"onboarding-board/events"
)

// Registry keeps one Controller per user and reloads all of them when a
// TasksUpdated event arrives.
type Registry struct {
	backend Backend
	opts    Options
	logger  *log.Logger

	mu       sync.Mutex
	sessions map[string]*Controller
}

func NewRegistry(backend Backend, opts Options) *Registry {
	logger := opts.Logger
	if logger == nil {
		logger = log.StandardLogger()
		opts.Logger = logger
	}
	return &Registry{
		backend:  backend,
		opts:     opts,
		logger:   logger,
		sessions: make(map[string]*Controller),
	}
}

// Get returns the user's controller, creating and loading it on first use.
// A failed initial load still returns the controller so the caller can retry.
func (r *Registry) Get(ctx context.Context, user string) (*Controller, error) {
	r.mu.Lock()
	c, ok := r.sessions[user]
	if !ok {
		c = NewController(user, r.backend, r.opts)
		r.sessions[user] = c
	}
	r.mu.Unlock()

	if c.Loaded() {
		return c, nil
	}
	if err := c.Load(ctx); err != nil {
		return c, err
	}
	return c, nil
}

// Users returns the owners of every live session.
func (r *Registry) Users() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.sessions))
	for u := range r.sessions {
		out = append(out, u)
	}
	return out
}

// Drop forgets a user's session.
func (r *Registry) Drop(user string) {
	r.mu.Lock()
	delete(r.sessions, user)
	r.mu.Unlock()
}

// ReloadAll reloads every session. Failures are logged; each controller keeps
// its previous state.
func (r *Registry) ReloadAll(ctx context.Context) {
	r.mu.Lock()
	list := make([]*Controller, 0, len(r.sessions))
	for _, c := range r.sessions {
		list = append(list, c)
	}
	r.mu.Unlock()

	for _, c := range list {
		if err := c.Load(ctx); err != nil {
			r.logger.WithError(err).WithField("user", c.Owner()).Warn("reload after tasks update failed")
		}
	}
}

// Run reloads every session on each event from bus until ctx is done.
func (r *Registry) Run(ctx context.Context, bus *events.Bus) {
	ch, cancel := bus.Subscribe()
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			r.logger.WithFields(log.Fields{"source": ev.Source, "task": ev.TaskID}).Debug("tasks updated, reloading boards")
			r.ReloadAll(ctx)
		}
	}
}
