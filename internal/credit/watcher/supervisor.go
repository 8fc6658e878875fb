package watcher

import (
	"context"
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/voxbill/voxbill/internal/call/feed"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Supervisor runs one Watch goroutine per active tenant. Tenants become
// active the first time the transition feed sees them; their watcher runs
// until the application stops.
type Supervisor struct {
	watcher *Watcher
	hub     *feed.Hub
	log     *zap.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	active  map[snowflake.ID]struct{}
	wg      sync.WaitGroup
	stopped bool
}

type SupervisorParams struct {
	fx.In

	Watcher *Watcher
	Hub     *feed.Hub
	Log     *zap.Logger
}

func NewSupervisor(p SupervisorParams) *Supervisor {
	ctx, cancel := context.WithCancel(context.Background())
	return &Supervisor{
		watcher: p.Watcher,
		hub:     p.Hub,
		log:     p.Log.Named("credit.watcher.supervisor"),
		ctx:     ctx,
		cancel:  cancel,
		active:  make(map[snowflake.ID]struct{}),
	}
}

// Ensure starts a watcher for the tenant if one is not already running.
// The subscription is taken synchronously so a Publish immediately after
// Ensure cannot be dropped.
func (s *Supervisor) Ensure(userID snowflake.ID) {
	if s == nil || userID == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if _, ok := s.active[userID]; ok {
		return
	}

	sub, backlog, err := s.hub.Subscribe(userID)
	if err != nil {
		s.log.Error("failed to subscribe watcher",
			zap.String("user_id", userID.String()),
			zap.Error(err),
		)
		return
	}
	s.active[userID] = struct{}{}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.watcher.consume(s.ctx, userID, sub, backlog); err != nil && s.ctx.Err() == nil {
			s.log.Error("watcher exited",
				zap.String("user_id", userID.String()),
				zap.Error(err),
			)
		}
		s.mu.Lock()
		delete(s.active, userID)
		s.mu.Unlock()
	}()
}

// Stop cancels every running watcher and waits for them to exit.
func (s *Supervisor) Stop(ctx context.Context) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
