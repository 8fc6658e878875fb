package credit

import (
	"context"

	creditdomain "github.com/voxbill/voxbill/internal/credit/domain"
	"github.com/voxbill/voxbill/internal/credit/service"
	"github.com/voxbill/voxbill/internal/credit/sweeper"
	"github.com/voxbill/voxbill/internal/credit/watcher"
	"go.uber.org/fx"
)

var Module = fx.Module("credit",
	fx.Provide(
		service.New,
		watcher.New,
		watcher.NewSupervisor,
		sweeper.New,
		func(s *sweeper.Sweeper) creditdomain.Sweeper { return s },
	),
	fx.Invoke(runSweeper),
	fx.Invoke(stopWatchers),
)

func stopWatchers(lc fx.Lifecycle, s *watcher.Supervisor) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return s.Stop(ctx)
		},
	})
}

// runSweeper starts the periodic reconciliation loop for the lifetime of
// the application.
func runSweeper(lc fx.Lifecycle, s *sweeper.Sweeper) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				s.RunForever(ctx)
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
				return nil
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})
}
