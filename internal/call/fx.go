package call

import (
	"github.com/voxbill/voxbill/internal/call/feed"
	"github.com/voxbill/voxbill/internal/call/store"
	"go.uber.org/fx"
)

var Module = fx.Module("call",
	fx.Provide(
		store.New,
		feed.NewHub,
	),
)
