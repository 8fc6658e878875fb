package ledger

import (
	"github.com/voxbill/voxbill/internal/ledger/store"
	"go.uber.org/fx"
)

var Module = fx.Module("ledger.store",
	fx.Provide(store.New),
)
