package notify

import (
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("notify",
	fx.Provide(func(db *gorm.DB, log *zap.Logger) Notifier {
		return NewOutbox(db, log)
	}),
)
