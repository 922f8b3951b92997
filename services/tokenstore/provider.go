package tokenstore

import (
	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/arkhazla/authcore/config"
	"github.com/arkhazla/authcore/services/logging"
)

func ProvideStore(db *gorm.DB, cfg *config.Config, logger *logging.Service) *Store {
	store := NewStore(cfg, logger)

	if cfg.RefreshToken.CleanupInterval > 0 {
		store.StartCleanupWorker(db)
	}

	return store
}

var Options = fx.Options(
	fx.Provide(ProvideStore),
)
