package token

import (
	"go.uber.org/fx"

	"github.com/arkhazla/authcore/config"
	"github.com/arkhazla/authcore/services/logging"
)

func NewTokenService(cfg *config.Config, logger *logging.Service) *Service {
	return NewService(cfg, logger)
}

var Options = fx.Options(
	fx.Provide(NewTokenService),
)
