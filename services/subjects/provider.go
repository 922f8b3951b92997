package subjects

import (
	"go.uber.org/fx"

	"github.com/arkhazla/authcore/services/logging"
)

func ProvideDirectory(logger *logging.Service) *Directory {
	return NewDirectory(logger)
}

var Options = fx.Options(
	fx.Provide(ProvideDirectory),
)
