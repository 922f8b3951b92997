package session

import (
	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/arkhazla/authcore/config"
	"github.com/arkhazla/authcore/services/logging"
	"github.com/arkhazla/authcore/services/sessioncache"
	"github.com/arkhazla/authcore/services/subjects"
	"github.com/arkhazla/authcore/services/token"
	"github.com/arkhazla/authcore/services/tokenstore"
)

func ProvideSessionService(
	db *gorm.DB,
	cfg *config.Config,
	logger *logging.Service,
	tokens *token.Service,
	store *tokenstore.Store,
	cache *sessioncache.Service,
	verifier IdentityVerifier,
	directory *subjects.Directory,
) *Service {
	return NewService(db, cfg, logger, tokens, store, cache, verifier, directory)
}

var Options = fx.Options(
	fx.Provide(ProvideSessionService),
)
