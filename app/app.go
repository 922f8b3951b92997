package app

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/arkhazla/authcore/config"
	"github.com/arkhazla/authcore/database"
	"github.com/arkhazla/authcore/httpapi"
	"github.com/arkhazla/authcore/server"
	"github.com/arkhazla/authcore/services/logging"
	"github.com/arkhazla/authcore/services/session"
	"github.com/arkhazla/authcore/services/sessioncache"
	"github.com/arkhazla/authcore/services/subjects"
	"github.com/arkhazla/authcore/services/token"
	"github.com/arkhazla/authcore/services/tokenstore"
)

type App struct {
	fx     *fx.App
	config *config.Config
	logger *logging.Service
	db     *gorm.DB
	server *server.Server
}

// New assembles the full application. The caller must supply an fx.Provide
// for session.IdentityVerifier; everything else is wired here.
func New(customConfig *config.Config, extra ...fx.Option) *App {
	app := &App{}

	options := []fx.Option{
		config.NewProvider(customConfig),
		logging.Module,
		fx.Supply(database.WithModels(&tokenstore.RefreshToken{}, &subjects.Subject{})),
		database.Module,
		token.Options,
		tokenstore.Options,
		sessioncache.Options,
		subjects.Options,
		session.Options,
		server.NewProvider(),
		httpapi.Options(),
		fx.Populate(&app.config, &app.logger, &app.db, &app.server),
	}
	options = append(options, extra...)

	app.fx = fx.New(options...)
	return app
}

func (a *App) Start(ctx context.Context) error {
	return a.fx.Start(ctx)
}

func (a *App) Run() {
	if err := a.Start(context.Background()); err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	if a.logger != nil {
		a.logger.Info("received shutdown signal, stopping")
	}

	a.Stop()
}

func (a *App) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := a.fx.Stop(ctx); err != nil {
		if a.logger != nil {
			a.logger.Error("failed to stop application gracefully")
		} else {
			log.Printf("Failed to stop application gracefully: %v", err)
		}
	}
}

func (a *App) Config() *config.Config {
	return a.config
}

func (a *App) Logger() *logging.Service {
	return a.logger
}

func (a *App) DB() *gorm.DB {
	return a.db
}

func (a *App) Server() *server.Server {
	return a.server
}
