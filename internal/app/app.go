package app

import (
	"context"
	"net/http"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/steveneschrich/dsa-keycloak-authorization-broker/internal/config"
)

type App struct {
	httpServer *http.Server
	scheduler  *cron.Cron
	cleanup    func() error
}

func New(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	router, scheduler, cleanup, err := setupHTTP(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	server := &http.Server{
		Addr:    cfg.AppHost + ":" + cfg.AppPort,
		Handler: router,
	}

	return &App{
		httpServer: server,
		scheduler:  scheduler,
		cleanup:    cleanup,
	}, nil
}

func (a *App) Run() error {
	if a.scheduler != nil {
		a.scheduler.Start()
	}
	return a.httpServer.ListenAndServe()
}

func (a *App) Shutdown(ctx context.Context) error {
	if a.scheduler != nil {
		// Let an in-flight reconciliation finish.
		<-a.scheduler.Stop().Done()
	}
	if err := a.httpServer.Shutdown(ctx); err != nil {
		return err
	}
	if a.cleanup != nil {
		return a.cleanup()
	}
	return nil
}
