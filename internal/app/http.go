package app

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/steveneschrich/dsa-keycloak-authorization-broker/internal/broker"
	"github.com/steveneschrich/dsa-keycloak-authorization-broker/internal/cache"
	"github.com/steveneschrich/dsa-keycloak-authorization-broker/internal/config"
	"github.com/steveneschrich/dsa-keycloak-authorization-broker/internal/gateway/girder"
	"github.com/steveneschrich/dsa-keycloak-authorization-broker/internal/gateway/keycloak"
	"github.com/steveneschrich/dsa-keycloak-authorization-broker/internal/handler"
	"github.com/steveneschrich/dsa-keycloak-authorization-broker/internal/middleware"
	"github.com/steveneschrich/dsa-keycloak-authorization-broker/internal/redis"
)

// syncTimeout caps a single scheduled reconciliation run.
const syncTimeout = 10 * time.Minute

func setupHTTP(ctx context.Context, cfg config.Config, log *zap.Logger) (*gin.Engine, *cron.Cron, func() error, error) {

	// ----------------------------
	// Dependencies
	// ----------------------------

	groupCache, cleanup, err := setupGroupCache(cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	idp := keycloak.New(keycloak.Config{
		BaseURL:  cfg.KeycloakHost,
		Realm:    cfg.KeycloakRealm,
		Username: cfg.KeycloakUser,
		Password: cfg.KeycloakPassword,
	}, log.Named("keycloak"))

	dir := girder.New(girder.Config{
		BaseURL:  cfg.DSAHost,
		Username: cfg.DSAUsername,
		Password: cfg.DSAPassword,
	}, groupCache, log.Named("girder"))

	authBroker := broker.New(idp, dir, cfg.KeycloakClient, log.Named("broker"))

	brokerHandler := handler.NewHandler(authBroker, log.Named("http"))

	// ----------------------------
	// Router
	// ----------------------------

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{"Content-Type"},
	}))

	brokerHandler.RegisterRoutes(router)

	// ----------------------------
	// Scheduler
	// ----------------------------

	scheduler, err := setupScheduler(cfg, authBroker, log)
	if err != nil {
		return nil, nil, nil, err
	}

	return router, scheduler, cleanup, nil
}

func setupGroupCache(cfg config.Config) (cache.GroupCache, func() error, error) {
	if cfg.GroupCacheBackend == "redis" {
		client, err := redis.New(cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			return nil, nil, err
		}
		return cache.NewRedis(client.Client, cfg.GroupCacheTTL), client.Close, nil
	}

	c, err := cache.NewLRU(cfg.GroupCacheSize)
	if err != nil {
		return nil, nil, err
	}
	return c, nil, nil
}

func setupScheduler(cfg config.Config, authBroker *broker.Broker, log *zap.Logger) (*cron.Cron, error) {
	if cfg.SyncSchedule == "" {
		return nil, nil
	}

	scheduler := cron.New()
	_, err := scheduler.AddFunc(cfg.SyncSchedule, func() {
		runCtx, cancel := context.WithTimeout(context.Background(), syncTimeout)
		defer cancel()

		if _, err := authBroker.ReconcileAllUsers(runCtx); err != nil {
			log.Error("scheduled reconciliation failed", zap.Error(err))
		}
	})
	if err != nil {
		return nil, err
	}

	log.Info("scheduled bulk reconciliation", zap.String("schedule", cfg.SyncSchedule))
	return scheduler, nil
}
