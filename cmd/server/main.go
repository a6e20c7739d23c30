package main

/*****************************************************************************
 * Go 1.21
 *
 * main.go - Main entry point for the indoor wayfinding core, wiring
 *           together pose fusion, indoor/outdoor handoff, the
 *           navigation graph store, route planning, route session
 *           tracking, hazard/geofence evaluation, the facility state
 *           broker, and the session/event bus behind HTTP, WebSocket,
 *           and MQTT transports.
 *
 * This file is responsible for:
 *   1. Initializing structured logging (zap).
 *   2. Loading and validating all service configuration (LoadConfig).
 *   3. Setting up Prometheus metrics collection.
 *   4. Loading the facility map (Postgres, or a local JSON fallback)
 *      and publishing the initial navigation graph snapshot.
 *   5. Opening the hazard zone write-ahead log and constructing every
 *      core component with its dependencies injected.
 *   6. Connecting to the facility message broker and subscribing
 *      inbound status/density topics into the facility state broker.
 *   7. Starting the scheduling wheel's periodic maintenance jobs.
 *   8. Building an HTTP server with gin, a WebSocket subscription
 *      handler, health checks, and metrics.
 *   9. Managing graceful shutdown on system signals.
 *****************************************************************************/

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/airwayfind/wayfinding-core/internal/bus"
	"github.com/airwayfind/wayfinding-core/internal/config"
	"github.com/airwayfind/wayfinding-core/internal/facility"
	"github.com/airwayfind/wayfinding-core/internal/fusion"
	"github.com/airwayfind/wayfinding-core/internal/geo"
	"github.com/airwayfind/wayfinding-core/internal/graph"
	"github.com/airwayfind/wayfinding-core/internal/handoff"
	"github.com/airwayfind/wayfinding-core/internal/hazard"
	"github.com/airwayfind/wayfinding-core/internal/models"
	"github.com/airwayfind/wayfinding-core/internal/planner"
	"github.com/airwayfind/wayfinding-core/internal/ports"
	"github.com/airwayfind/wayfinding-core/internal/repository"
	"github.com/airwayfind/wayfinding-core/internal/routesession"
	"github.com/airwayfind/wayfinding-core/internal/scheduler"
	transporthttp "github.com/airwayfind/wayfinding-core/internal/transport/http"
	transportmqtt "github.com/airwayfind/wayfinding-core/internal/transport/mqtt"
	transportws "github.com/airwayfind/wayfinding-core/internal/transport/ws"
)

/*****************************************************************************
 * Global constants for default settings
 *****************************************************************************/

const (
	// defaultGracefulTimeout is the timeout used during graceful
	// shutdown of the server.
	defaultGracefulTimeout = 30 * time.Second

	// hazardCooldownGCInterval controls how often the hazard engine's
	// per-user-per-zone alert cooldown map is garbage collected.
	hazardCooldownGCInterval = 5 * time.Minute

	// hazardZoneSweepInterval controls how often expired runtime
	// hazard zones are dropped.
	hazardZoneSweepInterval = 1 * time.Minute

	// routeCacheSweepInterval controls how often the planner's route
	// cache is pruned of expired entries.
	routeCacheSweepInterval = 1 * time.Minute

	// facilityReconcileInterval controls how often the facility state
	// broker drops stale status/density readings.
	facilityReconcileInterval = 1 * time.Minute

	// poseLostSweepInterval controls how often the fusion engine checks
	// for users whose pose has gone stale past its lost timeout.
	poseLostSweepInterval = 5 * time.Second
)

/*****************************************************************************
 * loadFacilityMap - Loads nodes, edges, zones, and areas from loader and
 *                    builds the first navigation graph snapshot.
 *****************************************************************************/

func loadFacilityMap(ctx context.Context, loader ports.FacilityMapLoader, logger *zap.Logger) (*graph.Snapshot, []models.TransitionZone, []models.RestrictedArea, error) {
	nodes, err := loader.LoadNodes(ctx)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load facility nodes: %w", err)
	}
	edges, err := loader.LoadEdges(ctx)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load facility edges: %w", err)
	}
	transitionZones, err := loader.LoadTransitionZones(ctx)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load transition zones: %w", err)
	}
	restrictedAreas, err := loader.LoadRestrictedAreas(ctx)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load restricted areas: %w", err)
	}

	builder := graph.NewBuilder()
	for _, n := range nodes {
		builder.AddNode(n)
	}
	for _, e := range edges {
		builder.AddEdge(e)
	}
	for _, z := range transitionZones {
		builder.AddTransitionZone(z)
	}
	for _, a := range restrictedAreas {
		builder.AddRestrictedArea(a)
	}

	snap, err := builder.Build(1)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to build navigation graph: %w", err)
	}

	logger.Info("loaded facility map",
		zap.Int("nodes", len(nodes)),
		zap.Int("edges", len(edges)),
		zap.Int("transitionZones", len(transitionZones)),
		zap.Int("restrictedAreas", len(restrictedAreas)),
	)
	return snap, transitionZones, restrictedAreas, nil
}

/*****************************************************************************
 * installCalibrations - Derives a per-building calibration from the
 *                        first transition zone seen for that building,
 *                        anchoring the local frame's origin at the
 *                        zone's surveyed geodetic anchor. A building
 *                        with no transition zone gets no calibration,
 *                        and indoor/outdoor conversion for it fails
 *                        until one is installed.
 *****************************************************************************/

func installCalibrations(handoffEngine *handoff.Engine, zones []models.TransitionZone) {
	seen := map[models.BuildingID]bool{}
	for _, z := range zones {
		if seen[z.Building] {
			continue
		}
		seen[z.Building] = true
		handoffEngine.SetCalibration(z.Building, geo.Calibration{
			Anchor:      z.Anchor,
			RotationDeg: z.HeadingOffset,
			Scale:       1.0,
		})
	}
}

/*****************************************************************************
 * buildFacilityLoader - Constructs either a Postgres-backed or local
 *                        JSON-backed facility map loader per cfg.
 *****************************************************************************/

func buildFacilityLoader(ctx context.Context, cfg *config.Config, logger *zap.Logger) (ports.FacilityMapLoader, func(), error) {
	if cfg.FacilityStore.UseJSONFallback {
		loader, err := repository.NewJSONFacilityStore(cfg.FacilityStore.JSONMapPath)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("using local JSON facility map", zap.String("path", cfg.FacilityStore.JSONMapPath))
		return loader, func() {}, nil
	}

	store, err := repository.NewFacilityStore(ctx, repository.FacilityStoreConfig{
		DSN:             cfg.FacilityStore.DSN,
		ConnectTimeout:  cfg.FacilityStore.ConnectTimeout,
		MaxConns:        cfg.FacilityStore.MaxConns,
		BreakerTimeout:  cfg.FacilityStore.BreakerTimeout,
		BreakerMaxFails: cfg.FacilityStore.BreakerMaxFails,
	}, logger)
	if err != nil {
		return nil, nil, err
	}
	return store, store.Close, nil
}

/*****************************************************************************
 * setupMetrics - Configures and registers Prometheus metrics for the
 *                service.
 *****************************************************************************/

func setupMetrics() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	return registry
}

/*****************************************************************************
 * gracefulShutdown - Manages a graceful server shutdown with a
 *                     specified timeout, stopping all background work
 *                     before the process exits.
 *****************************************************************************/

func gracefulShutdown(server *http.Server, wheel *scheduler.Wheel, hub *bus.Hub, mqttClient *transportmqtt.Client, wal *repository.HazardWAL, logger *zap.Logger) {
	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), defaultGracefulTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil && err != http.ErrServerClosed {
		logger.Error("HTTP server shutdown encountered an error", zap.Error(err))
	}

	wheel.Stop()
	hub.Shutdown()
	mqttClient.Disconnect()

	if err := wal.Close(); err != nil {
		logger.Warn("failed to close hazard WAL", zap.Error(err))
	}

	logger.Sync()
	logger.Info("graceful shutdown completed")
}

/*****************************************************************************
 * main - Entry point function that initializes and runs the
 *        wayfinding core.
 *****************************************************************************/

func main() {
	// 1. Initialize structured logging with zap.
	logger, err := zap.NewProduction()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	logger.Info("starting wayfinding core")

	// 2. Load and validate service configuration.
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	bootCtx, bootCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer bootCancel()

	// 3. Set up Prometheus metrics collectors.
	registry := setupMetrics()

	// 4. Load the facility map and publish the initial navigation
	// graph snapshot.
	facilityLoader, closeFacilityLoader, err := buildFacilityLoader(bootCtx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize facility map loader", zap.Error(err))
	}
	defer closeFacilityLoader()

	navGraph := graph.NewStore()
	snap, transitionZones, restrictedAreas, err := loadFacilityMap(bootCtx, facilityLoader, logger)
	if err != nil {
		logger.Fatal("failed to load facility map", zap.Error(err))
	}
	navGraph.Publish(snap)

	// 5. Open the hazard zone write-ahead log and construct every
	// core component.
	hazardWAL, err := repository.OpenHazardWAL(cfg.HazardWAL.Path)
	if err != nil {
		logger.Fatal("failed to open hazard WAL", zap.Error(err))
	}

	clock := ports.SystemClock{}
	hazardEngine, err := hazard.New(hazardWAL, clock, logger)
	if err != nil {
		logger.Fatal("failed to initialize hazard engine", zap.Error(err))
	}
	_ = restrictedAreas // consulted directly from navGraph snapshots by route planning

	handoffEngine := handoff.New()
	installCalibrations(handoffEngine, transitionZones)

	facilityBroker := facility.New(logger)

	fusionCfg := fusion.DefaultConfig()
	fusionCfg.ProcessNoisePos = cfg.Fusion.ProcessNoisePos
	fusionCfg.ProcessNoiseVel = cfg.Fusion.ProcessNoiseVel
	fusionCfg.MaxPoseAgeForPredict = time.Duration(cfg.Fusion.MaxPoseAgeForPredictMs) * time.Millisecond
	fusionCfg.DivergenceVarianceLimit = cfg.Fusion.DivergenceVarianceLimit
	fusionEngine := fusion.New(fusionCfg, logger)

	routePlanner := planner.New(navGraph, facilityBroker.Density, facilityBroker.IsOpen, hazardEngine.Zones, cfg.Planner.MaxConcurrentSearches, logger)
	sessionManager := routesession.New(navGraph, routePlanner, logger)
	sessionManager.DeviationThresholdMeters = cfg.RouteSession.DeviationThresholdMeters
	sessionManager.ArrivalRadiusMeters = cfg.RouteSession.ArrivalRadiusMeters
	sessionHub := bus.NewHub(logger)

	// 6. Connect to the facility message broker and subscribe inbound
	// status/density topics into the facility state broker.
	mqttClient := transportmqtt.NewClient(transportmqtt.Config{
		BrokerURL:      cfg.MQTT.BrokerURL,
		ClientID:       cfg.MQTT.ClientID,
		Username:       cfg.MQTT.Username,
		Password:       cfg.MQTT.Password,
		ConnectTimeout: cfg.MQTT.ConnectTimeout,
		KeepAlive:      cfg.MQTT.KeepAlive,
	}, logger)
	if err := mqttClient.Connect(); err != nil {
		logger.Fatal("failed to connect to facility message broker", zap.Error(err))
	}
	if err := mqttClient.SubscribeStatus(facilityBroker.HandleStatusMessage); err != nil {
		logger.Fatal("failed to subscribe to facility status topic", zap.Error(err))
	}
	if err := mqttClient.SubscribeDensity(facilityBroker.HandleDensityMessage); err != nil {
		logger.Fatal("failed to subscribe to facility density topic", zap.Error(err))
	}

	// 7. Start the scheduling wheel's periodic maintenance jobs.
	wheel := scheduler.New(logger,
		scheduler.Job{
			Name:     "hazard-cooldown-gc",
			Interval: hazardCooldownGCInterval,
			Run:      func(now time.Time) { hazardEngine.GCCooldowns(now) },
		},
		scheduler.Job{
			Name:     "hazard-zone-sweep",
			Interval: hazardZoneSweepInterval,
			Run:      func(time.Time) { hazardEngine.SweepExpiredZones() },
		},
		scheduler.Job{
			Name:     "route-cache-sweep",
			Interval: routeCacheSweepInterval,
			Run:      func(now time.Time) { routePlanner.PruneExpiredCache(now) },
		},
		scheduler.Job{
			Name:     "facility-reconcile",
			Interval: facilityReconcileInterval,
			Run:      func(now time.Time) { facilityBroker.Reconcile(now) },
		},
		scheduler.Job{
			Name:     "pose-lost-sweep",
			Interval: poseLostSweepInterval,
			Run: func(now time.Time) {
				for _, userID := range fusionEngine.SweepStaleUsers(now) {
					if actor, ok := sessionHub.Get(userID); ok {
						actor.Publish(bus.Event{Kind: bus.EventPoseLost, Payload: userID, At: now})
					}
				}
			},
		},
	)
	wheel.Start()

	// 8. Build the HTTP server with gin, the WebSocket subscription
	// handler, health checks, and metrics.
	router := transporthttp.NewRouter(transporthttp.Deps{
		Store:      navGraph,
		Fusion:      fusionEngine,
		Sessions:    sessionManager,
		Hazards:     hazardEngine,
		Bus:         sessionHub,
		Logger:      logger,
		Registry:    registry,
		AdminToken:  cfg.HTTP.AdminToken,
		RateLimit:   cfg.HTTP.RateLimit,
	})

	wsHandler := transportws.NewHandler(sessionHub, func() uint64 { return navGraph.Current().Version }, logger)
	router.GET("/v1/subscribe", gin.WrapF(wsHandler.ServeHTTP))

	server := &http.Server{
		Addr:    cfg.HTTP.ListenAddr,
		Handler: router,
	}

	// 9. Initialize signal handlers for graceful termination.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("HTTP server listening", zap.String("address", cfg.HTTP.ListenAddr))
		if srvErr := server.ListenAndServe(); srvErr != nil && srvErr != http.ErrServerClosed {
			logger.Fatal("HTTP server listen error", zap.Error(srvErr))
		}
	}()

	sig := <-quit
	logger.Info("caught signal, shutting down", zap.String("signal", sig.String()))
	gracefulShutdown(server, wheel, sessionHub, mqttClient, hazardWAL, logger)
}
