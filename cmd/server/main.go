// Server entrypoint. Wires the backend clients, the observation merge
// engine, and the HTTP API, then runs until interrupted.
package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nammatraffic/server/internal/cache"
	"github.com/nammatraffic/server/internal/clients/backend"
	"github.com/nammatraffic/server/internal/clients/nominatim"
	"github.com/nammatraffic/server/internal/clients/osrm"
	"github.com/nammatraffic/server/internal/clients/push"
	"github.com/nammatraffic/server/internal/config"
	"github.com/nammatraffic/server/internal/lib/points"
	"github.com/nammatraffic/server/internal/server"
	"github.com/nammatraffic/server/internal/services"
)

var (
	cfgFile string
	devMode bool
)

var rootCmd = &cobra.Command{
	Use:   "nammatraffic-server",
	Short: "Crowd-sourced traffic aggregation and route planning server",
	Long: `nammatraffic-server aggregates crowd-sourced traffic observations,
arbitrates lane signals, and plans routes with graceful degradation when the
collective backend or the road router is unreachable.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&devMode, "dev", false, "development logging (human readable, debug level)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	logger, err := buildLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	seed := cfg.Merge.RandomSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	backendClient := backend.NewClient(cfg.Backend.BaseURL, cfg.Backend.RequestTimeout)
	osrmClient := osrm.NewClient(cfg.Routing.OSRMURL, cfg.Routing.RequestTimeout)
	nominatimClient := nominatim.NewClient(cfg.Geocoding.NominatimURL, cfg.Geocoding.RequestTimeout)
	pushChannel := push.NewChannel(cfg.Backend.WSURL, cfg.Push.ReconnectDelay, logger)

	engine := points.NewEngine(cfg.Merge.ProximityThresholdDegrees, rng, logger)
	snapshots := cache.New()

	seedLocations := make([]points.SeedLocation, len(cfg.Geocoding.Gazetteer))
	for i, loc := range cfg.Geocoding.Gazetteer {
		seedLocations[i] = points.SeedLocation{Name: loc.Name, Latitude: loc.Lat, Longitude: loc.Lng}
	}

	trafficService := services.NewTrafficService(engine, backendClient, snapshots,
		cfg.Backend.PollingInterval, seedLocations, cfg.Merge.SeedPointCount, logger)
	routesService := services.NewRoutesService(backendClient, osrmClient,
		cfg.Routing.AverageSpeedKmh, cfg.Routing.DebounceDelay, rng, logger)
	geocodeService := services.NewGeocodeService(cfg.Geocoding.Gazetteer, nominatimClient, rng, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go trafficService.Run(ctx)
	go pushChannel.Run(ctx)
	go trafficService.ConsumePush(ctx, pushChannel.Messages())
	go logChannelStates(pushChannel, logger)

	apiServer := server.New(trafficService, routesService, geocodeService, cfg.Server.CorsOrigins, logger)
	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      apiServer.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening",
			zap.Int("port", cfg.Server.Port),
			zap.String("backend", cfg.Backend.BaseURL),
			zap.Int("gazetteer_entries", len(cfg.Geocoding.Gazetteer)))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	cancel()
	trafficService.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return httpServer.Shutdown(shutdownCtx)
}

func buildLogger() (*zap.Logger, error) {
	if devMode {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func logChannelStates(ch *push.Channel, logger *zap.Logger) {
	for state := range ch.States() {
		logger.Info("push channel state changed", zap.String("state", string(state)))
	}
}
