// README: Entry point; loads config, wires stores and services, starts the HTTP server.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	firebase "firebase.google.com/go/v4"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"ridedispatch/internal/config"
	httptransport "ridedispatch/internal/http"
	"ridedispatch/internal/infra"
	"ridedispatch/internal/logging"
	"ridedispatch/internal/modules/driver"
	"ridedispatch/internal/modules/location"
	"ridedispatch/internal/modules/matching"
	"ridedispatch/internal/modules/notify"
	"ridedispatch/internal/modules/pricing"
	"ridedispatch/internal/modules/ride"
	"ridedispatch/internal/modules/route"
	"ridedispatch/internal/storage/memory"
	"ridedispatch/internal/types"
)

// stores is the persistence backend selected by ARK_STORE.
type stores struct {
	drivers interface {
		driver.Store
		matching.DriverSource
		location.VehicleStore
	}
	rides  ride.Store
	routes route.Store
	prices pricing.Source
	index  location.GeoIndex
	cache  route.Cache
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatal(err)
	}
	log := logging.Setup(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clock := types.SystemClock{}
	loc := cfg.Location()

	if cfg.Firebase.ProjectID == "" {
		log.Fatal("ARK_FIREBASE_PROJECT_ID is required")
	}
	app, err := infra.NewFirebaseApp(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile, cfg.Firebase.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("firebase init")
	}
	verifier, err := infra.NewFirebaseVerifier(ctx, app)
	if err != nil {
		log.WithError(err).Fatal("firebase auth init")
	}

	st, closeStores := openStores(ctx, cfg, clock, log)
	defer closeStores()

	mapsClient, err := route.NewMapsClient(cfg.Maps.APIKey)
	if err != nil {
		log.WithError(err).Fatal("ARK_MAPS_API_KEY is required")
	}
	mapsOpts := route.Options{Language: cfg.Maps.Language, Region: cfg.Maps.Region}
	routes := route.NewResolver(mapsClient, st.routes, st.cache, clock, mapsOpts, log.WithField("module", "route"))
	places := route.NewPlaces(mapsClient, mapsOpts)

	pricingSvc := pricing.NewService(st.prices)
	driverSvc := driver.NewService(st.drivers, clock, loc, cfg.Matching.DailyLimitSeconds, log.WithField("module", "driver"))
	locationSvc := location.NewService(st.drivers, st.index)

	matchCfg := matching.Config{
		DailyLimitSeconds: cfg.Matching.DailyLimitSeconds,
		EndingSoonWindow:  cfg.Matching.EndingSoonWindow,
		ConflictBuffer:    cfg.Matching.ConflictBuffer,
	}
	avail := matching.NewAvailability(st.drivers, st.rides, clock, loc, matchCfg.DailyLimitSeconds)
	matcher := matching.NewService(avail, clock, matchCfg, log.WithField("module", "matching"))

	notifier, closeSinks := openSinks(ctx, cfg, app, log)
	defer closeSinks()

	rideSvc := ride.NewService(st.rides, matcher, routes, pricingSvc, notifier, clock, ride.Policy{
		CancelWindow:      cfg.Rides.CancelWindow,
		ReviewWindow:      cfg.Rides.ReviewWindow,
		MaxAssignAttempts: cfg.Rides.MaxAssignAttempts,
	}, log.WithField("module", "ride"))

	server := httptransport.NewServer(httptransport.ServerDeps{
		Rides:    rideSvc,
		Drivers:  driverSvc,
		Location: locationSvc,
		Pricing:  pricingSvc,
		Places:   places,
		Verifier: verifier,
		Log:      log.WithField("module", "http"),
	}, httptransport.Options{
		Addr:            cfg.HTTP.Addr,
		ReadTimeout:     cfg.HTTP.ReadTimeout,
		WriteTimeout:    cfg.HTTP.WriteTimeout,
		ShutdownTimeout: cfg.HTTP.ShutdownTimeout,
	})
	if err := server.Run(ctx); err != nil {
		log.WithError(err).Fatal("http server")
	}
}

func openStores(ctx context.Context, cfg config.Config, clock types.Clock, log *logrus.Logger) (stores, func()) {
	if cfg.Store == "memory" {
		arena := memory.New()
		if cfg.MemorySeed != "" {
			f, err := os.Open(cfg.MemorySeed)
			if err != nil {
				log.WithError(err).Fatal("open memory seed")
			}
			err = arena.LoadSeed(f, clock.Now())
			f.Close()
			if err != nil {
				log.WithError(err).Fatal("load memory seed")
			}
		}
		log.Warn("using in-memory store; data is lost on exit")
		return stores{
			drivers: arena.Drivers(),
			rides:   arena.Rides(),
			routes:  arena.Routes(),
			prices:  arena.Prices(),
			index:   location.NewMemoryIndex(),
		}, func() {}
	}

	pool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		log.WithError(err).Fatal("postgres")
	}
	rdb, err := infra.NewRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password)
	if err != nil {
		log.WithError(err).Fatal("redis")
	}
	return pgStores(pool, rdb, cfg), func() {
		_ = rdb.Close()
		pool.Close()
	}
}

func pgStores(pool *pgxpool.Pool, rdb *redis.Client, cfg config.Config) stores {
	return stores{
		drivers: driver.NewStore(pool),
		rides:   ride.NewStore(pool),
		routes:  route.NewStore(pool),
		prices:  pricing.NewStore(pool),
		index:   location.NewRedisIndex(rdb),
		cache:   route.NewRedisCache(rdb, cfg.Maps.CacheTTL),
	}
}

// openSinks always logs events and fans out to every configured broker.
func openSinks(ctx context.Context, cfg config.Config, app *firebase.App, log *logrus.Logger) (*notify.Multi, func()) {
	multi := notify.NewMulti().Add("log", notify.NewLogEmitter(log.WithField("module", "events")))
	var closers []func() error

	if len(cfg.Events.KafkaBrokers) > 0 {
		k := notify.NewKafkaEmitter(cfg.Events.KafkaBrokers, cfg.Events.KafkaTopic)
		multi.Add("kafka", k)
		closers = append(closers, k.Close)
	}
	if cfg.Events.RabbitURL != "" {
		r, err := notify.NewRabbitEmitter(cfg.Events.RabbitURL, cfg.Events.RabbitExchange)
		if err != nil {
			log.WithError(err).Fatal("rabbitmq")
		}
		multi.Add("rabbitmq", r)
		closers = append(closers, r.Close)
	}
	if cfg.Events.Push {
		msg, err := app.Messaging(ctx)
		if err != nil {
			log.WithError(err).Fatal("firebase messaging")
		}
		rtdb, err := app.Database(ctx)
		if err != nil {
			log.WithError(err).Fatal("firebase database")
		}
		multi.Add("push", notify.NewPushEmitter(notify.NewRTDBTokens(rtdb), msg, log.WithField("module", "push")))
	}
	log.WithField("sinks", multi.Len()).Info("event sinks ready")

	return multi, func() {
		for _, c := range closers {
			if err := c(); err != nil {
				log.WithError(err).Warn("closing event sink")
			}
		}
	}
}
