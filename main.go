package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/streadway/amqp"

	"food-delivery/tracking/broadcast"
	"food-delivery/tracking/config"
	"food-delivery/tracking/durable"
	"food-delivery/tracking/events"
	"food-delivery/tracking/geofence"
	"food-delivery/tracking/handlers"
	"food-delivery/tracking/location"
	"food-delivery/tracking/position"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel})))

	if err := run(cfg); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	positions, redisCap, closeRedis := setupPositions(ctx, cfg)
	defer closeRedis()

	zones, pgCap, closePostgres := setupZones(ctx, cfg)
	defer closePostgres()

	sink, kafkaCap, amqpCap := setupEventSinks(ctx, cfg)
	metrics := handlers.Metrics{}
	pipeline := events.NewPipeline(sink, cfg.Tracking.EventBuffer, metrics.EventDropped)
	defer func() {
		if err := pipeline.Close(); err != nil {
			slog.Warn("event sinks closed with errors", "error", err)
		}
	}()

	gw := location.NewGateway(positions, zones, broadcast.NewDispatcher(broadcast.NewRegistry()),
		location.WithEvents(pipeline),
		location.WithObserver(metrics),
		location.WithLogger(slog.Default()),
	)

	mqttCap, stopMQTT := setupMQTT(cfg, gw)
	defer stopMQTT()

	srv := handlers.NewServer(handlers.Deps{
		Gateway:    gw,
		Positions:  positions,
		Zones:      zones,
		Backends:   []*durable.Capability{redisCap, pgCap, kafkaCap, amqpCap, mqttCap},
		JWTSecret:  cfg.JWT.SecretKey,
		OutboxSize: cfg.Tracking.OutboxSize,
	})
	app := handlers.NewApp(srv, handlers.AppConfig{
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxConnections: cfg.Server.MaxConnections,
		AccessLog:      cfg.Server.AccessLog,
	})

	go func() {
		<-ctx.Done()
		slog.Info("gracefully shutting down")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			slog.Warn("shutdown", "error", err)
		}
	}()

	slog.Info("server starting", "port", cfg.Server.Port)
	return app.Listen(":" + cfg.Server.Port)
}

func setupPositions(ctx context.Context, cfg *config.Config) (*position.Store, *durable.Capability, func()) {
	if cfg.Redis.Addr == "" {
		slog.Info("redis disabled, positions are kept in memory only")
		store := position.NewStore(nil, nil)
		go store.SweepEvery(ctx, cfg.Tracking.SweepInterval, cfg.Tracking.PositionTTL)
		return store, durable.Disabled("redis"), func() {}
	}

	capability := durable.New("redis")
	rdb, err := config.NewRedis(ctx, cfg)
	if err != nil {
		capability.MarkDegraded(err)
	}
	mirror := position.NewRedisMirror(rdb, cfg.Tracking.PositionTTL)
	go capability.Watch(ctx, cfg.Tracking.HealthInterval, mirror.Ping)

	store := position.NewStore(mirror, capability)
	go store.SweepEvery(ctx, cfg.Tracking.SweepInterval, cfg.Tracking.PositionTTL)
	return store, capability, func() { _ = rdb.Close() }
}

func setupZones(ctx context.Context, cfg *config.Config) (*geofence.Index, *durable.Capability, func()) {
	capability := durable.Disabled("postgres")
	closeDB := func() {}

	var repo geofence.Repository
	if cfg.Postgres.DSN != "" {
		db, err := config.NewPostgres(ctx, cfg)
		if db == nil {
			slog.Error("postgres disabled", "error", err)
		} else {
			pg := geofence.NewPostgresRepository(db)
			capability = durable.New("postgres")
			ping := func(ctx context.Context) error {
				if err := pg.Ping(ctx); err != nil {
					return err
				}
				return pg.EnsureSchema(ctx)
			}
			if err == nil {
				err = ping(ctx)
			}
			if err != nil {
				capability.MarkDegraded(err)
			}
			go capability.Watch(ctx, cfg.Tracking.HealthInterval, ping)
			repo = pg
			closeDB = func() { _ = db.Close() }
		}
	}

	idx := geofence.NewIndex(repo, capability)
	if err := idx.Refresh(ctx); err != nil {
		slog.Warn("starting with an empty geofence index", "error", err)
	}
	if repo != nil {
		go idx.RefreshEvery(ctx, cfg.Tracking.RefreshInterval)
	}
	seedZones(ctx, cfg, idx)
	return idx, capability, closeDB
}

// seedZones registers zones from the seed file that the index does not
// already know by name.
func seedZones(ctx context.Context, cfg *config.Config, idx *geofence.Index) {
	if cfg.Tracking.ZoneSeedFile == "" {
		return
	}
	seeds, err := config.LoadZoneSeed(cfg.Tracking.ZoneSeedFile)
	if err != nil {
		slog.Error("zone seed ignored", "error", err)
		return
	}

	known := make(map[string]bool)
	for _, z := range idx.Zones() {
		known[z.Name] = true
	}
	for _, seed := range seeds {
		if known[seed.Name] {
			continue
		}
		zone, err := idx.AddZone(ctx, seed.Name, seed.Ring(), "seed")
		if err != nil {
			slog.Warn("seed zone rejected", "name", seed.Name, "error", err)
			continue
		}
		slog.Info("seed zone registered", "zone_id", zone.ID, "name", zone.Name)
	}
}

func setupEventSinks(ctx context.Context, cfg *config.Config) (events.Sink, *durable.Capability, *durable.Capability) {
	var sinks events.Multi
	kafkaCap := durable.Disabled("kafka")
	amqpCap := durable.Disabled("rabbitmq")

	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := config.NewKafka(cfg)
		if err != nil {
			slog.Error("kafka events disabled", "error", err)
		} else {
			kafkaCap = durable.New("kafka")
			sinks = append(sinks, events.NewKafkaSink(producer, cfg.Kafka.Topic, kafkaCap))
		}
	}

	if cfg.RabbitMQ.URL != "" {
		conn, err := config.NewRabbitMQ(ctx, cfg)
		if err != nil {
			slog.Error("rabbitmq events disabled", "error", err)
		} else if sink, err := events.NewAMQPSink(conn, cfg.RabbitMQ.ExchangeName); err != nil {
			slog.Error("rabbitmq events disabled", "error", err)
			_ = conn.Close()
		} else {
			amqpCap = durable.New("rabbitmq")
			closed := conn.NotifyClose(make(chan *amqp.Error, 1))
			go func() {
				if e := <-closed; e != nil {
					amqpCap.MarkDegraded(e)
				}
			}()
			sinks = append(sinks, sink)
		}
	}

	if len(sinks) == 0 {
		return nil, kafkaCap, amqpCap
	}
	return sinks, kafkaCap, amqpCap
}

func setupMQTT(cfg *config.Config, gw *location.Gateway) (*durable.Capability, func()) {
	if cfg.MQTT.Broker == "" {
		return durable.Disabled("mqtt"), func() {}
	}

	mqttCap := durable.New("mqtt")
	client, err := config.NewMQTT(cfg, mqttCap)
	if err != nil {
		slog.Error("mqtt ingest disabled", "error", err)
		return durable.Disabled("mqtt"), func() {}
	}
	ingest := location.NewMQTTIngest(client, gw, cfg.MQTT.Topic)
	if err := ingest.Start(); err != nil {
		slog.Error("mqtt subscribe failed", "topic", cfg.MQTT.Topic, "error", err)
		client.Disconnect(250)
		return durable.Disabled("mqtt"), func() {}
	}
	slog.Info("mqtt ingest started", "topic", cfg.MQTT.Topic)

	return mqttCap, func() {
		_ = ingest.Stop()
		client.Disconnect(250)
	}
}
