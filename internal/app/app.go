// Package app wires configuration into stores, services and the event bus.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"liveclass/internal/attendance"
	"liveclass/internal/classes"
	"liveclass/internal/config"
	"liveclass/internal/events"
	"liveclass/internal/httpapi"
	"liveclass/internal/meeting"
	"liveclass/internal/memstore"
	"liveclass/internal/roster"
	"liveclass/internal/store"
)

// App is the assembled service graph shared by the API and the worker.
type App struct {
	Config     config.App
	Log        *zap.Logger
	DB         *store.DB
	Redis      *store.Redis
	Bus        events.Bus
	Students   roster.Registry
	Classes    *classes.Service
	Attendance *attendance.Service
	Meeting    classes.RoomProvider

	checks map[string]httpapi.HealthCheck
}

type stores struct {
	sessions classes.Store
	records  attendance.Store
	students roster.Registry
}

// New connects the configured backends and builds the services. Call Close when done.
func New(ctx context.Context, cfg config.App, log *zap.Logger) (*App, error) {
	a := &App{Config: cfg, Log: log, checks: make(map[string]httpapi.HealthCheck)}

	st, err := a.openStores(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	if cfg.EventsBackend == "redis" || cfg.StoreBackend == "postgres" {
		a.Redis = store.NewRedis(cfg.RedisAddr)
		a.checks["redis"] = a.Redis.Healthy
		if !a.Redis.Healthy(ctx) {
			log.Warn("redis not reachable at startup", zap.String("addr", cfg.RedisAddr))
		}
	}

	a.Students = st.students
	if cfg.StoreBackend == "postgres" {
		a.Students = roster.NewCached(st.students, a.Redis.Client, cfg.RosterCacheTTL, log)
	}

	switch cfg.EventsBackend {
	case "memory":
		a.Bus = events.NewInMemory(64)
	case "redis":
		a.Bus = events.NewRedisBus(a.Redis.Client, "liveclass:events:")
	default:
		a.Close()
		return nil, fmt.Errorf("unknown events backend %q", cfg.EventsBackend)
	}

	switch cfg.MeetingBackend {
	case "jitsi":
		a.Meeting = meeting.NewJitsi(cfg.MeetingBaseURL)
	case "http":
		client := meeting.New(cfg.MeetingServiceURL, cfg.MeetingSkip)
		if err := client.Health(ctx); err != nil {
			log.Warn("meeting service not available", zap.Error(err))
		}
		a.checks["meeting"] = func(ctx context.Context) bool { return client.Health(ctx) == nil }
		a.Meeting = client
	default:
		a.Close()
		return nil, fmt.Errorf("unknown meeting backend %q", cfg.MeetingBackend)
	}

	a.Attendance = attendance.NewService(st.records, st.sessions, a.Students, log, attendance.WithPublisher(a.Bus))
	a.Classes = classes.NewService(st.sessions, a.Attendance, a.Meeting, a.Bus, log, classes.Options{
		ExpireAfter:       cfg.ExpireAfter,
		ManualExpireAfter: cfg.ManualExpireAfter,
		UpcomingGrace:     cfg.UpcomingGrace,
		Programs:          cfg.Programs,
	})
	return a, nil
}

func (a *App) openStores(ctx context.Context) (stores, error) {
	switch a.Config.StoreBackend {
	case "memory":
		db := memstore.New()
		a.Log.Warn("using in-memory store; data is lost on restart")
		return stores{sessions: db.Sessions(), records: db.Attendance(), students: db.Roster()}, nil
	case "postgres":
		db, err := store.NewDB(ctx, a.Config.DatabaseURL)
		if err != nil {
			return stores{}, fmt.Errorf("connect postgres: %w", err)
		}
		a.DB = db
		if err := db.Migrate(ctx); err != nil {
			return stores{}, err
		}
		a.checks["db"] = db.Healthy
		return stores{
			sessions: classes.NewRepository(db.Client),
			records:  attendance.NewRepository(db.Client),
			students: roster.NewRepository(db.Client),
		}, nil
	default:
		return stores{}, fmt.Errorf("unknown store backend %q", a.Config.StoreBackend)
	}
}

// Checks returns the dependency probes for /healthz.
func (a *App) Checks() map[string]httpapi.HealthCheck {
	return a.checks
}

// Close releases connections.
func (a *App) Close() {
	if err := a.Redis.Close(); err != nil {
		a.Log.Warn("close redis", zap.Error(err))
	}
	if err := a.DB.Close(); err != nil {
		a.Log.Warn("close postgres", zap.Error(err))
	}
}
