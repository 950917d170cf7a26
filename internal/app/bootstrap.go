package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-slot-scheduling/internal/booking"
	"github.com/hackgods/clinic-slot-scheduling/internal/config"
	"github.com/hackgods/clinic-slot-scheduling/internal/db"
	"github.com/hackgods/clinic-slot-scheduling/internal/events"
	"github.com/hackgods/clinic-slot-scheduling/internal/metrics"
	"github.com/hackgods/clinic-slot-scheduling/internal/patient"
	"github.com/hackgods/clinic-slot-scheduling/internal/policy"
	redisclient "github.com/hackgods/clinic-slot-scheduling/internal/redis"
	"github.com/hackgods/clinic-slot-scheduling/internal/rules"
	"github.com/hackgods/clinic-slot-scheduling/internal/scheduling"
	"github.com/hackgods/clinic-slot-scheduling/internal/slot"
)

// Infra holds the external connections shared by the commands.
// Redis and RabbitMQ are nil when not configured or unreachable.
type Infra struct {
	Pool   *pgxpool.Pool
	Redis  *redis.Client
	AMQP   *amqp091.Connection
	Events *amqp091.Channel
	Gemini *rules.GeminiClient

	queue string
	log   *zap.Logger
}

// Connect opens Postgres (required), Redis and RabbitMQ.
func Connect(ctx context.Context, cfg config.Config, log *zap.Logger) (*Infra, error) {
	infra := &Infra{queue: cfg.BookingEventsQueue, log: log}

	pgCtx, cancelPg := context.WithTimeout(ctx, 10*time.Second)
	pool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		return nil, fmt.Errorf("postgres connection error: %w", err)
	}
	infra.Pool = pool
	log.Info("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		// The unique index still prevents double booking without the lock.
		log.Warn("redis unavailable, booking lock disabled", zap.Error(err))
	} else {
		infra.Redis = rdb
		log.Info("connected to Redis", zap.String("addr", cfg.RedisAddr))
	}

	if cfg.RabbitMQURL != "" {
		conn, ch, err := events.DialRabbitMQ(cfg.RabbitMQURL, cfg.BookingEventsQueue)
		if err != nil {
			log.Warn("rabbitmq unavailable, booking events only logged to postgres", zap.Error(err))
		} else {
			infra.AMQP, infra.Events = conn, ch
			log.Info("connected to RabbitMQ", zap.String("queue", cfg.BookingEventsQueue))
		}
	}

	if cfg.GeminiAPIKey != "" {
		gc, err := rules.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			log.Warn("gemini client unavailable, rule translation disabled", zap.Error(err))
		} else {
			infra.Gemini = gc
		}
	}

	return infra, nil
}

func (i *Infra) Close() {
	var errs []error
	if i.Gemini != nil {
		errs = append(errs, i.Gemini.Close())
	}
	if i.AMQP != nil {
		errs = append(errs, i.AMQP.Close())
	}
	if i.Redis != nil {
		errs = append(errs, i.Redis.Close())
	}
	if i.Pool != nil {
		i.Pool.Close()
	}
	if err := errors.Join(errs...); err != nil {
		i.log.Warn("error closing connections", zap.Error(err))
	}
}

// Pingers returns the readiness probes for the configured dependencies.
func (i *Infra) Pingers() map[string]func(context.Context) error {
	out := map[string]func(context.Context) error{
		"postgres": i.Pool.Ping,
	}
	if i.Redis != nil {
		out["redis"] = func(ctx context.Context) error { return i.Redis.Ping(ctx).Err() }
	}
	return out
}

func (i *Infra) Publisher() events.Publisher {
	pubs := events.Fanout{events.NewPgLog(i.Pool)}
	if i.Events != nil {
		pubs = append(pubs, events.NewAMQPPublisher(i.Events, i.queue))
	}
	return pubs
}

// NewService wires the Postgres-backed scheduling service.
func NewService(cfg config.Config, infra *Infra, m *metrics.SchedulingMetrics, log *zap.Logger) *scheduling.Service {
	var locker redisclient.Locker
	if infra.Redis != nil {
		locker = redisclient.NewRedisSlotLocker(infra.Redis, cfg.LockTTL, log)
	}

	var translator rules.Translator
	if infra.Gemini != nil {
		translator = rules.NewLLMTranslator(infra.Gemini, cfg.TranslateMaxRetries, cfg.TranslateBackoff, log)
	}

	return scheduling.NewService(scheduling.Deps{
		Catalog:    slot.NewPgCatalog(infra.Pool),
		Ledger:     booking.NewPgLedger(infra.Pool, locker, log),
		Rules:      rules.NewPgStore(infra.Pool),
		Directory:  patient.NewPgDirectory(infra.Pool),
		Translator: translator,
		Publisher:  infra.Publisher(),
		Metrics:    m,
		Logger:     log,
	}, PolicyTable(cfg), scheduling.Options{MaxOfferedSlots: cfg.MaxOfferedSlots})
}

func PolicyTable(cfg config.Config) policy.Table {
	return policy.Table{
		NewPatientMinutes:       cfg.NewPatientMinutes,
		ReturningPatientMinutes: cfg.ReturningPatientMinutes,
	}
}

// Grid is the configured slot grid. A zero From starts it on the day it is generated.
func Grid(cfg config.Config) slot.Grid {
	return slot.Grid{
		Doctors:   cfg.Doctors,
		Days:      cfg.ScheduleDays,
		StartHour: cfg.DayStartHour,
		EndHour:   cfg.DayEndHour,
	}
}
