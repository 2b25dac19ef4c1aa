package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/and161185/time-capsule/internal/config"
	"github.com/and161185/time-capsule/internal/limiter"
	"github.com/and161185/time-capsule/internal/media"
	"github.com/and161185/time-capsule/internal/migrate"
	"github.com/and161185/time-capsule/internal/notify"
	"github.com/and161185/time-capsule/internal/repository"
	"github.com/and161185/time-capsule/internal/repository/memory"
	"github.com/and161185/time-capsule/internal/repository/postgres"
	"github.com/and161185/time-capsule/internal/service"
)

const mib = 1 << 20

// storage bundles the repositories of one driver.
type storage struct {
	capsules repository.CapsuleRepository
	ledger   repository.DispatchLedger
	owners   interface {
		service.OwnerStore
		repository.OwnerDirectory
	}
	quota limiter.Limiter
	close func()
}

func openStorage(ctx context.Context, cfg *config.Config, log *zap.Logger) (*storage, error) {
	quota := func(build func() limiter.Limiter) limiter.Limiter {
		if cfg.Capsule.CreateQuota <= 0 {
			return limiter.Unlimited{}
		}
		return build()
	}

	if cfg.Database.Driver == "memory" {
		log.Warn("using in-memory storage, data is lost on restart")
		return &storage{
			capsules: memory.NewCapsuleRepo(),
			ledger:   memory.NewLedger(),
			owners:   memory.NewOwners(),
			quota: quota(func() limiter.Limiter {
				return limiter.NewMemory(cfg.Capsule.CreateWindow, cfg.Capsule.CreateQuota)
			}),
			close: func() {},
		}, nil
	}

	if cfg.Database.Migrate {
		if err := migrate.Up(ctx, cfg.Database.DSN, log); err != nil {
			return nil, fmt.Errorf("migrate up: %w", err)
		}
	}
	db, err := postgres.New(ctx, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := db.Pool.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &storage{
		capsules: postgres.NewCapsuleRepo(db),
		ledger:   postgres.NewDispatchRepo(db),
		owners:   postgres.NewOwnerRepo(db),
		quota: quota(func() limiter.Limiter {
			return limiter.NewPG(db.Pool, cfg.Capsule.CreateWindow, cfg.Capsule.CreateQuota)
		}),
		close: db.Close,
	}, nil
}

func newDispatcher(cfg config.NotifyConfig, store *storage, log *zap.Logger) *notify.Dispatcher {
	var transport notify.Notifier
	switch cfg.Driver {
	case "smtp":
		transport = notify.NewSMTPNotifier(notify.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			StartTLS: cfg.SMTPStartTLS,
			Timeout:  cfg.SendTimeout,
		})
	default:
		transport = notify.NewLogNotifier(log)
	}
	guarded := notify.NewBreakerNotifier(transport, notify.BreakerConfig{
		ConsecutiveFailures: cfg.BreakerFailures,
		OpenTimeout:         cfg.BreakerTimeout,
	}, log)
	return notify.NewDispatcher(guarded, store.ledger, store.owners, notify.DispatcherConfig{
		Parallelism: cfg.Parallelism,
		SendTimeout: cfg.SendTimeout,
		ViewURL:     cfg.ViewURL,
	}, log)
}

func mediaLimits(cfg config.MediaConfig) media.Limits {
	return media.Limits{
		MaxItems:      cfg.MaxItems,
		MaxImageBytes: cfg.MaxImageMB * mib,
		MaxVideoBytes: cfg.MaxVideoMB * mib,
	}
}

// newMediaStore returns nil when no bucket is configured.
func newMediaStore(ctx context.Context, cfg config.MediaConfig) (media.Store, error) {
	if cfg.S3Bucket == "" {
		return nil, nil
	}
	s, err := media.NewS3Store(ctx, media.S3Config{
		Bucket:        cfg.S3Bucket,
		Region:        cfg.S3Region,
		Endpoint:      cfg.S3Endpoint,
		AccessKey:     cfg.S3AccessKey,
		SecretKey:     cfg.S3SecretKey,
		PublicBaseURL: cfg.PublicBaseURL,
	}, mediaLimits(cfg))
	if err != nil {
		return nil, fmt.Errorf("media store: %w", err)
	}
	return s, nil
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	if cfg.Level != "" {
		lvl, err := zap.ParseAtomicLevel(cfg.Level)
		if err != nil {
			return nil, err
		}
		zc.Level = lvl
	}
	return zc.Build()
}
