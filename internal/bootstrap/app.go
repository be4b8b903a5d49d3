package bootstrap

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/aken1023/llamaindex-faiss-system1/internal/app"
	"github.com/aken1023/llamaindex-faiss-system1/internal/config"
	"github.com/aken1023/llamaindex-faiss-system1/internal/model"
	"github.com/aken1023/llamaindex-faiss-system1/internal/pkg/logger"
	mysqlClient "github.com/aken1023/llamaindex-faiss-system1/internal/platform/mysql"
	rabbitmqClient "github.com/aken1023/llamaindex-faiss-system1/internal/platform/rabbitmq"
	redisClient "github.com/aken1023/llamaindex-faiss-system1/internal/platform/redis"
	"github.com/aken1023/llamaindex-faiss-system1/internal/repository"
	"github.com/aken1023/llamaindex-faiss-system1/internal/worker"
)

type App struct {
	Config      *config.Config
	MySQL       *gorm.DB
	Redis       *redis.Client
	MQConn      *amqp.Connection
	IndexWorker *worker.IndexEventWorker

	StartedAt time.Time
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}

	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		return nil, fmt.Errorf("init logger failed: %w", err)
	}

	mysqlDB, err := mysqlClient.New(ctx, cfg.MySQLDSN(), mysqlClient.Options{
		MaxIdleConns:    cfg.MySQL.MaxIdleConns,
		MaxOpenConns:    cfg.MySQL.MaxOpenConns,
		ConnMaxLifetime: time.Duration(cfg.MySQL.ConnMaxLifetimeMinute) * time.Minute,
	})
	if err != nil {
		return nil, err
	}
	if err := mysqlDB.AutoMigrate(
		&model.User{},
		&model.Document{},
		&model.AIModel{},
		&model.ModelPreference{},
		&model.IndexEvent{},
	); err != nil {
		return nil, fmt.Errorf("auto migrate tables failed: %w", err)
	}

	modelService := app.NewModelService(
		repository.NewAIModelRepository(mysqlDB),
		repository.NewPreferenceRepository(mysqlDB),
	)
	if err := modelService.SeedBuiltIns(); err != nil {
		return nil, fmt.Errorf("seed built-in models failed: %w", err)
	}

	redisCli, err := redisClient.New(ctx, redisClient.Options{
		Addr:        cfg.Redis.Addr,
		Password:    cfg.Redis.Password,
		DB:          cfg.Redis.DB,
		DialTimeout: time.Duration(cfg.Redis.DialTimeoutSeconds) * time.Second,
	})
	if err != nil {
		return nil, err
	}

	mqConn, err := rabbitmqClient.New(ctx, cfg.RabbitMQ.URL)
	if err != nil {
		return nil, err
	}

	indexEventRepo := repository.NewIndexEventRepository(mysqlDB)
	indexWorker := worker.NewIndexEventWorker(mqConn, indexEventRepo, cfg.RabbitMQ.IndexEventQueue)
	if err := indexWorker.Start(ctx); err != nil {
		return nil, fmt.Errorf("start index event worker failed: %w", err)
	}

	return &App{
		Config:      cfg,
		MySQL:       mysqlDB,
		Redis:       redisCli,
		MQConn:      mqConn,
		IndexWorker: indexWorker,
		StartedAt:   time.Now(),
	}, nil
}

func (a *App) Close() error {
	var closeErr error
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.IndexWorker != nil {
		a.IndexWorker.Close()
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MySQL != nil {
		sqlDB, err := a.MySQL.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				closeErr = err
			}
		}
	}
	logger.Sync()
	return closeErr
}
