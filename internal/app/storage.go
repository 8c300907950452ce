package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Freeeeeet/scheduler_engine/internal/config"
	"github.com/Freeeeeet/scheduler_engine/internal/repository"
	"github.com/Freeeeeet/scheduler_engine/internal/repository/memory"
	"github.com/Freeeeeet/scheduler_engine/internal/repository/postgres"
	"github.com/Freeeeeet/scheduler_engine/internal/repository/sqlite"
)

// Storage выбранный бэкенд хранилища
type Storage struct {
	Slots         repository.SlotRepository
	Notifications repository.NotificationRepository

	close func()
}

func (s *Storage) Close() {
	if s.close != nil {
		s.close()
	}
}

// OpenStorage подключает бэкенд из конфига и применяет миграции
func OpenStorage(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Storage, error) {
	logger.Info("Opening storage", zap.String("storage", cfg.Storage))

	switch cfg.Storage {
	case config.StorageMemory:
		return &Storage{
			Slots:         memory.NewSlotRepository(),
			Notifications: memory.NewNotificationRepository(),
		}, nil

	case config.StoragePostgres:
		pool, err := postgres.Connect(ctx, cfg.DBDSN)
		if err != nil {
			return nil, err
		}

		migrator, err := NewPostgresMigrator(pool, logger)
		if err != nil {
			pool.Close()
			return nil, err
		}
		defer migrator.Close()

		if err := migrator.Run(ctx); err != nil {
			pool.Close()
			return nil, err
		}

		return &Storage{
			Slots:         postgres.NewSlotRepository(pool),
			Notifications: postgres.NewNotificationRepository(pool),
			close:         pool.Close,
		}, nil

	case config.StorageSQLite:
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}

		migrator, err := NewSQLiteMigrator(db, logger)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		if err := migrator.Run(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}

		return &Storage{
			Slots:         sqlite.NewSlotRepository(db),
			Notifications: sqlite.NewNotificationRepository(db),
			close: func() {
				if err := db.Close(); err != nil {
					logger.Warn("Failed to close sqlite database", zap.Error(err))
				}
			},
		}, nil
	}

	return nil, fmt.Errorf("unknown storage %q", cfg.Storage)
}
