package infra

import (
	"context"
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"crypto-keystore/config"
	"crypto-keystore/internal/domain"
	"crypto-keystore/internal/repository"
	"crypto-keystore/internal/usecase"
	"crypto-keystore/migrations"
)

// KeyStore は設定から組み立てたキーストアと、その下回りのリソースをまとめたもの。
type KeyStore struct {
	usecase.KeyStore

	// 以下は sql ドライバの場合のみ設定される。
	DB         *gorm.DB
	Conn       *ConnectionManager
	Migrations *usecase.MigrationService

	kms *KMSClient
}

// OpenKeyStore は設定された crypto_keystore_driver に従ってキーストアを生成する。
// sql ドライバで crypto_keystore_sync_on_start が有効な場合はスキーマも同期する。
func OpenKeyStore(ctx context.Context, cfg *config.Config) (*KeyStore, error) {
	switch cfg.KeystoreDriver {
	case usecase.DriverNull, usecase.DriverFake:
		return &KeyStore{KeyStore: usecase.NewNullKeyStore()}, nil
	case usecase.DriverSQL:
	default:
		return nil, fmt.Errorf("%w: crypto_keystore_driver=%q", domain.ErrUnknownDriver, cfg.KeystoreDriver)
	}

	db, err := NewDB(cfg.KeystoreSQLURL, cfg.OtelEnabled)
	if err != nil {
		return nil, fmt.Errorf("opening keystore database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	conn := NewConnectionManager(sqlDB, DefaultRetryPolicy(cfg.KeystoreConnectionAttempts))
	dialect := db.Dialector.Name()
	if dialect == "mysql" {
		conn.WithHealthCheck(MySQLHealthCheck(sqlDB))
	}

	files, err := migrations.ForDialect(dialect)
	if err != nil {
		sqlDB.Close()
		return nil, err
	}
	migrationService := usecase.NewMigrationService(repository.NewMigrationRepository(db), db, files)
	store := usecase.NewSQLKeyStore(repository.NewKeyRepository(db), conn, migrationService)

	ks := &KeyStore{
		KeyStore:   store,
		DB:         db,
		Conn:       conn,
		Migrations: migrationService,
	}

	if cfg.KeystoreKMSKeyName != "" {
		kmsClient, err := NewKMSClient(ctx, cfg.KeystoreKMSKeyName)
		if err != nil {
			sqlDB.Close()
			return nil, err
		}
		store.WithKMS(kmsClient)
		ks.kms = kmsClient
	}

	if cfg.KeystoreSyncOnStart {
		if err := store.Sync(ctx); err != nil {
			ks.Close()
			return nil, err
		}
		slog.InfoContext(ctx, "keystore schema synced", "dialect", dialect)
	}

	return ks, nil
}

// Close はキーストアが保持するリソースを解放する。
func (k *KeyStore) Close() error {
	var firstErr error
	if k.kms != nil {
		if err := k.kms.Close(); err != nil {
			firstErr = err
		}
	}
	if k.DB != nil {
		sqlDB, err := k.DB.DB()
		if err == nil {
			err = sqlDB.Close()
		}
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
