// Package repository はデータアクセス層の実装を提供する。
package repository

import (
	"context"
	"errors"
	"log/slog"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"crypto-keystore/internal/domain"
)

// KeyInfoModel はkey_infoテーブルのgorm用モデル定義。
// スキーマ自体はmigrationsパッケージのSQLで管理する。
type KeyInfoModel struct {
	Account       string  `gorm:"column:account;type:varchar(42);not null;uniqueIndex:uk_key_info_account"`
	KeyID         int64   `gorm:"column:key_id;primaryKey;autoIncrement"`
	EncryptionKey *string `gorm:"column:encryption_key;type:text"`
}

// TableName はテーブル名を返す。
func (KeyInfoModel) TableName() string {
	return "key_info"
}

// toDomain はモデルをドメインエンティティに変換する。
func (m *KeyInfoModel) toDomain() *domain.KeyRecord {
	return &domain.KeyRecord{
		Account:       m.Account,
		KeyID:         m.KeyID,
		EncryptionKey: m.EncryptionKey,
	}
}

// KeyRepository はkey_infoテーブルへのデータアクセスを提供する。
type KeyRepository struct {
	db *gorm.DB
}

// NewKeyRepository は新しいKeyRepositoryを生成する。
func NewKeyRepository(db *gorm.DB) *KeyRepository {
	return &KeyRepository{db: db}
}

// FindByAccount は指定されたアカウントのレコードを取得する。存在しない場合はnilを返す。
func (r *KeyRepository) FindByAccount(ctx context.Context, account string) (*domain.KeyRecord, error) {
	var model KeyInfoModel
	err := r.db.WithContext(ctx).
		Where("account = ?", account).
		Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.ErrorContext(ctx, "failed to find key record by account",
			"operation", "find_by_account",
			"account", account,
			"error", err,
		)
		return nil, err
	}
	return model.toDomain(), nil
}

// FindByKeyID は指定された鍵IDのレコードを取得する。存在しない場合はnilを返す。
func (r *KeyRepository) FindByKeyID(ctx context.Context, keyID int64) (*domain.KeyRecord, error) {
	var model KeyInfoModel
	err := r.db.WithContext(ctx).
		Where("key_id = ?", keyID).
		Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.ErrorContext(ctx, "failed to find key record by key_id",
			"operation", "find_by_key_id",
			"key_id", keyID,
			"error", err,
		)
		return nil, err
	}
	return model.toDomain(), nil
}

// InsertAccount は鍵素材未設定のレコードを作成する。
// 同じアカウントが既に存在する場合は一意制約の競合として何もしない。
// 作成した場合はtrueを返す。
func (r *KeyRepository) InsertAccount(ctx context.Context, account string) (bool, error) {
	model := &KeyInfoModel{Account: account}
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "account"}},
			DoNothing: true,
		}).
		Create(model)
	if result.Error != nil {
		slog.ErrorContext(ctx, "failed to insert key record",
			"operation", "insert_account",
			"account", account,
			"error", result.Error,
		)
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// SetEncryptionKeyIfNull は鍵素材が未設定（NULLまたは空文字列）の場合に限り値を書き込む。
// 他のプロセスが先に書き込んでいた場合はfalseを返す。
func (r *KeyRepository) SetEncryptionKeyIfNull(ctx context.Context, keyID int64, encoded string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&KeyInfoModel{}).
		Where("key_id = ? AND (encryption_key IS NULL OR encryption_key = '')", keyID).
		Update("encryption_key", encoded)
	if result.Error != nil {
		slog.ErrorContext(ctx, "failed to set encryption key",
			"operation", "set_encryption_key_if_null",
			"key_id", keyID,
			"error", result.Error,
		)
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}
