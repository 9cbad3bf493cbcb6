// Package usecase はアプリケーションのユースケースを実装する。
package usecase

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"crypto-keystore/internal/domain"
)

// キーストアドライバの種別。
const (
	DriverSQL  = "sql"
	DriverNull = "null"
	// DriverFake は DriverNull の別名。
	DriverFake = "fake"
)

// KeyStore はアカウントごとの鍵IDと鍵素材を提供する。
type KeyStore interface {
	// GetKeyID はアカウントに対応する鍵IDを返す。未登録なら割り当てる。
	GetKeyID(ctx context.Context, account string) (int64, error)
	// GetKey は鍵IDに対応する鍵素材を返す。未生成なら生成して保存する。
	GetKey(ctx context.Context, keyID any) ([]byte, error)
	// ValidateKeyID は鍵IDの形式を検証する。
	ValidateKeyID(keyID any) error
	// Sync はストアのスキーマを最新にする。
	Sync(ctx context.Context) error
}

// KeyRepository はデータアクセスのインターフェース。
type KeyRepository interface {
	FindByAccount(ctx context.Context, account string) (*domain.KeyRecord, error)
	FindByKeyID(ctx context.Context, keyID int64) (*domain.KeyRecord, error)
	InsertAccount(ctx context.Context, account string) (bool, error)
	SetEncryptionKeyIfNull(ctx context.Context, keyID int64, encoded string) (bool, error)
}

// Reconnector はストアへの接続を確認・再確立する。
type Reconnector interface {
	Reconnect(ctx context.Context) error
}

// SchemaMigrator はスキーママイグレーションを適用する。
type SchemaMigrator interface {
	Upgrade(ctx context.Context, target string) (int, error)
	VersionControl(ctx context.Context, target string) error
}

// KMSClient は鍵素材を保存前に暗号化/復号するインターフェース。
type KMSClient interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}

// SQLKeyStore はSQLデータベースに鍵情報を保存するKeyStore。
type SQLKeyStore struct {
	repo     KeyRepository
	conn     Reconnector
	migrator SchemaMigrator
	kms      KMSClient
	rand     io.Reader
}

// NewSQLKeyStore は新しいSQLKeyStoreを生成する。
func NewSQLKeyStore(repo KeyRepository, conn Reconnector, migrator SchemaMigrator) *SQLKeyStore {
	return &SQLKeyStore{
		repo:     repo,
		conn:     conn,
		migrator: migrator,
		rand:     rand.Reader,
	}
}

// WithKMS は鍵素材をKMSで暗号化して保存するよう設定する。
func (s *SQLKeyStore) WithKMS(kms KMSClient) *SQLKeyStore {
	s.kms = kms
	return s
}

// generateKeyMaterial はAES-128用の鍵素材を生成する。
func (s *SQLKeyStore) generateKeyMaterial() ([]byte, error) {
	key := make([]byte, domain.KeyMaterialSize)
	if _, err := io.ReadFull(s.rand, key); err != nil {
		return nil, fmt.Errorf("generating random key: %w", err)
	}
	return key, nil
}

// GetKeyID は指定されたアカウントの鍵IDを返す。
// 未登録の場合はレコードを作成する。同時に初回呼び出しがあっても一意制約により同じIDに収束する。
func (s *SQLKeyStore) GetKeyID(ctx context.Context, account string) (int64, error) {
	if account == "" {
		return 0, domain.ErrInvalidAccount
	}

	if err := s.conn.Reconnect(ctx); err != nil {
		return 0, err
	}
	record, err := s.repo.FindByAccount(ctx, account)
	if err != nil {
		return 0, fmt.Errorf("finding key record: %w", err)
	}
	if record != nil {
		return record.KeyID, nil
	}

	if err := s.conn.Reconnect(ctx); err != nil {
		return 0, err
	}
	if _, err := s.repo.InsertAccount(ctx, account); err != nil {
		return 0, fmt.Errorf("creating key record: %w", err)
	}

	// 競合した場合も含め、確定したレコードを読み直す
	record, err = s.repo.FindByAccount(ctx, account)
	if err != nil {
		return 0, fmt.Errorf("finding key record: %w", err)
	}
	if record == nil {
		return 0, fmt.Errorf("key record for account %q vanished after insert", account)
	}
	return record.KeyID, nil
}

// GetKey は指定された鍵IDの鍵素材を返す。
// 鍵素材が未生成の場合は生成し、未設定の場合に限り保存する。
// 他のプロセスが先に保存した場合はそちらの鍵素材を返す。
func (s *SQLKeyStore) GetKey(ctx context.Context, keyID any) ([]byte, error) {
	id, err := domain.ParseKeyID(keyID)
	if err != nil {
		return nil, err
	}

	if err := s.conn.Reconnect(ctx); err != nil {
		return nil, err
	}
	record, err := s.repo.FindByKeyID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("finding key record: %w", err)
	}
	if record == nil {
		return nil, domain.UnknownKeyError(id)
	}
	if record.HasKey() {
		return s.decode(ctx, *record.EncryptionKey)
	}

	key, err := s.generateKeyMaterial()
	if err != nil {
		return nil, err
	}
	encoded, err := s.encode(ctx, key)
	if err != nil {
		return nil, err
	}

	if err := s.conn.Reconnect(ctx); err != nil {
		return nil, err
	}
	updated, err := s.repo.SetEncryptionKeyIfNull(ctx, id, encoded)
	if err != nil {
		return nil, fmt.Errorf("storing key: %w", err)
	}
	if updated {
		return key, nil
	}

	// 競合に負けたので保存済みの鍵素材を使う
	record, err = s.repo.FindByKeyID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("finding key record: %w", err)
	}
	if record == nil {
		return nil, domain.UnknownKeyError(id)
	}
	if !record.HasKey() {
		return nil, fmt.Errorf("key %d was not stored", id)
	}
	return s.decode(ctx, *record.EncryptionKey)
}

// ValidateKeyID は鍵IDの形式を検証する。
func (s *SQLKeyStore) ValidateKeyID(keyID any) error {
	return domain.ValidateKeyID(keyID)
}

// Sync はスキーマを最新バージョンに更新する。
// バージョン管理下にない場合は基点リビジョンで管理を開始してから1度だけ再実行する。
func (s *SQLKeyStore) Sync(ctx context.Context) error {
	if err := s.conn.Reconnect(ctx); err != nil {
		return err
	}

	_, err := s.migrator.Upgrade(ctx, "")
	if err == nil {
		return nil
	}
	if !errors.Is(err, domain.ErrNotVersionControlled) {
		return &domain.MigrationError{Err: err}
	}

	if err := s.migrator.VersionControl(ctx, domain.BaseRevision); err != nil {
		return &domain.MigrationError{Err: err}
	}
	if _, err := s.migrator.Upgrade(ctx, ""); err != nil {
		return &domain.MigrationError{Err: err}
	}
	return nil
}

func (s *SQLKeyStore) encode(ctx context.Context, key []byte) (string, error) {
	stored := key
	if s.kms != nil {
		wrapped, err := s.kms.Encrypt(ctx, key)
		if err != nil {
			return "", fmt.Errorf("encrypting key: %w", err)
		}
		stored = wrapped
	}
	return base64.StdEncoding.EncodeToString(stored), nil
}

func (s *SQLKeyStore) decode(ctx context.Context, encoded string) ([]byte, error) {
	stored, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decoding stored key: %w", err)
	}
	if s.kms == nil {
		return stored, nil
	}
	key, err := s.kms.Decrypt(ctx, stored)
	if err != nil {
		return nil, fmt.Errorf("decrypting key: %w", err)
	}
	return key, nil
}

// NullKeyID と NullKeyMaterial は NullKeyStore が常に返す値。
const NullKeyID int64 = 12345

var nullKeyMaterial = []byte("123456789abcd123")

// NullKeyStore は固定の鍵IDと鍵素材を返すKeyStore。
// 暗号化を無効にした構成やテストで使う。
type NullKeyStore struct{}

// NewNullKeyStore は新しいNullKeyStoreを生成する。
func NewNullKeyStore() *NullKeyStore {
	return &NullKeyStore{}
}

// GetKeyID は常に NullKeyID を返す。
func (NullKeyStore) GetKeyID(ctx context.Context, account string) (int64, error) {
	if account == "" {
		return 0, domain.ErrInvalidAccount
	}
	return NullKeyID, nil
}

// GetKey は鍵IDを検証したうえで固定の鍵素材を返す。
func (NullKeyStore) GetKey(ctx context.Context, keyID any) ([]byte, error) {
	if _, err := domain.ParseKeyID(keyID); err != nil {
		return nil, err
	}
	key := make([]byte, len(nullKeyMaterial))
	copy(key, nullKeyMaterial)
	return key, nil
}

// ValidateKeyID は鍵IDの形式を検証する。
func (NullKeyStore) ValidateKeyID(keyID any) error {
	return domain.ValidateKeyID(keyID)
}

// Sync は何もしない。
func (NullKeyStore) Sync(ctx context.Context) error {
	return nil
}
