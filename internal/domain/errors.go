package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownKey は指定された鍵IDのレコードが存在しない場合のエラー。
	ErrUnknownKey = errors.New("unknown key id")

	// ErrInvalidKeyID は鍵IDが数字以外を含む、または負数の場合のエラー。
	ErrInvalidKeyID = errors.New("invalid key id")

	// ErrTypeMismatch は鍵IDの型が文字列・整数のいずれでもない場合のエラー。
	ErrTypeMismatch = errors.New("key id type mismatch")

	// ErrInvalidAccount はアカウント名が空、または形式が不正な場合のエラー。
	ErrInvalidAccount = errors.New("invalid account")

	// ErrConnection はストアへの接続に失敗した場合のエラー。
	ErrConnection = errors.New("keystore connection failed")

	// ErrUnsupportedProtocol は暗号プロトコルが未登録の場合のエラー。
	ErrUnsupportedProtocol = errors.New("unsupported crypto protocol")

	// ErrKeyNotLoaded は鍵素材の取得前に暗号化・復号を呼び出した場合のエラー。
	ErrKeyNotLoaded = errors.New("key value is not loaded")

	// ErrInvalidCiphertext は暗号文の長さやパディングが不正な場合のエラー。
	ErrInvalidCiphertext = errors.New("invalid ciphertext")

	// ErrUnknownDriver は設定されたドライバ名が未知の場合のエラー。
	ErrUnknownDriver = errors.New("unknown driver")

	// ErrNotVersionControlled はスキーマがバージョン管理下にない場合のエラー。
	ErrNotVersionControlled = errors.New("database is not under version control")

	// ErrMigrationFailed はマイグレーション実行時のエラー。
	ErrMigrationFailed = errors.New("migration failed")

	// ErrInvalidMigrationFile はマイグレーションファイルのフォーマットが不正な場合のエラー。
	ErrInvalidMigrationFile = errors.New("invalid migration file")
)

// KeyIDError は鍵IDに起因するエラー（不正値・型不一致・未登録）を表す。
type KeyIDError struct {
	KeyID any
	Err   error
}

func (e *KeyIDError) Error() string {
	return fmt.Sprintf("%v: %#v", e.Err, e.KeyID)
}

func (e *KeyIDError) Unwrap() error { return e.Err }

// InvalidKeyIDError は数字以外を含む、または負の鍵IDのエラーを生成する。
func InvalidKeyIDError(keyID any) error {
	return &KeyIDError{KeyID: keyID, Err: ErrInvalidKeyID}
}

// TypeMismatchError は文字列・整数以外の鍵IDのエラーを生成する。
func TypeMismatchError(keyID any) error {
	return &KeyIDError{KeyID: keyID, Err: ErrTypeMismatch}
}

// UnknownKeyError はレコードが存在しない鍵IDのエラーを生成する。
func UnknownKeyError(keyID int64) error {
	return &KeyIDError{KeyID: keyID, Err: ErrUnknownKey}
}

// ConnectionError は再接続の試行回数を使い切った場合のエラー。
// Err には最後の試行で発生したエラーがそのまま入る。
type ConnectionError struct {
	Attempts int
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%v after %d attempt(s): %v", ErrConnection, e.Attempts, e.Err)
}

func (e *ConnectionError) Is(target error) bool { return target == ErrConnection }

func (e *ConnectionError) Unwrap() error { return e.Err }

// UnsupportedProtocolError は未登録の暗号プロトコルが設定された場合のエラー。
type UnsupportedProtocolError struct {
	Protocol string
}

func (e *UnsupportedProtocolError) Error() string {
	return fmt.Sprintf("%v: %q", ErrUnsupportedProtocol, e.Protocol)
}

func (e *UnsupportedProtocolError) Unwrap() error { return ErrUnsupportedProtocol }

// MigrationError はバージョン管理の初期化後もスキーマ同期に失敗した場合のエラー。
type MigrationError struct {
	Err error
}

func (e *MigrationError) Error() string {
	return fmt.Sprintf("%v: %v", ErrMigrationFailed, e.Err)
}

func (e *MigrationError) Is(target error) bool { return target == ErrMigrationFailed }

func (e *MigrationError) Unwrap() error { return e.Err }
