// Package domain はドメインモデルとビジネスルールを定義する。
package domain

// KeyMaterialSize は生成する鍵素材のバイト長（AES-128 = 128 bits = 16 bytes）。
const KeyMaterialSize = 16

// KeyRecord はアカウントと鍵IDと鍵素材の対応を表す。
type KeyRecord struct {
	Account string
	KeyID   int64
	// EncryptionKey はエンコード済みの鍵素材。初回の鍵取得まではnil。
	EncryptionKey *string
}

// HasKey は鍵素材が生成済みかどうかを返す。
func (r *KeyRecord) HasKey() bool {
	return r.EncryptionKey != nil && *r.EncryptionKey != ""
}
