// Package encryptor はキーストアの鍵素材でオブジェクトを暗号化・復号するドライバを提供する。
package encryptor

import (
	"bytes"
	"context"
	"fmt"

	"crypto-keystore/config"
	"crypto-keystore/internal/domain"
)

// 暗号ドライバの種別。
const (
	DriverNull  = "null"
	DriverBlock = "block"
)

// fillerByte は CryptedLen で暗号文長を測るために暗号化するバイト。
const fillerByte = 'a'

// KeySource は鍵IDから鍵素材を取得する。usecase.KeyStore や keyclient.Client が満たす。
type KeySource interface {
	GetKey(ctx context.Context, keyID any) ([]byte, error)
}

// Driver はオブジェクトの暗号化・復号を行う。
type Driver interface {
	// GetKeyValue は鍵IDに対応する鍵素材を取得してドライバに保持する。
	GetKeyValue(ctx context.Context, keyID any) error
	Crypt(plaintext []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
	// CryptedLen は n バイトの平文を暗号化したときの暗号文長を返す。
	CryptedLen(n int) (int, error)
}

// New は crypto_driver の設定に従って暗号ドライバを生成する。
func New(cfg *config.Config, keys KeySource) (Driver, error) {
	switch cfg.CryptoDriver {
	case DriverNull, "fake":
		return NewNullCipher(), nil
	case DriverBlock, "":
		c, err := NewBlockCipher(cfg.CryptoProtocol, keys)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("%w: crypto_driver=%q", domain.ErrUnknownDriver, cfg.CryptoDriver)
	}
}

// NullCipher は入力をそのまま返すドライバ。暗号化を無効にした構成で使う。
type NullCipher struct{}

// NewNullCipher は新しいNullCipherを生成する。
func NewNullCipher() *NullCipher {
	return &NullCipher{}
}

// GetKeyValue は何もしない。
func (*NullCipher) GetKeyValue(ctx context.Context, keyID any) error {
	return nil
}

func (*NullCipher) Crypt(plaintext []byte) ([]byte, error) {
	return plaintext, nil
}

func (*NullCipher) Decrypt(ciphertext []byte) ([]byte, error) {
	return ciphertext, nil
}

func (*NullCipher) CryptedLen(n int) (int, error) {
	return n, nil
}

// BlockCipher は登録済みのブロック暗号プロトコルで暗号化するドライバ。
// 鍵素材はGetKeyValueで取得したものをインスタンスに保持する。
type BlockCipher struct {
	protocol Protocol
	keys     KeySource
	key      []byte
}

// NewBlockCipher はプロトコル名を検証してBlockCipherを生成する。
// 未登録のプロトコルの場合は *domain.UnsupportedProtocolError を返す。
func NewBlockCipher(protocol string, keys KeySource) (*BlockCipher, error) {
	if protocol == "" {
		protocol = config.DefaultCryptoProtocol
	}
	p, ok := LookupProtocol(protocol)
	if !ok {
		return nil, &domain.UnsupportedProtocolError{Protocol: protocol}
	}
	return &BlockCipher{
		protocol: p,
		keys:     keys,
	}, nil
}

// GetKeyValue はKeySourceから鍵素材を取得して保持する。
func (c *BlockCipher) GetKeyValue(ctx context.Context, keyID any) error {
	if c.keys == nil {
		return fmt.Errorf("no key source configured")
	}
	key, err := c.keys.GetKey(ctx, keyID)
	if err != nil {
		return err
	}
	if len(key) != c.protocol.KeySize() {
		return fmt.Errorf("key %v has %d bytes, %s requires %d", keyID, len(key), c.protocol.Name(), c.protocol.KeySize())
	}
	c.key = key
	return nil
}

func (c *BlockCipher) Crypt(plaintext []byte) ([]byte, error) {
	if c.key == nil {
		return nil, domain.ErrKeyNotLoaded
	}
	return c.protocol.Encrypt(c.key, plaintext)
}

func (c *BlockCipher) Decrypt(ciphertext []byte) ([]byte, error) {
	if c.key == nil {
		return nil, domain.ErrKeyNotLoaded
	}
	return c.protocol.Decrypt(c.key, ciphertext)
}

func (c *BlockCipher) CryptedLen(n int) (int, error) {
	if n < 0 {
		return 0, fmt.Errorf("negative length %d", n)
	}
	ciphertext, err := c.Crypt(bytes.Repeat([]byte{fillerByte}, n))
	if err != nil {
		return 0, err
	}
	return len(ciphertext), nil
}
