package encryptor

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
	"sort"

	"crypto-keystore/internal/domain"
)

// ProtocolAES128CBC は AES-128-CBC + PKCS#7 パディング。
const ProtocolAES128CBC = "aes_128_cbc"

// legacyIV は既存の暗号文と互換を保つための固定IV。
// TODO: オブジェクトごとにランダムなIVを生成して暗号文と一緒に保存する形式に移行する。
var legacyIV = []byte("3141527182810345")

// Protocol は名前付きの対称暗号アルゴリズムとモードの組。
type Protocol interface {
	Name() string
	KeySize() int
	Encrypt(key, plaintext []byte) ([]byte, error)
	Decrypt(key, ciphertext []byte) ([]byte, error)
}

var protocols = map[string]Protocol{
	ProtocolAES128CBC: cbcProtocol{name: ProtocolAES128CBC, keySize: 16, iv: legacyIV},
}

// LookupProtocol は登録済みのプロトコルを返す。
func LookupProtocol(name string) (Protocol, bool) {
	p, ok := protocols[name]
	return p, ok
}

// SupportedProtocols は登録済みのプロトコル名を返す。
func SupportedProtocols() []string {
	names := make([]string, 0, len(protocols))
	for name := range protocols {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// cbcProtocol はAESのCBCモード。鍵長でAES-128/192/256が決まる。
type cbcProtocol struct {
	name    string
	keySize int
	iv      []byte
}

func (p cbcProtocol) Name() string { return p.name }

func (p cbcProtocol) KeySize() int { return p.keySize }

func (p cbcProtocol) block(key []byte) (cipher.Block, error) {
	if len(key) != p.keySize {
		return nil, fmt.Errorf("%s: invalid key size %d", p.name, len(key))
	}
	return aes.NewCipher(key)
}

func (p cbcProtocol) Encrypt(key, plaintext []byte) ([]byte, error) {
	block, err := p.block(key)
	if err != nil {
		return nil, err
	}
	padded := pkcs7Pad(plaintext, block.BlockSize())
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, p.iv).CryptBlocks(ciphertext, padded)
	return ciphertext, nil
}

func (p cbcProtocol) Decrypt(key, ciphertext []byte) ([]byte, error) {
	block, err := p.block(key)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) == 0 || len(ciphertext)%block.BlockSize() != 0 {
		return nil, fmt.Errorf("%w: length %d is not a multiple of the block size", domain.ErrInvalidCiphertext, len(ciphertext))
	}
	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, p.iv).CryptBlocks(plaintext, ciphertext)
	return pkcs7Unpad(plaintext, block.BlockSize())
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+n)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(n)
	}
	return padded
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, fmt.Errorf("%w: bad padding", domain.ErrInvalidCiphertext)
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, fmt.Errorf("%w: bad padding", domain.ErrInvalidCiphertext)
		}
	}
	return data[:len(data)-n], nil
}
