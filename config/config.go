// Package config はアプリケーション設定の読み込みを提供する。
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// 設定キー（YAMLファイル・FromMap用）。環境変数名は大文字にしたもの。
const (
	KeyKeystoreDriver       = "crypto_keystore_driver"
	KeyKeystoreSQLURL       = "crypto_keystore_sql_url"
	KeyKeystoreSQLAttempts  = "crypto_keystore_sql_connection_attempts"
	KeyKeystoreKMSKeyName   = "crypto_keystore_kms_key_name"
	KeyKeystoreSyncOnStart  = "crypto_keystore_sync_on_start" // 未指定時はSQLiteのみ有効
	KeyCryptoDriver         = "crypto_driver"
	KeyCryptoProtocol       = "crypto_protocol"
	KeyPort                 = "port"
	KeyLogLevel             = "log_level"
	KeyGoogleCloudProject   = "google_cloud_project"
	KeyOtelEnabled          = "otel_enabled"
	KeyOtelEndpoint         = "otel_endpoint"
	KeyOtelServiceName      = "otel_service_name"
	KeyOtelSamplingRate     = "otel_sampling_rate"
	KeyKeystoreAPIURL       = "keystore_api_url"
	DefaultKeystoreDriver   = "sql"
	DefaultKeystoreSQLURL   = "sqlite:///keystore.sqlite"
	DefaultConnectAttempts  = 5
	DefaultCryptoDriver     = "block"
	DefaultCryptoProtocol   = "aes_128_cbc"
	defaultOtelServiceName  = "crypto-keystore"
	defaultOtelEndpoint     = "localhost:4317"
	defaultOtelSamplingRate = 1.0
)

var keys = []string{
	KeyKeystoreDriver, KeyKeystoreSQLURL, KeyKeystoreSQLAttempts, KeyKeystoreKMSKeyName,
	KeyKeystoreSyncOnStart, KeyCryptoDriver, KeyCryptoProtocol, KeyPort, KeyLogLevel,
	KeyGoogleCloudProject, KeyOtelEnabled, KeyOtelEndpoint, KeyOtelServiceName,
	KeyOtelSamplingRate, KeyKeystoreAPIURL,
}

// Config はアプリケーション設定を表す。
type Config struct {
	Port               string
	LogLevel           string
	GoogleCloudProject string

	KeystoreDriver             string
	KeystoreSQLURL             string
	KeystoreConnectionAttempts int
	KeystoreKMSKeyName         string
	KeystoreSyncOnStart        bool
	KeystoreAPIURL             string

	CryptoDriver   string
	CryptoProtocol string

	OtelEnabled      bool
	OtelEndpoint     string
	OtelServiceName  string
	OtelSamplingRate float64

	// 数値・真偽値の変換エラー。Validateで返す。
	errs []error
}

// Load は環境変数から設定を読み込む。
// CONFIG_FILE が指定されている場合はYAMLファイルを先に読み込み、環境変数で上書きする。
func Load() (*Config, error) {
	values := map[string]string{}
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		fileValues, err := readFile(path)
		if err != nil {
			return nil, err
		}
		values = fileValues
	}
	for _, key := range keys {
		if val := os.Getenv(strings.ToUpper(key)); val != "" {
			values[key] = val
		}
	}
	cfg := FromMap(values)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromMap は設定キーと値のマップから設定を生成する。未指定のキーはデフォルト値になる。
func FromMap(values map[string]string) *Config {
	get := func(key, defaultVal string) string {
		if val, ok := values[key]; ok && val != "" {
			return val
		}
		return defaultVal
	}

	cfg := &Config{
		Port:               get(KeyPort, "8080"),
		LogLevel:           get(KeyLogLevel, "INFO"),
		GoogleCloudProject: get(KeyGoogleCloudProject, ""),
		KeystoreDriver:     get(KeyKeystoreDriver, DefaultKeystoreDriver),
		KeystoreSQLURL:     get(KeyKeystoreSQLURL, DefaultKeystoreSQLURL),
		KeystoreKMSKeyName: get(KeyKeystoreKMSKeyName, ""),
		KeystoreAPIURL:     get(KeyKeystoreAPIURL, ""),
		CryptoDriver:       get(KeyCryptoDriver, DefaultCryptoDriver),
		CryptoProtocol:     get(KeyCryptoProtocol, DefaultCryptoProtocol),
		OtelEndpoint:       get(KeyOtelEndpoint, defaultOtelEndpoint),
		OtelServiceName:    get(KeyOtelServiceName, defaultOtelServiceName),
	}
	cfg.KeystoreConnectionAttempts = cfg.parseInt(KeyKeystoreSQLAttempts, get(KeyKeystoreSQLAttempts, ""), DefaultConnectAttempts)
	// SQLiteはプロセスが作成するファイルのため、未指定なら起動時にスキーマを同期する
	cfg.KeystoreSyncOnStart = cfg.parseBool(KeyKeystoreSyncOnStart, get(KeyKeystoreSyncOnStart, ""), IsSQLiteURL(cfg.KeystoreSQLURL))
	cfg.OtelEnabled = cfg.parseBool(KeyOtelEnabled, get(KeyOtelEnabled, ""), false)
	cfg.OtelSamplingRate = cfg.parseFloat(KeyOtelSamplingRate, get(KeyOtelSamplingRate, ""), defaultOtelSamplingRate)
	return cfg
}

// Validate は設定値の妥当性を検証する。
func (c *Config) Validate() error {
	if len(c.errs) > 0 {
		return c.errs[0]
	}
	if c.KeystoreConnectionAttempts < 1 {
		return fmt.Errorf("%s must be >= 1, got %d", KeyKeystoreSQLAttempts, c.KeystoreConnectionAttempts)
	}
	if c.OtelSamplingRate < 0 || c.OtelSamplingRate > 1 {
		return fmt.Errorf("%s must be between 0.0 and 1.0, got %v", KeyOtelSamplingRate, c.OtelSamplingRate)
	}
	return nil
}

func readFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	values := make(map[string]string, len(raw))
	for k, v := range raw {
		if v == nil {
			continue
		}
		values[strings.ToLower(k)] = fmt.Sprint(v)
	}
	return values, nil
}

func (c *Config) parseInt(key, val string, defaultVal int) int {
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		c.errs = append(c.errs, fmt.Errorf("%s: invalid integer %q", key, val))
		return defaultVal
	}
	return n
}

func (c *Config) parseFloat(key, val string, defaultVal float64) float64 {
	if val == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		c.errs = append(c.errs, fmt.Errorf("%s: invalid number %q", key, val))
		return defaultVal
	}
	return f
}

func (c *Config) parseBool(key, val string, defaultVal bool) bool {
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		c.errs = append(c.errs, fmt.Errorf("%s: invalid boolean %q", key, val))
		return defaultVal
	}
	return b
}

// IsSQLiteURL はキーストアURLのスキームがSQLiteかどうかを返す。
func IsSQLiteURL(rawURL string) bool {
	scheme, _, ok := strings.Cut(rawURL, "://")
	if !ok {
		return false
	}
	scheme, _, _ = strings.Cut(scheme, "+")
	return scheme == "sqlite" || scheme == "sqlite3"
}
