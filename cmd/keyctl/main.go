// Package main はCLIツールのエントリポイント。
package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"crypto-keystore/config"
	"crypto-keystore/internal/encryptor"
	"crypto-keystore/internal/infra"
	"crypto-keystore/internal/usecase"
	"crypto-keystore/pkg/keyclient"
)

const version = "1.0.0"

var (
	apiURL  string
	output  string
	timeout time.Duration
	cfg     *config.Config
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "keyctl",
		Short:         "Crypto keystore CLI",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// .envファイルを読み込む（存在しない場合は無視）
			_ = godotenv.Load()

			var err error
			cfg, err = config.Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			infra.SetupLogger(cfg, os.Stderr)

			if apiURL == "" {
				apiURL = os.Getenv("KEYCTL_API_URL")
			}
			if apiURL == "" {
				apiURL = cfg.KeystoreAPIURL
			}
			return nil
		},
	}

	// グローバルフラグ
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "API endpoint URL (or set KEYCTL_API_URL). Uses the local keystore when empty")
	rootCmd.PersistentFlags().StringVar(&output, "output", "text", "Output format: text, json")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "Request timeout")

	// サブコマンド登録
	rootCmd.AddCommand(keyIDCmd())
	rootCmd.AddCommand(keyCmd())
	rootCmd.AddCommand(encryptCmd())
	rootCmd.AddCommand(decryptCmd())
	rootCmd.AddCommand(cryptedLenCmd())
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// versionCmd はバージョン情報を表示する。
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("keyctl version %s\n", version)
		},
	}
}

// keySource は鍵IDの払い出しと鍵素材の取得ができるもの。
type keySource interface {
	encryptor.KeySource
	GetKeyID(ctx context.Context, account string) (int64, error)
}

// openKeySource は --api-url が指定されていればHTTPクライアントを、
// そうでなければ設定に従ったローカルのキーストアを返す。
func openKeySource(ctx context.Context) (keySource, func(), error) {
	if apiURL != "" {
		return keyclient.New(apiURL, &http.Client{Timeout: timeout}), func() {}, nil
	}
	ks, err := infra.OpenKeyStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return ks, func() { ks.Close() }, nil
}

// keyIDCmd はアカウントの鍵ID取得コマンド。
func keyIDCmd() *cobra.Command {
	var account string
	cmd := &cobra.Command{
		Use:   "key-id",
		Short: "Get (or assign) the key id for an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			if account == "" {
				return fmt.Errorf("--account is required")
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			keys, closeFn, err := openKeySource(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			id, err := keys.GetKeyID(ctx, account)
			if err != nil {
				return err
			}

			if output == "json" {
				return printJSON(map[string]any{"account": account, "key_id": id})
			}
			fmt.Println(id)
			return nil
		},
	}
	cmd.Flags().StringVar(&account, "account", "", "Account name (required)")
	cmd.MarkFlagRequired("account")
	return cmd
}

// keyCmd は鍵素材の取得コマンド。
func keyCmd() *cobra.Command {
	var keyID string
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Get the key material for a key id",
		RunE: func(cmd *cobra.Command, args []string) error {
			if keyID == "" {
				return fmt.Errorf("--key-id is required")
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			keys, closeFn, err := openKeySource(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			key, err := keys.GetKey(ctx, keyID)
			if err != nil {
				return err
			}

			encoded := base64.StdEncoding.EncodeToString(key)
			if output == "json" {
				return printJSON(map[string]any{"key_id": keyID, "key": encoded})
			}
			fmt.Println(encoded)
			return nil
		},
	}
	cmd.Flags().StringVar(&keyID, "key-id", "", "Key id (required)")
	cmd.MarkFlagRequired("key-id")
	return cmd
}

// encryptCmd はファイルの暗号化コマンド。
func encryptCmd() *cobra.Command {
	return cryptCmd("encrypt", "Encrypt a file with the key of a key id", func(d encryptor.Driver, data []byte) ([]byte, error) {
		return d.Crypt(data)
	})
}

// decryptCmd はファイルの復号コマンド。
func decryptCmd() *cobra.Command {
	return cryptCmd("decrypt", "Decrypt a file with the key of a key id", func(d encryptor.Driver, data []byte) ([]byte, error) {
		return d.Decrypt(data)
	})
}

func cryptCmd(use, short string, fn func(encryptor.Driver, []byte) ([]byte, error)) *cobra.Command {
	var keyID, in, out string
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			if keyID == "" {
				return fmt.Errorf("--key-id is required")
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			keys, closeFn, err := openKeySource(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			driver, err := encryptor.New(cfg, keys)
			if err != nil {
				return err
			}
			if err := driver.GetKeyValue(ctx, keyID); err != nil {
				return err
			}

			data, err := readInput(in)
			if err != nil {
				return err
			}
			result, err := fn(driver, data)
			if err != nil {
				return fmt.Errorf("%s: %w", use, err)
			}
			return writeOutput(out, result)
		},
	}
	cmd.Flags().StringVar(&keyID, "key-id", "", "Key id (required)")
	cmd.Flags().StringVar(&in, "in", "-", "Input file (- for stdin)")
	cmd.Flags().StringVar(&out, "out", "-", "Output file (- for stdout)")
	cmd.MarkFlagRequired("key-id")
	return cmd
}

// cryptedLenCmd は暗号化後のサイズを表示するコマンド。
func cryptedLenCmd() *cobra.Command {
	var size int
	cmd := &cobra.Command{
		Use:   "crypted-len",
		Short: "Print the ciphertext length for a plaintext size",
		RunE: func(cmd *cobra.Command, args []string) error {
			if size < 0 {
				return fmt.Errorf("--size must be >= 0")
			}
			// 長さの計算には鍵素材が不要なため、キーストアには接続しない
			driver, err := encryptor.New(cfg, usecase.NewNullKeyStore())
			if err != nil {
				return err
			}
			if err := driver.GetKeyValue(cmd.Context(), usecase.NullKeyID); err != nil {
				return err
			}
			n, err := driver.CryptedLen(size)
			if err != nil {
				return err
			}

			if output == "json" {
				return printJSON(map[string]any{"size": size, "crypted_len": n})
			}
			fmt.Println(n)
			return nil
		},
	}
	cmd.Flags().IntVar(&size, "size", 0, "Plaintext size in bytes")
	return cmd
}

func readInput(path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(os.Stdin)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading input: %w", err)
	}
	return data, nil
}

func writeOutput(path string, data []byte) error {
	if path == "" || path == "-" {
		_, err := os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}
	return nil
}
