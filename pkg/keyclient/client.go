// Package keyclient はキーストアHTTPサービスのクライアントを提供する。
//
// Client は encryptor.KeySource を満たすため、データベースを持たないプロセスでも
// 暗号ドライバに鍵素材を供給できる。
package keyclient

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"crypto-keystore/internal/domain"
	"crypto-keystore/pkg/httputil"
)

// DefaultTimeout はhttpClientを指定しない場合のリクエストタイムアウト。
const DefaultTimeout = 30 * time.Second

// Client はキーストアHTTPサービスのクライアント。
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New は新しいClientを生成する。httpClient が nil の場合はトレース伝搬付きのクライアントを使う。
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   DefaultTimeout,
		}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

type keyIDResponse struct {
	Account string `json:"account"`
	KeyID   int64  `json:"key_id"`
}

type keyResponse struct {
	KeyID int64  `json:"key_id"`
	Key   string `json:"key"`
}

// GetKeyID はアカウントの鍵IDを取得する。未登録のアカウントにはサーバー側で割り当てられる。
func (c *Client) GetKeyID(ctx context.Context, account string) (int64, error) {
	if account == "" {
		return 0, domain.ErrInvalidAccount
	}

	endpoint := fmt.Sprintf("%s/v1/accounts/%s/key-id", c.baseURL, url.PathEscape(account))
	var resp keyIDResponse
	if err := c.do(ctx, http.MethodPost, endpoint, &resp); err != nil {
		return 0, c.mapError(err, nil)
	}
	return resp.KeyID, nil
}

// GetKey は鍵IDの鍵素材を取得する。
func (c *Client) GetKey(ctx context.Context, keyID any) ([]byte, error) {
	id, err := domain.ParseKeyID(keyID)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/v1/keys/%s", c.baseURL, strconv.FormatInt(id, 10))
	var resp keyResponse
	if err := c.do(ctx, http.MethodGet, endpoint, &resp); err != nil {
		return nil, c.mapError(err, &id)
	}

	key, err := base64.StdEncoding.DecodeString(resp.Key)
	if err != nil {
		return nil, fmt.Errorf("decoding key: %w", err)
	}
	return key, nil
}

// ValidateKeyID は鍵IDの形式を検証する。
func (c *Client) ValidateKeyID(keyID any) error {
	return domain.ValidateKeyID(keyID)
}

// Health はサーバーのヘルスチェックを呼び出す。
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
}

// statusError はサーバーがエラーを返した場合のエラー。
type statusError struct {
	StatusCode int
	Body       *httputil.ErrorResponse
}

func (e *statusError) Error() string {
	if e.Body != nil && e.Body.Message != "" {
		return fmt.Sprintf("keystore api: %d %s", e.StatusCode, e.Body.Error())
	}
	return fmt.Sprintf("keystore api: server returned status %d", e.StatusCode)
}

func (c *Client) do(ctx context.Context, method, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrConnection, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		serr := &statusError{StatusCode: resp.StatusCode}
		var errResp httputil.ErrorResponse
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Code != "" {
			serr.Body = &errResp
		}
		return serr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	return nil
}

// mapError はHTTPステータスをキーストアのエラーに戻す。
func (c *Client) mapError(err error, keyID *int64) error {
	serr, ok := err.(*statusError)
	if !ok {
		return err
	}
	switch serr.StatusCode {
	case http.StatusNotFound:
		if keyID != nil {
			return domain.UnknownKeyError(*keyID)
		}
	case http.StatusBadRequest:
		if keyID != nil {
			return domain.InvalidKeyIDError(*keyID)
		}
		return fmt.Errorf("%w: %v", domain.ErrInvalidAccount, serr)
	case http.StatusServiceUnavailable:
		return fmt.Errorf("%w: %v", domain.ErrConnection, serr)
	}
	return serr
}
