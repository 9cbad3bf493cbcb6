// Package handler はHTTPハンドラを提供する。
package handler

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"crypto-keystore/internal/domain"
	"crypto-keystore/internal/middleware"
	"crypto-keystore/internal/usecase"
	"crypto-keystore/pkg/httputil"
)

// maxAccountLength は key_info.account のカラム長。
const maxAccountLength = 42

// HealthChecker はストアへの接続を確認する。infra.ConnectionManager が満たす。
type HealthChecker interface {
	Reconnect(ctx context.Context) error
}

// KeyHandler はHTTPハンドラを提供する。
type KeyHandler struct {
	store  usecase.KeyStore
	health HealthChecker
}

// NewKeyHandler は新しいKeyHandlerを生成する。health が nil の場合、ヘルスチェックは常に成功する。
func NewKeyHandler(store usecase.KeyStore, health HealthChecker) *KeyHandler {
	return &KeyHandler{store: store, health: health}
}

func validateAccount(account string) error {
	if account == "" || len(account) > maxAccountLength || strings.Contains(account, "/") {
		return domain.ErrInvalidAccount
	}
	return nil
}

// accountParam はパスからアカウント名を取り出す。
// chi は RawPath がある場合だけエスケープされたままのパスでマッチするため、そのときに限りデコードする。
func accountParam(r *http.Request) (string, error) {
	account := chi.URLParam(r, "account")
	if r.URL.RawPath == "" {
		return account, nil
	}
	return url.PathUnescape(account)
}

// KeyIDResponse は鍵IDのレスポンス形式。
type KeyIDResponse struct {
	Account string `json:"account"`
	KeyID   int64  `json:"key_id"`
}

// KeyResponse は鍵素材のレスポンス形式。
type KeyResponse struct {
	KeyID int64  `json:"key_id"`
	Key   string `json:"key"`
}

// HealthResponse はヘルスチェックのレスポンス形式。
type HealthResponse struct {
	Status string `json:"status"`
}

// GetKeyID はアカウントの鍵IDを返す。未登録のアカウントには新しい鍵IDを割り当てる。
func (h *KeyHandler) GetKeyID(w http.ResponseWriter, r *http.Request) {
	account, err := accountParam(r)
	if err != nil || validateAccount(account) != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_ACCOUNT", "invalid account name")
		return
	}

	keyID, err := h.store.GetKeyID(r.Context(), account)
	if err != nil {
		middleware.WriteAuditLog(r.Context(), "GET_KEY_ID", account, 0, middleware.ResultFailed)
		writeStoreError(w, err)
		return
	}

	middleware.WriteAuditLog(r.Context(), "GET_KEY_ID", account, keyID, middleware.ResultSuccess)
	httputil.JSON(w, http.StatusOK, KeyIDResponse{
		Account: account,
		KeyID:   keyID,
	})
}

// GetKey は鍵IDの鍵素材を返す。未生成の場合は生成される。
func (h *KeyHandler) GetKey(w http.ResponseWriter, r *http.Request) {
	rawKeyID := chi.URLParam(r, "key_id")
	keyID, err := domain.ParseKeyID(rawKeyID)
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_KEY_ID", "invalid key id")
		return
	}

	key, err := h.store.GetKey(r.Context(), keyID)
	if err != nil {
		middleware.WriteAuditLog(r.Context(), "GET_KEY", "", keyID, middleware.ResultFailed)
		writeStoreError(w, err)
		return
	}

	middleware.WriteAuditLog(r.Context(), "GET_KEY", "", keyID, middleware.ResultSuccess)
	httputil.JSON(w, http.StatusOK, KeyResponse{
		KeyID: keyID,
		Key:   base64.StdEncoding.EncodeToString(key),
	})
}

// Health はストアへの接続を確認する。
func (h *KeyHandler) Health(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health.Reconnect(r.Context()); err != nil {
			httputil.JSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "unavailable"})
			return
		}
	}
	httputil.JSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// writeStoreError はキーストアのエラーをHTTPステータスに変換して返す。
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidAccount):
		httputil.Error(w, http.StatusBadRequest, "INVALID_ACCOUNT", "invalid account name")
	case errors.Is(err, domain.ErrInvalidKeyID), errors.Is(err, domain.ErrTypeMismatch):
		httputil.Error(w, http.StatusBadRequest, "INVALID_KEY_ID", "invalid key id")
	case errors.Is(err, domain.ErrUnknownKey):
		httputil.Error(w, http.StatusNotFound, "KEY_NOT_FOUND", "key not found")
	case errors.Is(err, domain.ErrConnection):
		httputil.Error(w, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "keystore is unavailable")
	default:
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}
}
