package domain

import (
	"math"
	"strconv"
)

// ParseKeyID は文字列または整数で渡された鍵IDをint64に正規化する。
//
// 数字以外を含む文字列・負数は ErrInvalidKeyID、配列やマップなど
// 文字列・整数以外の値は ErrTypeMismatch を返す。
func ParseKeyID(keyID any) (int64, error) {
	switch v := keyID.(type) {
	case string:
		return parseKeyIDString(v)
	case []byte:
		return parseKeyIDString(string(v))
	case int:
		return nonNegative(keyID, int64(v))
	case int8:
		return nonNegative(keyID, int64(v))
	case int16:
		return nonNegative(keyID, int64(v))
	case int32:
		return nonNegative(keyID, int64(v))
	case int64:
		return nonNegative(keyID, v)
	case uint:
		return fromUnsigned(keyID, uint64(v))
	case uint8:
		return int64(v), nil
	case uint16:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case uint64:
		return fromUnsigned(keyID, v)
	default:
		return 0, TypeMismatchError(keyID)
	}
}

// ValidateKeyID は鍵IDが非負の数値として解釈できるかを検証する。
// nil と空文字列は検証対象外として何もしない。
func ValidateKeyID(keyID any) error {
	if keyID == nil {
		return nil
	}
	if s, ok := keyID.(string); ok && s == "" {
		return nil
	}
	_, err := ParseKeyID(keyID)
	return err
}

func parseKeyIDString(s string) (int64, error) {
	if s == "" {
		return 0, InvalidKeyIDError(s)
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, InvalidKeyIDError(s)
		}
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		// 桁あふれ
		return 0, InvalidKeyIDError(s)
	}
	return id, nil
}

func nonNegative(raw any, id int64) (int64, error) {
	if id < 0 {
		return 0, InvalidKeyIDError(raw)
	}
	return id, nil
}

func fromUnsigned(raw any, id uint64) (int64, error) {
	if id > math.MaxInt64 {
		return 0, InvalidKeyIDError(raw)
	}
	return int64(id), nil
}
