package domain

import (
	"errors"
	"testing"
)

func TestValidateKeyID(t *testing.T) {
	valid := []any{nil, "", "42", 42, int64(0), uint32(7)}
	for _, v := range valid {
		if err := ValidateKeyID(v); err != nil {
			t.Errorf("ValidateKeyID(%#v): unexpected error: %v", v, err)
		}
	}

	invalid := []any{"-13", "n0tnumb3r", -1, " 42"}
	for _, v := range invalid {
		err := ValidateKeyID(v)
		if !errors.Is(err, ErrInvalidKeyID) {
			t.Errorf("ValidateKeyID(%#v): want ErrInvalidKeyID, got %v", v, err)
		}
	}
}

func TestParseKeyID(t *testing.T) {
	id, err := ParseKeyID("100")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != 100 {
		t.Errorf("want 100, got %d", id)
	}

	// 数字以外を含む文字列
	_, err = ParseKeyID("id100")
	if !errors.Is(err, ErrInvalidKeyID) {
		t.Errorf("want ErrInvalidKeyID, got %v", err)
	}

	// 文字列・整数以外
	for _, v := range []any{[]int{2}, map[string]string{"test": "test"}, struct{ a, b int }{222, 2}, 1.5} {
		_, err := ParseKeyID(v)
		if !errors.Is(err, ErrTypeMismatch) {
			t.Errorf("ParseKeyID(%#v): want ErrTypeMismatch, got %v", v, err)
		}
	}

	// 桁あふれ
	_, err = ParseKeyID("99999999999999999999")
	if !errors.Is(err, ErrInvalidKeyID) {
		t.Errorf("want ErrInvalidKeyID for overflow, got %v", err)
	}
}

func TestKeyIDError_CarriesKeyID(t *testing.T) {
	err := UnknownKeyError(100)

	var kerr *KeyIDError
	if !errors.As(err, &kerr) {
		t.Fatalf("want *KeyIDError, got %T", err)
	}
	if kerr.KeyID != int64(100) {
		t.Errorf("want key id 100, got %v", kerr.KeyID)
	}
	if !errors.Is(err, ErrUnknownKey) {
		t.Errorf("want ErrUnknownKey, got %v", err)
	}
}

func TestConnectionError_Unwrap(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := &ConnectionError{Attempts: 5, Err: cause}

	if !errors.Is(err, ErrConnection) {
		t.Error("want errors.Is(err, ErrConnection)")
	}
	if !errors.Is(err, cause) {
		t.Error("want the underlying error to be preserved")
	}
}
