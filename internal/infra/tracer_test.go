package infra

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"

	"crypto-keystore/config"
)

func TestResourceAttributes(t *testing.T) {
	tests := []struct {
		name    string
		values  map[string]string
		dialect string
	}{
		{"sqlite", map[string]string{}, "sqlite"},
		{"mysql", map[string]string{config.KeyKeystoreSQLURL: "mysql://u:p@db:3306/keystore"}, "mysql"},
		{"postgres", map[string]string{config.KeyKeystoreSQLURL: "postgresql://u:p@db/keystore"}, "postgres"},
		{"null driver", map[string]string{config.KeyKeystoreDriver: "null"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.FromMap(tt.values)
			set := attribute.NewSet(resourceAttributes(cfg)...)

			if v, ok := set.Value("service.name"); !ok || v.AsString() != "crypto-keystore" {
				t.Errorf("want service.name crypto-keystore, got %v", v.AsString())
			}
			if v, _ := set.Value(attrKeystoreDriver); v.AsString() != cfg.KeystoreDriver {
				t.Errorf("want keystore.driver %s, got %s", cfg.KeystoreDriver, v.AsString())
			}
			if v, _ := set.Value(attrCryptoProtocol); v.AsString() != "aes_128_cbc" {
				t.Errorf("want crypto protocol aes_128_cbc, got %s", v.AsString())
			}

			v, ok := set.Value(attrKeystoreDB)
			if tt.dialect == "" {
				if ok {
					t.Errorf("want no dialect attribute, got %s", v.AsString())
				}
				return
			}
			if v.AsString() != tt.dialect {
				t.Errorf("want dialect %s, got %s", tt.dialect, v.AsString())
			}
		})
	}
}

func TestInitTracer_Disabled(t *testing.T) {
	tp, err := InitTracer(context.Background(), config.FromMap(map[string]string{}))
	if err != nil {
		t.Fatalf("InitTracer failed: %v", err)
	}
	if tp != nil {
		t.Error("expected nil provider when otel is disabled")
	}
}
