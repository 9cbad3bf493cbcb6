package infra

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"

	"crypto-keystore/config"
	"crypto-keystore/internal/usecase"
)

// キーストア固有のリソース属性。
const (
	attrKeystoreDriver = attribute.Key("keystore.driver")
	attrKeystoreDB     = attribute.Key("keystore.sql.dialect")
	attrCryptoDriver   = attribute.Key("keystore.crypto.driver")
	attrCryptoProtocol = attribute.Key("keystore.crypto.protocol")
)

// InitTracer はトレーサープロバイダーを初期化する。
// otel_enabled が無効の場合は nil を返す。キーストアのSQLとHTTPのスパンはこのプロバイダーに送られる。
func InitTracer(ctx context.Context, cfg *config.Config) (*sdktrace.TracerProvider, error) {
	if !cfg.OtelEnabled {
		return nil, nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OtelEndpoint),
	)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx, resource.WithAttributes(resourceAttributes(cfg)...))
	if err != nil {
		return nil, err
	}

	// サンプリング率を設定
	sampler := sdktrace.TraceIDRatioBased(cfg.OtelSamplingRate)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sampler)),
	)

	otel.SetTracerProvider(tp)

	// W3C TraceContext伝搬を設定
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return tp, nil
}

// resourceAttributes はトレースのリソースに付与する属性を返す。
// SQLの方言はURLから判定し、判定できない場合は付与しない。
func resourceAttributes(cfg *config.Config) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(cfg.OtelServiceName),
		attrKeystoreDriver.String(cfg.KeystoreDriver),
		attrCryptoDriver.String(cfg.CryptoDriver),
		attrCryptoProtocol.String(cfg.CryptoProtocol),
	}
	if cfg.KeystoreDriver == usecase.DriverSQL {
		if d, err := Dialector(cfg.KeystoreSQLURL); err == nil {
			attrs = append(attrs, attrKeystoreDB.String(d.Name()))
		}
	}
	return attrs
}
