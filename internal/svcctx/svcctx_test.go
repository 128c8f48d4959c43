package svcctx

import (
	"context"
	"log/slog"
	"net/http"
	"testing"

	"github.com/jackzampolin/sysrev/internal/providers"
)

func TestServices_RoundTrip(t *testing.T) {
	reg := providers.NewRegistry()
	client := &http.Client{}
	logger := slog.Default()

	ctx := WithServices(context.Background(), &Services{
		Registry:    reg,
		Logger:      logger,
		FetchClient: client,
	})

	if ServicesFrom(ctx) == nil {
		t.Fatal("expected services in context")
	}
	if RegistryFrom(ctx) != reg {
		t.Error("RegistryFrom returned wrong registry")
	}
	if FetchClientFrom(ctx) != client {
		t.Error("FetchClientFrom returned wrong client")
	}
	if LoggerFrom(ctx) != logger {
		t.Error("LoggerFrom returned wrong logger")
	}
	if StoreFrom(ctx) != nil || ExtractorFrom(ctx) != nil {
		t.Error("unset services should be nil")
	}
}

func TestServices_Missing(t *testing.T) {
	ctx := context.Background()

	if ServicesFrom(ctx) != nil {
		t.Error("expected nil services")
	}
	if RegistryFrom(ctx) != nil || StoreFrom(ctx) != nil || MetricsFrom(ctx) != nil {
		t.Error("expected nil extractors")
	}
	if LoggerFrom(ctx) == nil {
		t.Error("LoggerFrom should fall back to the default logger")
	}
	if FetchClientFrom(ctx) != http.DefaultClient {
		t.Error("FetchClientFrom should fall back to http.DefaultClient")
	}
}
