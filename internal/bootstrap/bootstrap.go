// Package bootstrap wires the shared process-level dependencies for the
// Lambda entrypoints under cmd/.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/jacentio/inkwell/api"
	"github.com/jacentio/inkwell/store"
)

// Handler builds the API handler from the Lambda environment. The table name
// comes from BLOG_TABLE and falls back to the store default when unset.
func Handler(ctx context.Context) (*api.Handler, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	storeConfig := store.DefaultConfig()
	if table := os.Getenv("BLOG_TABLE"); table != "" {
		storeConfig.TableName = table
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	return api.NewHandler(store.New(dynamodb.NewFromConfig(cfg), storeConfig), logger), nil
}

// MustHandler is Handler for main functions: it exits the process on error.
func MustHandler(ctx context.Context) *api.Handler {
	h, err := Handler(ctx)
	if err != nil {
		slog.Error("bootstrap failed", "error", err)
		os.Exit(1)
	}
	return h
}
