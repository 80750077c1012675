package backend

import (
	"context"
	"fmt"
	"log/slog"

	gsheet "leasedash/internal/sheets/google"
	"leasedash/internal/sheets/memory"
	"leasedash/internal/sheets/xlsx"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger,
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case SheetsBackend:
		return f.createSheetsBackend(ctx, config)
	case XLSXBackend:
		return f.createXLSXBackend(config)
	case MemoryBackend:
		return f.createMemoryBackend(config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createSheetsBackend(ctx context.Context, config Config) (*BackendResult, error) {
	cli, err := gsheet.New(ctx, gsheet.Config{
		SpreadsheetID:   config.GoogleSpreadsheetID,
		CredentialsJSON: []byte(config.GoogleServiceAccountJSON),
		CredentialsFile: config.GoogleServiceAccountFile,
		OAuthClientJSON: []byte(config.GoogleOAuthClientJSON),
		OAuthClientFile: config.GoogleOAuthClientFile,
		OAuthTokenFile:  config.GoogleOAuthTokenFile,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
	}

	f.logger.Info("Initialized Google Sheets backend", "oauth", config.GoogleOAuthTokenFile != "")

	return &BackendResult{Backend: cli}, nil
}

func (f *DefaultFactory) createXLSXBackend(config Config) (*BackendResult, error) {
	wb, err := xlsx.New(config.XLSXPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize workbook backend: %w", err)
	}

	f.logger.Info("Initialized workbook backend", "path", config.XLSXPath)

	return &BackendResult{Backend: wb}, nil
}

func (f *DefaultFactory) createMemoryBackend(config Config) (*BackendResult, error) {
	dataDir := config.DataDirectory
	if dataDir == "" {
		dataDir = "data"
	}

	store := memory.NewFromFiles(dataDir)

	f.logger.Info("Initialized memory backend", "data_directory", dataDir, "tables", len(store.Names()))

	return &BackendResult{Backend: store}, nil
}
