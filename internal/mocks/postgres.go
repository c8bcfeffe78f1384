package mocks

import (
	"github.com/Billy-Davies-2/pricing-game/internal/dal"
	"github.com/Billy-Davies-2/pricing-game/internal/logger"
)

// MockPostgresDAL stands in for Postgres with SQLite during local development
type MockPostgresDAL struct {
	dal.SessionDAL
}

// NewMockPostgresDAL opens sqliteFile behind the Postgres-shaped name
func NewMockPostgresDAL(sqliteFile string) (*MockPostgresDAL, error) {
	logger.Info("Using MOCK Postgres (SQLite) for local development", "file", sqliteFile)

	sqliteDAL, err := dal.NewSQLiteDAL(sqliteFile)
	if err != nil {
		return nil, err
	}
	return &MockPostgresDAL{SessionDAL: sqliteDAL}, nil
}
