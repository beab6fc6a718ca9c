package testutil

import (
	"fmt"
	"testing"
	"time"

	"licenseplane/pkg/config"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewTestDB opens an in-memory SQLite database scoped to one test,
// migrates the given models and closes the connection on cleanup. The
// single open connection keeps the shared-cache database alive for the
// whole test.
func NewTestDB(t *testing.T, models ...any) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}

	if len(models) > 0 {
		if err := db.AutoMigrate(models...); err != nil {
			t.Fatalf("migrate test database: %v", err)
		}
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrap sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	return db
}

// NewTestConfig returns a config carrying the licensing defaults used in
// production, without touching the environment or any config file.
func NewTestConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := &config.Config{}
	cfg.Licensing.GracePeriodDays = 15
	cfg.Licensing.RenewalWindowDays = 30
	cfg.Licensing.RenewalTermDays = 365
	cfg.Licensing.AlertThreshold = 80
	cfg.Licensing.MaxTransferAttempts = 3
	cfg.Licensing.ValidationCacheTTL = time.Minute
	return cfg
}
