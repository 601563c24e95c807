// Package testutil builds throwaway sqlite databases and fixtures for
// package tests.
package testutil

import (
	"context"
	"testing"

	"github.com/qrdine/core/internal/config"
	"github.com/qrdine/core/internal/database"
	"github.com/qrdine/core/internal/models"
	"github.com/qrdine/core/internal/store/gormstore"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB returns a migrated in-memory sqlite database closed with the test.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := database.Open(config.DriverSQLite, ":memory:", logger.Silent)
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// NewStore wraps NewDB in the gorm store.
func NewStore(t *testing.T) *gormstore.Store {
	t.Helper()
	return gormstore.New(NewDB(t))
}

// SeedOrganization inserts an active tenant.
func SeedOrganization(t *testing.T, db *gorm.DB, name string) *models.OrganizationModel {
	t.Helper()
	org := &models.OrganizationModel{
		Name:             name,
		Slug:             slug(name),
		Description:      name + " serves seasonal plates",
		Status:           models.OrganizationActive,
		SubscriptionTier: models.TierStarter,
	}
	require.NoError(t, db.WithContext(context.Background()).Create(org).Error)
	return org
}

// SeedTable inserts an available table for org.
func SeedTable(t *testing.T, db *gorm.DB, orgID, number string) *models.TableModel {
	t.Helper()
	table := &models.TableModel{
		OrganizationID:      orgID,
		TableNumber:         number,
		QRCode:              "qr-" + number,
		LocationDescription: "Main hall",
		Status:              models.TableAvailable,
	}
	require.NoError(t, db.Create(table).Error)
	return table
}

// ReloadTable reads the table's current row.
func ReloadTable(t *testing.T, db *gorm.DB, id string) *models.TableModel {
	t.Helper()
	var table models.TableModel
	require.NoError(t, db.First(&table, "id = ?", id).Error)
	return &table
}

func slug(name string) string {
	out := make([]byte, 0, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'A' && c <= 'Z':
			out = append(out, c+('a'-'A'))
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9':
			out = append(out, c)
		default:
			out = append(out, '-')
		}
	}
	return string(out)
}
