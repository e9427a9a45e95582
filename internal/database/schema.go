package database

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// SchemaStatus reports which registered tables exist.
type SchemaStatus struct {
	Driver  string
	Present []string
	Missing []string
}

// ApplySchema creates or updates every table in PersistentModels.
func ApplySchema(ctx context.Context, db *gorm.DB) error {
	if err := db.WithContext(ctx).AutoMigrate(PersistentModels()...); err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}
	return nil
}

// GetSchemaStatus inspects the live database without changing it.
func GetSchemaStatus(ctx context.Context, db *gorm.DB) (*SchemaStatus, error) {
	status := &SchemaStatus{Driver: db.Dialector.Name()}
	migrator := db.WithContext(ctx).Migrator()

	for _, model := range PersistentModels() {
		stmt := &gorm.Statement{DB: db}
		if err := stmt.Parse(model); err != nil {
			return nil, fmt.Errorf("parse model %T: %w", model, err)
		}
		if migrator.HasTable(model) {
			status.Present = append(status.Present, stmt.Schema.Table)
		} else {
			status.Missing = append(status.Missing, stmt.Schema.Table)
		}
	}
	return status, nil
}
