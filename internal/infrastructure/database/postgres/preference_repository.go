package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"fleetwatch/internal/alert"
	"fleetwatch/internal/infrastructure/database/postgres/models"
)

// PreferenceRepository reads the per-user allow-list. The table is owned by
// the backend; this service never writes to it.
type PreferenceRepository struct {
	db *DB
}

func NewPreferenceRepository(db *DB) *PreferenceRepository {
	return &PreferenceRepository{db: db}
}

// AllowedTypes returns the event types enabled for username.
func (r *PreferenceRepository) AllowedTypes(ctx context.Context, username string) ([]string, error) {
	var types []string
	if err := r.allowedQuery(ctx, username).Pluck("event_type", &types).Error; err != nil {
		return nil, fmt.Errorf("failed to load notification preferences: %w", err)
	}
	return types, nil
}

// LoadAllowList builds the alert allow-list for username. Unknown type names
// stored in the table are ignored.
func (r *PreferenceRepository) LoadAllowList(ctx context.Context, username string) (alert.StaticAllowList, error) {
	types, err := r.AllowedTypes(ctx, username)
	if err != nil {
		return nil, err
	}
	return alert.NewAllowList(types...), nil
}

func (r *PreferenceRepository) allowedQuery(ctx context.Context, username string) *gorm.DB {
	return r.db.DB.WithContext(ctx).
		Model(&models.NotificationPreferenceModel{}).
		Where("username = ? AND enabled = ?", username, true).
		Order("event_type")
}
