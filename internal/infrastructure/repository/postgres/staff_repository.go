package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/scanworks/reportbroker/internal/core/domain"
)

// StaffSettingsRepository reads per-staff queue configuration. Staff
// without a row fall back to the global defaults from config, so a
// missing row is nil, not an error.
type StaffSettingsRepository struct {
	db *sql.DB
}

func NewStaffSettingsRepository(db *sql.DB) *StaffSettingsRepository {
	return &StaffSettingsRepository{db: db}
}

func (r *StaffSettingsRepository) Get(ctx context.Context, staffID string) (*domain.StaffSettings, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT staff_id, max_concurrent_files, time_limit_minutes
FROM staff_settings
WHERE staff_id = $1
`, staffID)

	var settings domain.StaffSettings
	var timeLimitMinutes int
	err := row.Scan(&settings.StaffID, &settings.MaxConcurrentFiles, &timeLimitMinutes)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan staff settings: %w", err)
	}
	settings.TimeLimit = time.Duration(timeLimitMinutes) * time.Minute
	return &settings, nil
}
