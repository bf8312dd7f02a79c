package driving

import "github.com/custodia-labs/listsync/internal/core/domain"

// SettingsService resolves typed settings from configuration.
type SettingsService interface {
	// Get retrieves current settings with defaults applied.
	Get() (*domain.Settings, error)

	// GetScheduleConfig returns the serve-mode schedule.
	GetScheduleConfig() domain.ScheduleConfig
}
