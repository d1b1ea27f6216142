package models

// DefaultLateDays is the lateness threshold used when none is configured.
const DefaultLateDays = 30

// Settings is the single process-wide preferences record.
type Settings struct {
	LateDays             int    `json:"lateDays" validate:"gte=1,lte=3650"`
	NotifyOnLate         bool   `json:"notifyOnLate"`
	DarkMode             bool   `json:"darkMode"`
	AutoSave             bool   `json:"autoSave"`
	ShowNotifications    bool   `json:"showNotifications"`
	ItemsPerPage         int    `json:"itemsPerPage" validate:"gte=1,lte=500"`
	DateFormat           string `json:"dateFormat"`
	BrowserNotifications bool   `json:"browserNotifications"`
	AutoBackup           bool   `json:"autoBackup"`
	FontSize             string `json:"fontSize" validate:"oneof=small medium large"`
	CompactMode          bool   `json:"compactMode"`
	NotificationInterval int    `json:"notificationInterval" validate:"gte=1"`
	BackupRetention      int    `json:"backupRetention" validate:"gte=1,lte=365"`
	EnableAnimations     bool   `json:"enableAnimations"`
	ShowTooltips         bool   `json:"showTooltips"`
}

// DefaultSettings returns the documented defaults.
func DefaultSettings() Settings {
	return Settings{
		LateDays:             DefaultLateDays,
		NotifyOnLate:         true,
		DarkMode:             false,
		AutoSave:             false,
		ShowNotifications:    true,
		ItemsPerPage:         20,
		DateFormat:           "en-GB",
		BrowserNotifications: false,
		AutoBackup:           false,
		FontSize:             "medium",
		CompactMode:          false,
		NotificationInterval: 5,
		BackupRetention:      7,
		EnableAnimations:     true,
		ShowTooltips:         true,
	}
}

// Normalized replaces non-positive numeric fields with their defaults.
func (s Settings) Normalized() Settings {
	def := DefaultSettings()
	if s.LateDays <= 0 {
		s.LateDays = def.LateDays
	}
	if s.ItemsPerPage <= 0 {
		s.ItemsPerPage = def.ItemsPerPage
	}
	if s.NotificationInterval <= 0 {
		s.NotificationInterval = def.NotificationInterval
	}
	if s.BackupRetention <= 0 {
		s.BackupRetention = def.BackupRetention
	}
	if s.DateFormat == "" {
		s.DateFormat = def.DateFormat
	}
	if s.FontSize == "" {
		s.FontSize = def.FontSize
	}
	return s
}
