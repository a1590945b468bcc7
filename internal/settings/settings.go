// Package settings loads and stores the engine configuration persisted as
// key/value rows. The whole set is replaced when an administrator updates
// settings, after which the lifecycle manager reconnects and rebuilds its
// expiry scheduler.
package settings

import (
	"fmt"
	"strconv"

	"github.com/ctfleet/instancer/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Setting keys as stored in the settings table.
const (
	KeyEngineEndpoint    = "engine_endpoint"
	KeyHostLabel         = "host_label"
	KeyExpirationMinutes = "expiration_minutes"
	KeyMaxMemoryMB       = "max_memory_mb"
	KeyMaxCPU            = "max_cpu"
)

// Keys lists every setting the admin surface must supply on update.
var Keys = []string{
	KeyEngineEndpoint,
	KeyHostLabel,
	KeyExpirationMinutes,
	KeyMaxMemoryMB,
	KeyMaxCPU,
}

// Settings is the typed view of the engine configuration. MaxMemoryMB and
// MaxCPU stay raw strings: they are validated when a container is created,
// so a bad value fails the request instead of being silently dropped here.
type Settings struct {
	EngineEndpoint    string
	HostLabel         string
	ExpirationMinutes int
	MaxMemoryMB       string
	MaxCPU            string
}

// FromMap builds Settings from raw key/value pairs. An unparsable
// expiration is treated as zero, which disables the expiry scheduler.
func FromMap(m map[string]string) Settings {
	minutes, err := strconv.Atoi(m[KeyExpirationMinutes])
	if err != nil || minutes < 0 {
		minutes = 0
	}
	return Settings{
		EngineEndpoint:    m[KeyEngineEndpoint],
		HostLabel:         m[KeyHostLabel],
		ExpirationMinutes: minutes,
		MaxMemoryMB:       m[KeyMaxMemoryMB],
		MaxCPU:            m[KeyMaxCPU],
	}
}

// ToMap returns the raw key/value form of s.
func (s Settings) ToMap() map[string]string {
	return map[string]string{
		KeyEngineEndpoint:    s.EngineEndpoint,
		KeyHostLabel:         s.HostLabel,
		KeyExpirationMinutes: strconv.Itoa(s.ExpirationMinutes),
		KeyMaxMemoryMB:       s.MaxMemoryMB,
		KeyMaxCPU:            s.MaxCPU,
	}
}

// ExpirationSeconds returns the configured instance lifetime in seconds.
func (s Settings) ExpirationSeconds() int64 {
	return int64(s.ExpirationMinutes) * 60
}

// Load reads all setting rows and returns the typed view.
func Load(db *gorm.DB) (Settings, error) {
	var rows []models.Setting
	if err := db.Find(&rows).Error; err != nil {
		return Settings{}, fmt.Errorf("settings: load: %w", err)
	}
	m := make(map[string]string, len(rows))
	for _, row := range rows {
		m[row.Key] = row.Value
	}
	return FromMap(m), nil
}

// Save upserts the given key/value pairs into the settings table.
func Save(db *gorm.DB, values map[string]string) error {
	for key, value := range values {
		row := models.Setting{Key: key, Value: value}
		result := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value"}),
		}).Create(&row)
		if result.Error != nil {
			return fmt.Errorf("settings: save %q: %w", key, result.Error)
		}
	}
	return nil
}
