package models

// Setting is one key/value row of the engine configuration. The full set is
// loaded at startup and replaced wholesale when an administrator updates
// settings.
type Setting struct {
	Key   string `gorm:"primaryKey;size:128"`
	Value string `gorm:"type:text"`
}
