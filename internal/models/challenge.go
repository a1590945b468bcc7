package models

// Challenge declares a deployable challenge: which image to run, which port
// the service listens on inside the container, and how players connect.
// Owned by the scoring subsystem; the lifecycle core only reads it.
type Challenge struct {
	ID           uint   `gorm:"primaryKey;autoIncrement"`
	Name         string `gorm:"size:128;not null"`
	Image        string `gorm:"type:text;not null"`
	InternalPort int    `gorm:"not null"`
	Command      string `gorm:"type:text"`
	Volumes      string `gorm:"type:text"` // JSON mapping of host path -> bind spec
	ConnectType  string `gorm:"size:16;default:tcp"`
	SSHUsername  string `gorm:"type:text"`
	SSHPassword  string `gorm:"type:text"`

	// Scoring fields (value decay). Read and written by the scoring
	// subsystem only.
	Initial int `gorm:"default:0"`
	Minimum int `gorm:"default:0"`
	Decay   int `gorm:"default:0"`
}
