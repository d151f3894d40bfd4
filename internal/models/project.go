package models

import "time"

// Project is a local working directory the assistant operates on.
type Project struct {
	ID         string `gorm:"primaryKey;size:36"`
	Name       string `gorm:"size:128;not null"`
	Path       string `gorm:"size:512;not null"`
	DevCommand string `gorm:"size:256"`
	GitHubRepo string `gorm:"size:256"` // owner/name once published
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
