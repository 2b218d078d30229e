package models

import "gorm.io/gorm"

// Migrate creates/updates all tables this subsystem owns or reads
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&User{},
		&Lead{},
		&LeadCustomField{},
		&LeadActivity{},
		&WebhookEvent{},
		&Notification{},
	)
}
