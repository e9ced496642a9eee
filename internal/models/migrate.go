package models

import "gorm.io/gorm"

// Migrate 建表/迁移全部业务模型
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&VoiceProfile{},
		&ReferenceSample{},
		&Generation{},
		&Story{},
		&StoryItem{},
	)
}
