package models

import "time"

// VoiceProfile 一个声音档案，持有若干参考音频样本
type VoiceProfile struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	Name        string `gorm:"size:255" json:"name"`
	Language    string `gorm:"size:32" json:"language"` // e.g. "en", "zh"
	Description string `gorm:"type:text" json:"description"`

	Samples []ReferenceSample `gorm:"foreignKey:ProfileID;constraint:OnDelete:CASCADE" json:"samples"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ReferenceSample 声纹克隆的参考音频
type ReferenceSample struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	ProfileID  uint   `gorm:"index" json:"profileId"`
	FileKey    string `gorm:"size:1024" json:"-"`        // 对象存储 key
	Transcript string `gorm:"type:text" json:"transcript"` // 参考音频的文字内容
	DurationMs int64  `json:"durationMs"`
	SizeBytes  int64  `json:"sizeBytes"`
	Checksum   string `gorm:"size:128" json:"checksum"` // 内容哈希，prompt 缓存键的组成部分
	CreatedAt  time.Time `json:"createdAt"`
}

// Generation 一次已落库的合成结果。创建后不可变，时间轴只读取它
type Generation struct {
	ID          uint    `gorm:"primaryKey" json:"id"`
	ProfileID   uint    `gorm:"index" json:"profileId"`
	ProfileName string  `gorm:"size:255" json:"profileName"` // 冗余展示字段，非权威
	Text        string  `gorm:"type:text" json:"text"`
	Language    string  `gorm:"size:32" json:"language"`
	ModelSize   string  `gorm:"size:32" json:"modelSize"`
	Duration    float64 `json:"duration"` // 音频时长，秒
	AudioKey    string  `gorm:"size:1024" json:"-"`
	Seed        *int64  `json:"seed,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// DurationMs 音频时长（毫秒）
func (g *Generation) DurationMs() int64 {
	return int64(g.Duration*1000 + 0.5)
}
