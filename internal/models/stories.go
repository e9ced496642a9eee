package models

import "time"

// Story 一个多段落音频项目，持有一条共享时间轴上的若干条目
type Story struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Name string `gorm:"size:255" json:"name"`

	Items []StoryItem `gorm:"foreignKey:StoryID;constraint:OnDelete:CASCADE" json:"items"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// StoryItem 时间轴上的一段已放置的剪辑。只引用 Generation，不持有音频字节。
// 不变式：StartTimeMs >= 0；Duration > 0；
// SourceOffsetMs + Duration*1000 不得超出底层 Generation 的音频长度。
type StoryItem struct {
	ID           uint  `gorm:"primaryKey" json:"id"`
	StoryID      uint  `gorm:"index" json:"storyId"`
	GenerationID uint  `gorm:"index" json:"generationId"`

	StartTimeMs    int64   `json:"startTimeMs"`              // 时间轴上的起点
	Duration       float64 `json:"duration"`                 // 播放时长，秒（trim 可缩短）
	SourceOffsetMs int64   `json:"sourceOffsetMs"`           // 底层音频内的起始偏移
	Language       string  `gorm:"size:32" json:"language"`  // 冗余展示
	ProfileName    string  `gorm:"size:255" json:"profileName"` // 冗余展示，非权威

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// DurationMs 播放时长（毫秒）
func (i *StoryItem) DurationMs() int64 {
	return int64(i.Duration*1000 + 0.5)
}

// EndTimeMs 时间轴上的终点
func (i *StoryItem) EndTimeMs() int64 {
	return i.StartTimeMs + i.DurationMs()
}
