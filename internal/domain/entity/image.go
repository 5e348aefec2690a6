// Package entity 定义领域实体
package entity

import "time"

// GeneratedImage 单张候选图像的元数据
// 图像字节由外部对象存储持有，这里仅记录 URL 与属性
type GeneratedImage struct {
	ID              string    `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	RequestID       string    `json:"request_id" gorm:"type:uuid;index;not null"`
	IterationNumber int       `json:"iteration_number" gorm:"not null"`
	URL             string    `json:"url" gorm:"type:text;not null"`
	Width           int       `json:"width,omitempty"`
	Height          int       `json:"height,omitempty"`
	MimeType        string    `json:"mime_type,omitempty" gorm:"type:varchar(100)"`
	SizeBytes       int64     `json:"size_bytes,omitempty"`
	AggregateScore  float64   `json:"aggregate_score"`
	CreatedAt       time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// TableName 指定表名
func (GeneratedImage) TableName() string {
	return "generated_images"
}
