package models

import "time"

type FieldType string

const (
	FieldTypeText     FieldType = "text"
	FieldTypeHTML     FieldType = "html"
	FieldTypeMarkdown FieldType = "markdown"
)

// FieldMapping declares that <FieldName>_<SourceLanguage> on TableName should be
// translated into <FieldName>_<lang> for every lang in TargetLanguages.
type FieldMapping struct {
	ID              uint      `gorm:"primarykey"`
	TableName       string    `gorm:"size:64;not null;uniqueIndex:idx_field_mapping,priority:1"`
	FieldName       string    `gorm:"size:64;not null;uniqueIndex:idx_field_mapping,priority:2"`
	FieldType       FieldType `gorm:"size:16;not null;default:text"`
	AutoTranslate   bool
	IsActive        bool `gorm:"index"`
	Priority        int
	SourceLanguage  string   `gorm:"size:10;default:en"`
	TargetLanguages []string `gorm:"type:text;serializer:json"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
