package models

import (
	"time"
)

// TranslationCache is one cached provider result. CacheKey is derived from the
// normalized text, both languages and the requested provider.
type TranslationCache struct {
	ID                     uint   `gorm:"primarykey"`
	CacheKey               string `gorm:"size:64;uniqueIndex;not null"`
	SourceText             string `gorm:"type:text"`
	TranslatedText         string `gorm:"type:text;not null"`
	SourceLanguage         string `gorm:"size:10;index"`
	TargetLanguage         string `gorm:"size:10;index"`
	DetectedSourceLanguage string `gorm:"size:10"`
	Provider               string `gorm:"size:32;index"`
	CharacterCount         int
	AccessCount            int `gorm:"default:0"`
	CreatedAt              time.Time
	ExpiresAt              time.Time `gorm:"index"`
	LastAccessedAt         time.Time
}

func (TranslationCache) TableName() string {
	return "translation_cache"
}
