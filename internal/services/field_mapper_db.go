package services

import (
	"context"
	"errors"
	"fmt"

	"portfolio_translation_go_backend/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FieldMapperServiceDB reads mappings and the localized records they describe.
// Records are plain column maps keyed by the "id" column.
type FieldMapperServiceDB interface {
	GetActiveMappingsDB(ctx context.Context, table string) ([]models.FieldMapping, error)
	ListMappingsDB(ctx context.Context) ([]models.FieldMapping, error)
	SaveMappingDB(ctx context.Context, mapping *models.FieldMapping) error
	GetRecordDB(ctx context.Context, table, recordID string) (map[string]interface{}, error)
	ListRecordsDB(ctx context.Context, table string, limit, offset int) ([]map[string]interface{}, error)
	UpdateRecordDB(ctx context.Context, table string, recordID interface{}, fields map[string]interface{}) error
}

type DefaultFieldMapperService struct {
	db *gorm.DB
}

func NewFieldMapperServiceDB(db *gorm.DB) FieldMapperServiceDB {
	return &DefaultFieldMapperService{db: db}
}

func (s *DefaultFieldMapperService) GetActiveMappingsDB(ctx context.Context, table string) ([]models.FieldMapping, error) {
	var mappings []models.FieldMapping
	err := s.db.WithContext(ctx).
		Where("table_name = ? AND is_active = ?", table, true).
		Order("priority DESC, field_name ASC").
		Find(&mappings).Error
	return mappings, err
}

func (s *DefaultFieldMapperService) ListMappingsDB(ctx context.Context) ([]models.FieldMapping, error) {
	var mappings []models.FieldMapping
	err := s.db.WithContext(ctx).Order("table_name ASC, priority DESC, field_name ASC").Find(&mappings).Error
	return mappings, err
}

func (s *DefaultFieldMapperService) SaveMappingDB(ctx context.Context, mapping *models.FieldMapping) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "table_name"}, {Name: "field_name"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"field_type", "auto_translate", "is_active", "priority", "source_language", "target_languages", "updated_at",
		}),
	}).Create(mapping).Error
}

func (s *DefaultFieldMapperService) GetRecordDB(ctx context.Context, table, recordID string) (map[string]interface{}, error) {
	record := map[string]interface{}{}
	err := s.db.WithContext(ctx).Table(table).Where("id = ?", recordID).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("record %s not found in %s: %w", recordID, table, err)
	}
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (s *DefaultFieldMapperService) ListRecordsDB(ctx context.Context, table string, limit, offset int) ([]map[string]interface{}, error) {
	var records []map[string]interface{}
	err := s.db.WithContext(ctx).Table(table).Order("id ASC").Limit(limit).Offset(offset).Find(&records).Error
	return records, err
}

func (s *DefaultFieldMapperService) UpdateRecordDB(ctx context.Context, table string, recordID interface{}, fields map[string]interface{}) error {
	return s.db.WithContext(ctx).Table(table).Where("id = ?", recordID).Updates(fields).Error
}
