package services

import (
	"context"
	"fmt"
	"html"
	"regexp"
	"sort"
	"strings"

	"portfolio_translation_go_backend/internal/models"
	"portfolio_translation_go_backend/internal/providers"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog/log"
)

const (
	DefaultMapperBatchSize = 10
	defaultBulkLimit       = 100
	maxBulkLimit           = 1000
	fieldMapperClientID    = "field-mapper"
)

var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func validateTableName(table string) error {
	if !identifierPattern.MatchString(table) {
		return newValidationError("table_name", "%q is not a valid table name", table)
	}
	return nil
}

// BatchTranslator is the part of the translation service the field mapper uses.
type BatchTranslator interface {
	TranslateBatch(ctx context.Context, items []providers.Item, opts TranslateOptions) ([]TranslationResult, error)
}

type RecordTranslation struct {
	Record  map[string]interface{} `json:"record"`
	Updated map[string]interface{} `json:"updated_fields"`
}

type BulkOptions struct {
	Limit  int
	Offset int
	Force  bool
	// Progress is called after each record with the number handled so far.
	Progress func(done, total int)
}

type BulkResult struct {
	Processed int      `json:"processed"`
	Updated   int      `json:"updated"`
	Errors    []string `json:"errors"`
}

type FieldMapper struct {
	db         FieldMapperServiceDB
	translator BatchTranslator
	batchSize  int
	sleep      sleepFunc
}

func NewFieldMapper(db FieldMapperServiceDB, translator BatchTranslator, batchSize int) *FieldMapper {
	if batchSize <= 0 {
		batchSize = DefaultMapperBatchSize
	}
	return &FieldMapper{db: db, translator: translator, batchSize: batchSize, sleep: sleepContext}
}

func (m *FieldMapper) ListMappings(ctx context.Context) ([]models.FieldMapping, error) {
	return m.db.ListMappingsDB(ctx)
}

func (m *FieldMapper) SaveMapping(ctx context.Context, mapping *models.FieldMapping) error {
	if err := validateTableName(mapping.TableName); err != nil {
		return err
	}
	if !identifierPattern.MatchString(mapping.FieldName) {
		return newValidationError("field_name", "%q is not a valid column name", mapping.FieldName)
	}
	switch mapping.FieldType {
	case "":
		mapping.FieldType = models.FieldTypeText
	case models.FieldTypeText, models.FieldTypeHTML, models.FieldTypeMarkdown:
	default:
		return newValidationError("field_type", "unsupported field type %q", mapping.FieldType)
	}
	if mapping.SourceLanguage == "" {
		mapping.SourceLanguage = "en"
	}
	if len(mapping.TargetLanguages) == 0 {
		return newValidationError("target_languages", "at least one target language is required")
	}
	for _, lang := range append([]string{mapping.SourceLanguage}, mapping.TargetLanguages...) {
		if !identifierPattern.MatchString(strings.ReplaceAll(lang, "-", "_")) {
			return newValidationError("target_languages", "%q is not a valid language code", lang)
		}
	}
	return m.db.SaveMappingDB(ctx, mapping)
}

func (m *FieldMapper) mappingsFor(ctx context.Context, table string) ([]models.FieldMapping, error) {
	if err := validateTableName(table); err != nil {
		return nil, err
	}
	mappings, err := m.db.GetActiveMappingsDB(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("failed to load field mappings for %s: %w", table, err)
	}
	if len(mappings) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	sort.SliceStable(mappings, func(i, j int) bool { return mappings[i].Priority > mappings[j].Priority })
	return mappings, nil
}

type fieldTask struct {
	column    string
	fieldType models.FieldType
	item      providers.Item
}

// AutoTranslateRecord fills the empty localized fields of record from its
// source-language fields, using the mappings marked for auto-translation.
// The returned record is a copy with the new values merged in. A
// RateLimitError is returned to the caller rather than waited out.
func (m *FieldMapper) AutoTranslateRecord(ctx context.Context, table string, record map[string]interface{}, sourceLanguage string) (*RecordTranslation, error) {
	return m.translateRecord(ctx, table, record, sourceLanguage, false, false)
}

// translateRecord skips populated fields and mappings without AutoTranslate
// unless force is set. With wait, rate limited chunks are retried after
// RetryAfter.
func (m *FieldMapper) translateRecord(ctx context.Context, table string, record map[string]interface{}, sourceLanguage string, force, wait bool) (*RecordTranslation, error) {
	mappings, err := m.mappingsFor(ctx, table)
	if err != nil {
		return nil, err
	}

	var tasks []fieldTask
	for _, mapping := range mappings {
		if !mapping.AutoTranslate && !force {
			continue
		}
		source := sourceLanguage
		if source == "" {
			source = mapping.SourceLanguage
		}
		text := sourceFieldText(record, mapping.FieldName, source)
		if text == "" {
			continue
		}
		for _, target := range mapping.TargetLanguages {
			if strings.EqualFold(target, source) {
				continue
			}
			column := localizedColumn(mapping.FieldName, target)
			if !force && fieldText(record[column]) != "" {
				continue
			}
			tasks = append(tasks, fieldTask{
				column:    column,
				fieldType: mapping.FieldType,
				item:      providers.Item{Text: text, Source: source, Target: target},
			})
		}
	}

	out := &RecordTranslation{
		Record:  make(map[string]interface{}, len(record)+len(tasks)),
		Updated: make(map[string]interface{}, len(tasks)),
	}
	for k, v := range record {
		out.Record[k] = v
	}

	for start := 0; start < len(tasks); start += m.batchSize {
		end := start + m.batchSize
		if end > len(tasks) {
			end = len(tasks)
		}
		chunk := tasks[start:end]
		items := make([]providers.Item, len(chunk))
		for i, task := range chunk {
			items[i] = task.item
		}
		opts := TranslateOptions{ClientID: fieldMapperClientID}
		var results []TranslationResult
		if wait {
			results, err = translateWithBackoff(ctx, m.translator, items, opts, m.sleep)
		} else {
			results, err = m.translator.TranslateBatch(ctx, items, opts)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to translate %s fields: %w", table, err)
		}
		for i, task := range chunk {
			value := postProcess(task.fieldType, results[i].TranslatedText)
			if value == "" {
				continue
			}
			out.Record[task.column] = value
			out.Updated[task.column] = value
		}
	}
	return out, nil
}

// BulkTranslateTable pages through table and persists new translations.
// Per-record failures are collected in the result and do not stop the run.
func (m *FieldMapper) BulkTranslateTable(ctx context.Context, table, sourceLanguage string, opts BulkOptions) (*BulkResult, error) {
	if _, err := m.mappingsFor(ctx, table); err != nil {
		return nil, err
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultBulkLimit
	}
	if limit > maxBulkLimit {
		limit = maxBulkLimit
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	records, err := m.db.ListRecordsDB(ctx, table, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to load records from %s: %w", table, err)
	}

	result := &BulkResult{Errors: []string{}}
	var merr *multierror.Error
	for i, record := range records {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		result.Processed++
		updated, err := m.persistRecord(ctx, table, record, sourceLanguage, opts.Force)
		if err != nil {
			merr = multierror.Append(merr, fmt.Errorf("record %v: %w", record["id"], err))
		} else if updated {
			result.Updated++
		}
		if opts.Progress != nil {
			opts.Progress(i+1, len(records))
		}
	}
	if merr != nil {
		for _, e := range merr.Errors {
			result.Errors = append(result.Errors, e.Error())
		}
		log.Warn().Str("table", table).Int("failed", len(merr.Errors)).Msg("Bulk table translation finished with errors")
	}
	log.Info().Str("table", table).Int("processed", result.Processed).Int("updated", result.Updated).
		Msg("Bulk table translation finished")
	return result, nil
}

// SyncRecordTranslations translates one stored record and saves the result.
func (m *FieldMapper) SyncRecordTranslations(ctx context.Context, table, recordID, sourceLanguage string, force bool) (*RecordTranslation, error) {
	if err := validateTableName(table); err != nil {
		return nil, err
	}
	record, err := m.db.GetRecordDB(ctx, table, recordID)
	if err != nil {
		return nil, err
	}
	translated, err := m.translateRecord(ctx, table, record, sourceLanguage, force, true)
	if err != nil {
		return nil, err
	}
	if err := m.saveUpdates(ctx, table, record, translated.Updated); err != nil {
		return nil, err
	}
	return translated, nil
}

func (m *FieldMapper) persistRecord(ctx context.Context, table string, record map[string]interface{}, sourceLanguage string, force bool) (bool, error) {
	translated, err := m.translateRecord(ctx, table, record, sourceLanguage, force, true)
	if err != nil {
		return false, err
	}
	if err := m.saveUpdates(ctx, table, record, translated.Updated); err != nil {
		return false, err
	}
	return len(columnsPresent(record, translated.Updated)) > 0, nil
}

// saveUpdates writes only columns the stored row actually has.
func (m *FieldMapper) saveUpdates(ctx context.Context, table string, record, updated map[string]interface{}) error {
	fields := columnsPresent(record, updated)
	if len(fields) == 0 {
		return nil
	}
	if err := m.db.UpdateRecordDB(ctx, table, record["id"], fields); err != nil {
		return fmt.Errorf("failed to save translations: %w", err)
	}
	return nil
}

func columnsPresent(record, updated map[string]interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(updated))
	for column, value := range updated {
		if _, ok := record[column]; ok {
			fields[column] = value
		}
	}
	return fields
}

func localizedColumn(field, lang string) string {
	return field + "_" + strings.ReplaceAll(strings.ToLower(lang), "-", "_")
}

// sourceFieldText prefers <field>_<lang> and falls back to the bare field.
func sourceFieldText(record map[string]interface{}, field, lang string) string {
	if text := fieldText(record[localizedColumn(field, lang)]); text != "" {
		return text
	}
	return fieldText(record[field])
}

func fieldText(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case []byte:
		return strings.TrimSpace(string(val))
	case *string:
		if val == nil {
			return ""
		}
		return strings.TrimSpace(*val)
	default:
		return strings.TrimSpace(fmt.Sprint(val))
	}
}

func postProcess(fieldType models.FieldType, text string) string {
	if fieldType == models.FieldTypeHTML {
		return html.UnescapeString(text)
	}
	return strings.TrimSpace(text)
}
