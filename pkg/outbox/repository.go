package outbox

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// ErrRecordNotFound — запись outbox не найдена.
var ErrRecordNotFound = errors.New("запись outbox не найдена")

// Repository — хранилище записей outbox.
type Repository interface {
	Create(ctx context.Context, record *Record) error
	// GetUnprocessed возвращает неотправленные записи, сначала с меньшим числом попыток.
	GetUnprocessed(ctx context.Context, limit int) ([]*Record, error)
	MarkProcessed(ctx context.Context, id string) error
	// MarkFailed увеличивает retry_count и сохраняет текст ошибки.
	MarkFailed(ctx context.Context, id string, err error) error
	// DeleteProcessedBefore удаляет отправленные записи старше before (не более 1000 за вызов).
	DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
}

// gormRepository — GORM реализация Repository, ограниченная одним типом агрегата.
type gormRepository struct {
	db            *gorm.DB
	aggregateType string
}

// NewRepository создаёт репозиторий outbox для указанного типа агрегата.
func NewRepository(db *gorm.DB, aggregateType string) Repository {
	return &gormRepository{db: db, aggregateType: aggregateType}
}

func (r *gormRepository) Create(ctx context.Context, record *Record) error {
	if record.AggregateType == "" {
		record.AggregateType = r.aggregateType
	}
	model := modelFromRecord(record)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	record.CreatedAt = model.CreatedAt
	return nil
}

func (r *gormRepository) GetUnprocessed(ctx context.Context, limit int) ([]*Record, error) {
	var models []Model

	if err := r.db.WithContext(ctx).
		Where("processed_at IS NULL AND aggregate_type = ?", r.aggregateType).
		Order("retry_count ASC, created_at ASC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}

	records := make([]*Record, len(models))
	for i := range models {
		records[i] = models[i].toRecord()
	}
	return records, nil
}

func (r *gormRepository) MarkProcessed(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Model(&Model{}).
		Where("id = ?", id).
		Update("processed_at", time.Now().UTC())
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (r *gormRepository) MarkFailed(ctx context.Context, id string, cause error) error {
	result := r.db.WithContext(ctx).Model(&Model{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"retry_count": gorm.Expr("retry_count + 1"),
			"last_error":  cause.Error(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (r *gormRepository) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("processed_at IS NOT NULL AND processed_at < ? AND aggregate_type = ?", before, r.aggregateType).
		Limit(1000).
		Delete(&Model{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
