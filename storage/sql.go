package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mabroukmoatez/formly-saas-sub017/domain"
)

type categoryRow struct {
	ID       int64  `gorm:"primaryKey;autoIncrement"`
	Name     string `gorm:"not null"`
	Color    string
	Position *int
}

func (categoryRow) TableName() string { return "quality_task_categories" }

type taskRow struct {
	ID              int64  `gorm:"primaryKey;autoIncrement"`
	Title           string `gorm:"not null"`
	Description     string
	Status          string `gorm:"not null;default:todo"`
	Priority        string `gorm:"not null;default:medium"`
	CategoryID      int64  `gorm:"not null;index"`
	Position        int    `gorm:"not null;default:0"`
	DueDate         *string
	StartDate       *string
	EndDate         *string
	AssignedMembers []domain.Member        `gorm:"serializer:json"`
	Attachments     []domain.Attachment    `gorm:"serializer:json"`
	Comments        []domain.Comment       `gorm:"serializer:json"`
	Checklist       []domain.ChecklistItem `gorm:"serializer:json"`
}

func (taskRow) TableName() string { return "quality_tasks" }

// SQLStore keeps the board in a SQLite database through gorm.
type SQLStore struct {
	db *gorm.DB
}

// OpenSQLite opens (and migrates) the database file at path.
func OpenSQLite(path string, debug bool) (*SQLStore, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	level := logger.Silent
	if debug {
		level = logger.Info
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(level),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// sqlite allows a single writer; keep one connection so transactions serialize.
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&categoryRow{}, &taskRow{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &SQLStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks that the database answers.
func (s *SQLStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *SQLStore) ListCategories(ctx context.Context) ([]domain.Category, error) {
	var rows []categoryRow
	if err := s.db.WithContext(ctx).Order("position IS NULL, position, id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Category, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (s *SQLStore) CreateCategory(ctx context.Context, c domain.Category) (domain.Category, error) {
	row := categoryRow{Name: c.Name, Color: c.Color, Position: c.Position}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return domain.Category{}, err
	}
	return row.toDomain(), nil
}

func (s *SQLStore) UpdateCategory(ctx context.Context, id int64, patch domain.CategoryPatch) (domain.Category, error) {
	var out domain.Category
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row categoryRow
		if err := tx.First(&row, id).Error; err != nil {
			return notFound(err)
		}
		c := row.toDomain()
		patch.Apply(&c)
		row.Name, row.Color, row.Position = c.Name, c.Color, c.Position
		if err := tx.Save(&row).Error; err != nil {
			return err
		}
		out = c
		return nil
	})
	return out, err
}

// DeleteCategory removes the category and every task it holds in one
// transaction. It returns the number of deleted tasks.
func (s *SQLStore) DeleteCategory(ctx context.Context, id int64) (int, error) {
	var removed int
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("category_id = ?", id).Delete(&taskRow{})
		if res.Error != nil {
			return res.Error
		}
		removed = int(res.RowsAffected)
		res = tx.Delete(&categoryRow{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

func (s *SQLStore) ListTasks(ctx context.Context) ([]domain.Task, error) {
	var rows []taskRow
	if err := s.db.WithContext(ctx).Order("category_id, position, id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Task, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (s *SQLStore) GetTask(ctx context.Context, id int64) (domain.Task, error) {
	var row taskRow
	if err := s.db.WithContext(ctx).First(&row, id).Error; err != nil {
		return domain.Task{}, notFound(err)
	}
	return row.toDomain(), nil
}

// CreateTask inserts t. A task without position is appended to its category.
func (s *SQLStore) CreateTask(ctx context.Context, t domain.Task) (domain.Task, error) {
	t.Normalize()
	var out domain.Task
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireCategory(tx, t.CategoryID); err != nil {
			return err
		}
		if t.Position == nil {
			next, err := nextPosition(tx, t.CategoryID)
			if err != nil {
				return err
			}
			t.Position = &next
		}
		row := fromDomainTask(t)
		row.ID = 0
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		out = row.toDomain()
		return nil
	})
	return out, err
}

// UpdateTask applies patch. Moving a task to another category without an
// explicit position appends it at the end of the target category.
func (s *SQLStore) UpdateTask(ctx context.Context, id int64, patch domain.TaskPatch) (domain.Task, error) {
	var out domain.Task
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row taskRow
		if err := tx.First(&row, id).Error; err != nil {
			return notFound(err)
		}
		t := row.toDomain()
		moved := patch.CategoryID != nil && *patch.CategoryID != t.CategoryID
		if moved {
			if err := requireCategory(tx, *patch.CategoryID); err != nil {
				return err
			}
		}
		patch.Apply(&t)
		if moved && patch.Position == nil {
			next, err := nextPosition(tx, t.CategoryID)
			if err != nil {
				return err
			}
			t.Position = &next
		}
		updated := fromDomainTask(t)
		if err := tx.Save(&updated).Error; err != nil {
			return err
		}
		out = updated.toDomain()
		return nil
	})
	return out, err
}

// UpdatePositions applies a batched reorder atomically. An unknown id aborts
// the whole batch.
func (s *SQLStore) UpdatePositions(ctx context.Context, updates []domain.PositionUpdate) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, u := range updates {
			res := tx.Model(&taskRow{}).Where("id = ?", u.ID).Update("position", u.Position)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return fmt.Errorf("task %d: %w", u.ID, domain.ErrNotFound)
			}
		}
		return nil
	})
}

func (s *SQLStore) DeleteTask(ctx context.Context, id int64) error {
	res := s.db.WithContext(ctx).Delete(&taskRow{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func requireCategory(tx *gorm.DB, id int64) error {
	var count int64
	if err := tx.Model(&categoryRow{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return domain.NewValidationError("invalid task", domain.FieldError{Field: "category_id", Error: "unknown category"})
	}
	return nil
}

func nextPosition(tx *gorm.DB, categoryID int64) (int, error) {
	var max *int
	if err := tx.Model(&taskRow{}).Where("category_id = ?", categoryID).Select("MAX(position)").Scan(&max).Error; err != nil {
		return 0, err
	}
	if max == nil {
		return 0, nil
	}
	return *max + 1, nil
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ErrNotFound
	}
	return err
}

func (r categoryRow) toDomain() domain.Category {
	return domain.Category{ID: r.ID, Name: r.Name, Color: r.Color, Position: r.Position}
}

func (r taskRow) toDomain() domain.Task {
	t := domain.Task{
		ID:              r.ID,
		Title:           r.Title,
		Description:     r.Description,
		Status:          domain.Status(r.Status),
		Priority:        domain.Priority(r.Priority),
		CategoryID:      r.CategoryID,
		Position:        domain.IntPtr(r.Position),
		DueDate:         r.DueDate,
		StartDate:       r.StartDate,
		EndDate:         r.EndDate,
		AssignedMembers: r.AssignedMembers,
		Attachments:     r.Attachments,
		Comments:        r.Comments,
		Checklist:       r.Checklist,
	}
	t.Normalize()
	return t
}

func fromDomainTask(t domain.Task) taskRow {
	return taskRow{
		ID:              t.ID,
		Title:           t.Title,
		Description:     t.Description,
		Status:          string(t.Status),
		Priority:        string(t.Priority),
		CategoryID:      t.EffectiveCategoryID(),
		Position:        t.EffectivePosition(),
		DueDate:         t.DueDate,
		StartDate:       t.StartDate,
		EndDate:         t.EndDate,
		AssignedMembers: t.AssignedMembers,
		Attachments:     t.Attachments,
		Comments:        t.Comments,
		Checklist:       t.Checklist,
	}
}
