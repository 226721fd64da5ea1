package database

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"otelsamples/internal/model"
	"otelsamples/pkg/logger"
)

// Migrate 创建全部表
func Migrate(db *gorm.DB) error {
	if db == nil {
		return gorm.ErrInvalidDB
	}

	logger.Logger.Info("Starting database migration...")
	if err := db.AutoMigrate(model.AllModels()...); err != nil {
		logger.Logger.Error("Database migration failed", zap.Error(err))
		return err
	}
	logger.Logger.Info("Database migration completed successfully")
	return nil
}

// Seed 用户表为空时写入一组示例数据
func Seed(ctx context.Context, db *gorm.DB) error {
	var count int64
	if err := db.WithContext(ctx).Model(&model.User{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		users := []model.User{
			{Username: "alice", Email: "alice@example.com", IsActive: true},
			{Username: "bob", Email: "bob@example.com", IsActive: true},
			{Username: "carol", Email: "carol@example.com", IsActive: false},
		}
		if err := tx.Create(&users).Error; err != nil {
			return err
		}

		fiction := model.Category{Name: "Fiction", Description: "Novels and stories", IsActive: true}
		scifi := model.Category{Name: "Science Fiction", Description: "Speculative fiction", IsActive: true}
		if err := tx.Create(&[]*model.Category{&fiction, &scifi}).Error; err != nil {
			return err
		}

		author := model.Author{
			Name:        "Ursula K. Le Guin",
			Email:       "ursula@example.com",
			BirthDate:   time.Date(1929, 10, 21, 0, 0, 0, 0, time.UTC),
			Nationality: "American",
			IsActive:    true,
		}
		if err := tx.Create(&author).Error; err != nil {
			return err
		}

		book := model.Book{
			Title:         "The Dispossessed",
			ISBN:          "9780060512750",
			PublishedDate: time.Date(1974, 5, 1, 0, 0, 0, 0, time.UTC),
			Price:         15.99,
			InStock:       true,
			AuthorID:      author.ID,
			Categories:    []model.Category{fiction, scifi},
			Reviews: []model.Review{
				{ReviewerName: "dave", Rating: 5, Comment: "An ambiguous utopia."},
			},
		}
		return tx.Create(&book).Error
	})
}

// ActiveUsers ORM 示例查询：最多 limit 个活跃用户
func ActiveUsers(ctx context.Context, db *gorm.DB, limit int) ([]model.User, error) {
	var users []model.User
	err := db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("id").
		Limit(limit).
		Find(&users).Error
	return users, err
}
