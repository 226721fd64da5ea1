package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"otelsamples/internal/model"
)

func TestOpenMigrateSeed(t *testing.T) {
	db, err := Open(Options{Driver: "sqlite", DSN: ":memory:", ServiceName: "otel-test"})
	require.NoError(t, err)
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		_ = sqlDB.Close()
	})

	require.NoError(t, Migrate(db))
	ctx := context.Background()
	require.NoError(t, Seed(ctx, db))
	// 第二次不重复写入
	require.NoError(t, Seed(ctx, db))

	var users int64
	require.NoError(t, db.Model(&model.User{}).Count(&users).Error)
	assert.Equal(t, int64(3), users)

	active, err := ActiveUsers(ctx, db, 10)
	require.NoError(t, err)
	assert.Len(t, active, 2)

	var book model.Book
	require.NoError(t, db.Preload("Author").Preload("Categories").Preload("Reviews").First(&book).Error)
	assert.Equal(t, "Ursula K. Le Guin", book.Author.Name)
	assert.Len(t, book.Categories, 2)
	require.Len(t, book.Reviews, 1)
	assert.True(t, model.ValidRating(book.Reviews[0].Rating))

	assert.NoError(t, Ping(ctx, db))
}

func TestOpenUnsupportedDriver(t *testing.T) {
	_, err := Open(Options{Driver: "mysql"})
	assert.Error(t, err)
}
