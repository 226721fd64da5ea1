package database

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type widget struct {
	ID   int64
	Name string
}

func openTraced(t *testing.T) (*gorm.DB, *tracetest.SpanRecorder) {
	t.Helper()

	sr := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&widget{}))
	require.NoError(t, WithOTELPlugin(db, PluginConfig{ServiceName: "otel-test"}))
	return db, sr
}

func TestOTELPluginRecordsSpans(t *testing.T) {
	db, sr := openTraced(t)
	ctx := context.Background()

	require.NoError(t, db.WithContext(ctx).Create(&widget{Name: "gear"}).Error)

	var got []widget
	require.NoError(t, db.WithContext(ctx).Where("name = ?", "gear").Find(&got).Error)
	require.Len(t, got, 1)

	names := map[string]sdktrace.ReadOnlySpan{}
	for _, s := range sr.Ended() {
		names[s.Name()] = s
	}
	require.Contains(t, names, "INSERT widgets")
	require.Contains(t, names, "SELECT widgets")

	sel := names["SELECT widgets"]
	assert.Equal(t, codes.Ok, sel.Status().Code)
	var system string
	for _, kv := range sel.Attributes() {
		if kv.Key == "db.system" {
			system = kv.Value.AsString()
		}
	}
	assert.Equal(t, "sqlite", system)
}

func TestOTELPluginRecordNotFoundIsNotError(t *testing.T) {
	db, sr := openTraced(t)

	var w widget
	err := db.First(&w, 42).Error
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	for _, s := range sr.Ended() {
		assert.NotEqual(t, codes.Error, s.Status().Code)
	}
}

func TestOperationFromSQL(t *testing.T) {
	assert.Equal(t, "SELECT", operationFromSQL("  select * from users"))
	assert.Equal(t, "INSERT", operationFromSQL("INSERT INTO x VALUES (1)"))
	assert.Equal(t, "QUERY", operationFromSQL("PRAGMA foreign_keys"))
	assert.Equal(t, "QUERY", operationFromSQL(""))
}

func TestTruncateHidesLiterals(t *testing.T) {
	p := NewOTELPlugin(PluginConfig{MaxSQLLength: 20})
	assert.Equal(t, "SELECT * WHERE a='?'", p.truncate("SELECT * WHERE a='secret'"))
	assert.Equal(t, "SELECT aaaaaaaaaaaaa...", p.truncate("SELECT aaaaaaaaaaaaaaaaaaaaaaaa"))
}
