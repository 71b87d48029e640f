// Package testutil provides shared fixtures for backend tests.
package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"murmur/internal/database"
	"murmur/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var dbSeq atomic.Int64

// NewDB opens a private in-memory sqlite database with the full schema.
// A single connection keeps every statement, transactions included, on the
// same in-memory database. It also serializes transactions, so tests that race
// goroutines here exercise the guarded writes but never interleave two open
// promotions; the lost-race path inside a transaction is covered with sqlmock.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:testdb%d?mode=memory&cache=shared", dbSeq.Add(1))

	cfg := database.GormConfig()
	cfg.Logger = database.NewGormLogger(logger.Silent)
	db, err := gorm.Open(sqlite.Open(dsn), cfg)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// NewRedis starts a miniredis instance and returns a client bound to it.
func NewRedis(t testing.TB) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return mr, rdb
}

// CreateUser inserts a user with a unique username and email.
func CreateUser(t testing.TB, db *gorm.DB, username string) *models.User {
	t.Helper()
	u := &models.User{
		Username: username,
		Email:    username + "@example.com",
		Password: "x",
	}
	if err := db.Create(u).Error; err != nil {
		t.Fatalf("create user %s: %v", username, err)
	}
	return u
}

// CreateScheduledPost inserts a pending scheduled post for userID.
func CreateScheduledPost(t testing.TB, db *gorm.DB, userID uint, content string, at time.Time) *models.ScheduledPost {
	t.Helper()
	sp := &models.ScheduledPost{
		UserID:          userID,
		Content:         content,
		CommentsEnabled: true,
		ScheduledAt:     at.UTC().Truncate(time.Microsecond),
		Status:          models.ScheduledPostPending,
	}
	if err := db.Create(sp).Error; err != nil {
		t.Fatalf("create scheduled post: %v", err)
	}
	return sp
}
