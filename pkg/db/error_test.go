package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestIsDuplicateKeyErr(t *testing.T) {
	assert.False(t, IsDuplicateKeyErr(nil))
	assert.True(t, IsDuplicateKeyErr(gorm.ErrDuplicatedKey))
	assert.True(t, IsDuplicateKeyErr(&pgconn.PgError{Code: "23505"}))
	assert.True(t, IsDuplicateKeyErr(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})))
	assert.True(t, IsDuplicateKeyErr(errors.New("Error 1062 (23000): Duplicate entry 'evt-1'")))
	assert.True(t, IsDuplicateKeyErr(errors.New("UNIQUE constraint failed: usage_events.idempotency_key")))
	assert.False(t, IsDuplicateKeyErr(&pgconn.PgError{Code: "40001"}))
	assert.False(t, IsDuplicateKeyErr(errors.New("connection refused")))
}

func TestIsSerializationErr(t *testing.T) {
	assert.False(t, IsSerializationErr(nil))
	assert.True(t, IsSerializationErr(&pgconn.PgError{Code: "40001"}))
	assert.True(t, IsSerializationErr(&pgconn.PgError{Code: "40P01"}))
	assert.True(t, IsSerializationErr(fmt.Errorf("commit: %w", &pgconn.PgError{Code: "40001"})))
	assert.True(t, IsSerializationErr(errors.New("Error 1213 (40001): Deadlock found when trying to get lock")))
	assert.True(t, IsSerializationErr(errors.New("database is locked (5) (SQLITE_BUSY)")))
	assert.False(t, IsSerializationErr(&pgconn.PgError{Code: "23505"}))
	assert.False(t, IsSerializationErr(errors.New("broken pipe")))
}
