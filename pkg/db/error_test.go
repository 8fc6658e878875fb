package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestIsDuplicateKeyErr(t *testing.T) {
	assert.False(t, IsDuplicateKeyErr(nil))
	assert.False(t, IsDuplicateKeyErr(errors.New("connection refused")))

	assert.True(t, IsDuplicateKeyErr(gorm.ErrDuplicatedKey))
	assert.True(t, IsDuplicateKeyErr(fmt.Errorf("wrapped: %w", gorm.ErrDuplicatedKey)))
	assert.True(t, IsDuplicateKeyErr(errors.New(`ERROR: duplicate key value violates unique constraint "ux_usage_entries_reference" (SQLSTATE 23505)`)))
	assert.True(t, IsDuplicateKeyErr(errors.New("Error 1062 (23000): Duplicate entry")))
	assert.True(t, IsDuplicateKeyErr(errors.New("UNIQUE constraint failed: usage_entries.reference_id")))
}

func TestIsSerializationErr(t *testing.T) {
	assert.False(t, IsSerializationErr(nil))
	assert.False(t, IsSerializationErr(errors.New("syntax error")))

	assert.True(t, IsSerializationErr(errors.New("ERROR: could not serialize access due to concurrent update (SQLSTATE 40001)")))
	assert.True(t, IsSerializationErr(errors.New("ERROR: deadlock detected (SQLSTATE 40P01)")))
	assert.True(t, IsSerializationErr(errors.New("Error 1213: Deadlock found when trying to get lock")))
	assert.True(t, IsSerializationErr(errors.New("database is locked")))
}
