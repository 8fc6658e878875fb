package pagination

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
)

type row struct {
	ID int
}

func TestEncodeDecodeCursor(t *testing.T) {
	token, err := EncodeCursor(Cursor{ID: "123", CreatedAt: "2026-01-02T15:04:05Z"})
	assert.NoError(t, err)
	assert.NotEmpty(t, token)

	cursor, err := DecodeCursor(token)
	assert.NoError(t, err)
	assert.Equal(t, "123", cursor.ID)
	assert.Equal(t, "2026-01-02T15:04:05Z", cursor.CreatedAt)
}

func TestDecodeCursorRejectsGarbage(t *testing.T) {
	_, err := DecodeCursor("not-base64!!!")
	assert.Error(t, err)

	_, err = DecodeCursor("bm90LWpzb24=")
	assert.Error(t, err)
}

func TestBuildCursorPageInfoEmpty(t *testing.T) {
	info := BuildCursorPageInfo(nil, 10, func(r *row) string { return "" })
	assert.False(t, info.HasMore)
	assert.Empty(t, info.NextPageToken)
}

func TestBuildCursorPageInfoProbeRow(t *testing.T) {
	rows := []*row{{ID: 3}, {ID: 2}, {ID: 1}}

	info := BuildCursorPageInfo(rows, 2, func(r *row) string { return strconv.Itoa(r.ID) })
	assert.True(t, info.HasMore)
	// Token points at the last row of the trimmed page, not the probe row.
	assert.Equal(t, "2", info.NextPageToken)
}

func TestBuildCursorPageInfoLastPage(t *testing.T) {
	rows := []*row{{ID: 2}, {ID: 1}}

	info := BuildCursorPageInfo(rows, 2, func(r *row) string { return strconv.Itoa(r.ID) })
	assert.False(t, info.HasMore)
	assert.Equal(t, "1", info.NextPageToken)
}
