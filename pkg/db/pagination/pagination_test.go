package pagination

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type row struct{ id string }

func TestCursorRoundTrip(t *testing.T) {
	token, err := EncodeCursor(Cursor{ID: "42"})
	require.NoError(t, err)

	cursor, err := DecodeCursor(token)
	require.NoError(t, err)
	assert.Equal(t, "42", cursor.ID)

	_, err = DecodeCursor("not base64!")
	assert.Error(t, err)
}

func TestBuildCursorPageInfoTrimsExtraRow(t *testing.T) {
	data := []*row{{id: "3"}, {id: "2"}, {id: "1"}}

	page, info := BuildCursorPageInfo(data, 2, func(r *row) string { return r.id })
	assert.Len(t, page, 2)
	assert.True(t, info.HasMore)
	assert.Equal(t, "2", info.NextPageToken)

	page, info = BuildCursorPageInfo(data, 5, func(r *row) string { return r.id })
	assert.Len(t, page, 3)
	assert.False(t, info.HasMore)
	assert.Empty(t, info.NextPageToken)
}

func TestNormalizeSize(t *testing.T) {
	assert.Equal(t, int32(DefaultPageSize), NormalizeSize(0))
	assert.Equal(t, int32(MaxPageSize), NormalizeSize(1000))
	assert.Equal(t, int32(10), NormalizeSize(10))
}
