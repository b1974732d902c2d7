package protocol

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseScalarFormats(t *testing.T) {
	item, err := Parse("si")
	require.NoError(t, err)

	encoded := pack(t, item, "name", 5)
	value := decode(t, item, encoded)
	assert.Equal(t, []any{"name", 5}, value)
}

func TestParseSingleItemUnwraps(t *testing.T) {
	item, err := Parse("s")
	require.NoError(t, err)
	assert.Equal(t, "solo", decode(t, item, pack(t, item, "solo")))
}

func TestParseRawBytes(t *testing.T) {
	item, err := Parse("20b")
	require.NoError(t, err)

	digest := make([]byte, 20)
	for i := range digest {
		digest[i] = byte(i)
	}
	assert.Equal(t, digest, decode(t, item, pack(t, item, digest)))
}

func TestParseTopLevelList(t *testing.T) {
	item, err := Parse("[s]")
	require.NoError(t, err)

	value := decode(t, item, pack(t, item, []string{"x", "y"}))
	assert.Equal(t, []any{"x", "y"}, value)
}

func TestParseNestedList(t *testing.T) {
	// The shape used for new tasks: scalars followed by a category id list.
	item, err := Parse("ssddd[s]")
	require.NoError(t, err)

	start := time.Date(2026, time.April, 1, 0, 0, 0, 0, time.Local)
	encoded := pack(t, item,
		"subject", "description", start, time.Time{}, time.Time{},
		[]string{"cat-1", "cat-2"})

	value := decode(t, item, encoded)
	row, ok := value.([]any)
	require.True(t, ok)
	require.Len(t, row, 6)
	assert.Equal(t, "subject", row[0])
	assert.Equal(t, start, row[2])
	assert.Equal(t, time.Time{}, row[3])
	assert.Equal(t, []any{"cat-1", "cat-2"}, row[5])
}

func TestParseAllFormatCharacters(t *testing.T) {
	item, err := Parse("iszdtf")
	require.NoError(t, err)

	stamp := time.Date(2026, time.April, 1, 8, 30, 0, 0, time.Local)
	encoded := pack(t, item, 1, "s", nil, time.Time{}, stamp, time.Time{})
	value := decode(t, item, encoded)
	row := value.([]any)
	require.Len(t, row, 6)
	assert.Nil(t, row[2])
	assert.Equal(t, stamp, row[4])
}

func TestParseErrors(t *testing.T) {
	_, err := Parse("sq")
	assert.Error(t, err, "unknown format character")

	_, err = Parse("s[i")
	assert.Error(t, err, "unbalanced brackets")

	_, err = Parse("si]")
	assert.Error(t, err, "unbalanced brackets")

	_, err = Parse("sb")
	assert.Error(t, err, "raw bytes need a size")
}

func TestMustParsePanicsOnBadFormat(t *testing.T) {
	assert.Panics(t, func() { MustParse("??") })
	assert.NotPanics(t, func() { MustParse("ssddd[s]") })
}
