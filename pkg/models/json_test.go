package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONColumn(t *testing.T) {
	j, err := NewJSON(map[string]int{"created": 3})
	require.NoError(t, err)

	v, err := j.Value()
	require.NoError(t, err)
	assert.Equal(t, `{"created":3}`, v)

	var scanned JSON
	require.NoError(t, scanned.Scan([]byte(`{"created":3}`)))
	var out map[string]int
	require.NoError(t, scanned.Decode(&out))
	assert.Equal(t, 3, out["created"])

	require.NoError(t, scanned.Scan(nil))
	assert.True(t, scanned.IsNull())
	v, err = scanned.Value()
	require.NoError(t, err)
	assert.Nil(t, v)

	assert.Error(t, scanned.Scan("{not json"))
	assert.Error(t, scanned.Scan(42))
	_, err = JSON(`{"x":`).Value()
	assert.Error(t, err)
}
