package redisstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_MalformedURLIsFatal(t *testing.T) {
	_, err := New("not-a-url://%zz", "gcsv:")
	assert.Error(t, err)
}

func TestNew_ValidURL(t *testing.T) {
	store, err := New("redis://localhost:6379/0", "gcsv:")
	require.NoError(t, err)
	assert.Equal(t, "gcsv:", store.KeyPrefix())
}
