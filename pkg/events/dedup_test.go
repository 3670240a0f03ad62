package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDedupFilter_Seen(t *testing.T) {
	client := newFakeClient()
	f := NewDedupFilter(client, 0)
	ctx := context.Background()

	seen, err := f.Seen(ctx, "abc")
	require.NoError(t, err)
	assert.False(t, seen, "first sighting")

	seen, err = f.Seen(ctx, "abc")
	require.NoError(t, err)
	assert.True(t, seen, "second sighting")

	seen, err = f.Seen(ctx, "def")
	require.NoError(t, err)
	assert.False(t, seen)

	assert.Equal(t, DefaultDedupTTL, client.keys["mailtriage:seen:abc"])
}

func TestDedupFilter_CustomTTL(t *testing.T) {
	client := newFakeClient()
	f := NewDedupFilter(client, time.Hour)

	_, err := f.Seen(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, time.Hour, client.keys["mailtriage:seen:abc"])
}
