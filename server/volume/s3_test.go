package volume

import (
	"bytes"
	"context"
	"net/http/httptest"
	"testing"

	"github.com/gear6io/slate/server/config"
	"github.com/johannesboyne/gofakes3"
	"github.com/johannesboyne/gofakes3/backend/s3mem"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newS3Volume(t *testing.T) (*S3, *s3mem.Backend) {
	t.Helper()
	backend := s3mem.New()
	faker := gofakes3.New(backend)
	ts := httptest.NewServer(faker.Server())
	t.Cleanup(ts.Close)

	require.NoError(t, backend.CreateBucket("segments"))

	vol, err := NewS3(config.VolumeConfig{
		Kind:      "s3",
		Endpoint:  ts.URL,
		Bucket:    "segments",
		AccessKey: "test-key",
		SecretKey: "test-secret",
	}, zerolog.Nop())
	require.NoError(t, err)
	return vol, backend
}

func putObject(t *testing.T, backend *s3mem.Backend, key string, data []byte) {
	t.Helper()
	_, err := backend.PutObject("segments", key,
		map[string]string{"Content-Type": "application/octet-stream"},
		bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
}

func TestS3Volume(t *testing.T) {
	ctx := context.Background()
	vol, backend := newS3Volume(t)
	putObject(t, backend, "files/wal-1", []byte("segment"))

	t.Run("Exists", func(t *testing.T) {
		found, err := vol.Exists(ctx, "files/wal-1")
		require.NoError(t, err)
		assert.True(t, found)

		found, err = vol.Exists(ctx, "files/wal-2")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("Remove", func(t *testing.T) {
		require.NoError(t, vol.Remove(ctx, "files/wal-1"))

		found, err := vol.Exists(ctx, "files/wal-1")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("RemoveMissingSucceeds", func(t *testing.T) {
		require.NoError(t, vol.Remove(ctx, "files/wal-1"))
	})
}
