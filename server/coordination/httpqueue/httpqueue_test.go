package httpqueue

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gear6io/slate/pkg/errors"
	"github.com/gear6io/slate/server/coordination"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	server := NewServer("127.0.0.1:0", zerolog.Nop())
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	return server, ts
}

func TestClientRoundTrip(t *testing.T) {
	server, ts := newTestServer(t)
	server.EnsureQueue("replication-work")
	client := NewClient(ts.URL, "replication-work")
	ctx := context.Background()

	t.Run("EmptyListing", func(t *testing.T) {
		keys, err := client.ListKeys(ctx)
		require.NoError(t, err)
		assert.Empty(t, keys)
	})

	t.Run("AddAndList", func(t *testing.T) {
		err := client.AddWork(ctx, "wal-1|peerA|9|4", []byte("payload"))
		require.NoError(t, err)
		err = client.AddWork(ctx, "wal-2|peerB/nested|12|5", []byte("other"))
		require.NoError(t, err)

		keys, err := client.ListKeys(ctx)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"wal-1|peerA|9|4", "wal-2|peerB/nested|12|5"}, keys)
	})

	t.Run("AddIsIdempotent", func(t *testing.T) {
		err := client.AddWork(ctx, "wal-1|peerA|9|4", []byte("payload"))
		require.NoError(t, err)

		keys, err := client.ListKeys(ctx)
		require.NoError(t, err)
		assert.Len(t, keys, 2)
	})

	t.Run("Exists", func(t *testing.T) {
		found, err := client.Exists(ctx, "wal-1|peerA|9|4")
		require.NoError(t, err)
		assert.True(t, found)

		found, err = client.Exists(ctx, "no-such-key")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("Remove", func(t *testing.T) {
		err := client.RemoveWork(ctx, "wal-1|peerA|9|4")
		require.NoError(t, err)

		found, err := client.Exists(ctx, "wal-1|peerA|9|4")
		require.NoError(t, err)
		assert.False(t, found)

		err = client.RemoveWork(ctx, "wal-1|peerA|9|4")
		require.Error(t, err)
		assert.True(t, errors.HasCode(err, coordination.ErrNodeAbsent))
	})
}

func TestClientRootAbsent(t *testing.T) {
	_, ts := newTestServer(t)
	client := NewClient(ts.URL, "never-created")
	ctx := context.Background()

	_, err := client.ListKeys(ctx)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, coordination.ErrRootAbsent))

	_, err = client.Exists(ctx, "some-key")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, coordination.ErrRootAbsent))
}

func TestClientUnavailable(t *testing.T) {
	// Point at a closed port; the transport error maps to ErrUnavailable.
	client := NewClient("http://127.0.0.1:1", "replication-work")
	_, err := client.ListKeys(context.Background())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, coordination.ErrUnavailable))
}

func TestServerRejectsBadRequests(t *testing.T) {
	server, ts := newTestServer(t)
	server.EnsureQueue("replication-work")

	t.Run("MissingKeyParameter", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/v1/queues/replication-work/node")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("MethodNotAllowedOnListing", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodDelete, ts.URL+"/v1/queues/replication-work/nodes", nil)
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	})

	t.Run("UnknownResource", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/v1/queues/replication-work/everything")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestHealthEndpoint(t *testing.T) {
	_, ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
