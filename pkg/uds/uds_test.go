package uds

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"hftcore/pkg/exception"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmptyPath(t *testing.T) {
	_, err := NewClient("", 0, 0)
	assert.ErrorIs(t, err, exception.ErrEmptyPathUDS)
	_, err = NewServer("")
	assert.ErrorIs(t, err, exception.ErrEmptyPathUDS)

	var c *Client
	_, err = c.Dial(t.Context())
	assert.ErrorIs(t, err, exception.ErrNilClientUDS)
}

func TestRemoveIfExistsRejectsNonSocket(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not-socket")
	require.NoError(t, os.WriteFile(path, []byte("data"), 0o600))
	assert.ErrorIs(t, RemoveIfExists(path), ErrPathNotSocket)
	assert.NoError(t, RemoveIfExists(filepath.Join(t.TempDir(), "missing")))
}

func TestServeEcho(t *testing.T) {
	path := filepath.Join(t.TempDir(), "uds.sock")
	server, err := NewServer(path, WithFileMode(0o600), WithConnBuffer(64<<10))
	require.NoError(t, err)
	require.NoError(t, server.Listen())
	assert.ErrorIs(t, server.Listen(), ErrAlreadyListening)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	served := make(chan error, 1)
	go func() {
		served <- server.Serve(func(conn *net.UnixConn) {
			defer conn.Close()
			buf := make([]byte, 4)
			n, err := conn.Read(buf)
			if err != nil {
				return
			}
			_, _ = conn.Write(buf[:n])
		})
	}()

	client, err := NewClient(path, time.Second, 64<<10)
	require.NoError(t, err)
	assert.Equal(t, path, client.Path())
	conn, err := client.Dial(t.Context())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("ping"))
	require.NoError(t, err)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 4)
	_, err = conn.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(buf))

	require.NoError(t, server.Close())
	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("serve did not return after close")
	}
	server.Wait()
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestDialCanceledContext(t *testing.T) {
	client, err := NewClient(filepath.Join(t.TempDir(), "missing.sock"), 0, 0)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err = client.Dial(ctx)
	assert.Error(t, err)
}

func TestServeBeforeListen(t *testing.T) {
	server, err := NewServer(filepath.Join(t.TempDir(), "idle.sock"))
	require.NoError(t, err)
	assert.ErrorIs(t, server.Serve(func(*net.UnixConn) {}), ErrNotListening)
	assert.NoError(t, server.Close())
	server.Wait()
}
