package intake

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewServer(t *testing.T) {
	server := NewServer(":3000", http.NotFoundHandler())
	assert.Equal(t, ":3000", server.Addr())
	assert.Equal(t, DefaultReadHeaderTimeout, server.readHeaderTimeout)

	server = NewServer(":3000", http.NotFoundHandler(), WithReadHeaderTimeout(time.Second), WithReadHeaderTimeout(0))
	assert.Equal(t, time.Second, server.readHeaderTimeout)
}

func TestServer_StartAfterShutdown(t *testing.T) {
	server := NewServer("127.0.0.1:0", http.NotFoundHandler())
	require.NoError(t, server.Shutdown(context.Background()))
	// a closed server is not an error
	assert.NoError(t, server.Start())
}
