package redis

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redisopts "github.com/kart-io/sentinel-rag/pkg/options/redis"
)

func optionsFor(t *testing.T, addr string) *redisopts.Options {
	t.Helper()
	host, port, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	o := redisopts.NewOptions()
	o.Enabled = true
	o.Host = host
	o.Port, err = strconv.Atoi(port)
	require.NoError(t, err)
	o.DialTimeout = 500 * time.Millisecond
	return o
}

func TestNew(t *testing.T) {
	mr := miniredis.RunT(t)
	c, err := New(context.Background(), optionsFor(t, mr.Addr()))
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	require.NoError(t, c.Client().Set(ctx, "k", "v", 0).Err())
	got, err := mr.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)

	h := c.Health(ctx)
	assert.True(t, h.Healthy)
	assert.Empty(t, h.Error)
	assert.GreaterOrEqual(t, h.TotalConns, uint32(1))
}

func TestNew_Errors(t *testing.T) {
	_, err := New(context.Background(), nil)
	require.Error(t, err)

	bad := redisopts.NewOptions()
	bad.Enabled = true
	bad.Host = ""
	_, err = New(context.Background(), bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid redis options")

	mr := miniredis.RunT(t)
	opts := optionsFor(t, mr.Addr())
	mr.Close()
	_, err = New(context.Background(), opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to ping redis")
}

func TestHealth_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	c, err := New(context.Background(), optionsFor(t, mr.Addr()))
	require.NoError(t, err)
	defer c.Close()

	mr.Close()
	h := c.Health(context.Background())
	assert.False(t, h.Healthy)
	assert.NotEmpty(t, h.Error)
}
