package archive_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/mudclient/internal/archive"
	"github.com/cory-johannsen/mudclient/internal/config"
	"github.com/cory-johannsen/mudclient/internal/testutil"
)

func TestNewPool_RejectsInvertedSizes(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		maxConns := rapid.Int32Range(1, 50).Draw(rt, "max")
		minConns := rapid.Int32Range(maxConns+1, maxConns+50).Draw(rt, "min")
		_, err := archive.NewPool(context.Background(), config.DatabaseConfig{
			Host: "127.0.0.1", Port: 1, User: "u", Name: "db", SSLMode: "disable",
			MaxConns: maxConns, MinConns: minConns,
		})
		if err == nil {
			rt.Fatalf("min_conns %d > max_conns %d accepted", minConns, maxConns)
		}
	})
}

func TestPool_HealthAndClose(t *testing.T) {
	testutil.RequireIntegration(t)
	pc := testutil.NewPostgresContainer(t)
	ctx := context.Background()

	require.NoError(t, pc.Pool.Health(ctx, 5*time.Second))
	assert.NotNil(t, pc.Pool.Transcripts())

	pc.Pool.Close()
	pc.Pool.Close()
	assert.ErrorIs(t, pc.Pool.Health(ctx, time.Second), archive.ErrPoolClosed)
}
