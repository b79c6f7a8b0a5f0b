package redis

import (
	"context"
	"testing"
	"time"

	"Trendline/backend/go/internal/config"
	"Trendline/backend/go/internal/models"
	"Trendline/backend/go/pkg/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectBuildsConfiguredStore(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	conn, err := Connect(ctx, &config.RedisConfig{Address: mr.Addr(), KeyPrefix: "tl", LockTTL: "30s"}, logger.Discard())
	require.NoError(t, err)
	defer conn.Close()

	seeded := func(ref models.EntityRef) *models.EntityState {
		st := models.NewEntityState(ref)
		st.Profile = map[string]string{"gender": "menswear"}
		return st
	}
	alice := models.EntityRef{Kind: models.KindUser, ID: "alice"}
	st, err := conn.Store(seeded).Update(ctx, alice, func(cur *models.EntityState) (*models.EntityState, error) {
		cur.Summary.Text = "Likes linen."
		return cur, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "menswear", st.Profile["gender"])
	assert.True(t, mr.Exists("tl:state:user:alice"))

	assert.NoError(t, conn.HealthCheck(ctx))
	mr.Close()
	assert.Error(t, conn.HealthCheck(ctx))
}

func TestConnectStopsRetryingWhenCancelled(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := Connect(ctx, &config.RedisConfig{Address: addr}, logger.Discard())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), connectBackoff*2)
}
