package order

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/qrdine/core/internal/pkg/redis"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var numberPattern = regexp.MustCompile(`^ORD-\d{6}-\d{6}-[0-9A-HJKMNP-TV-Z]{4}$`)

func fixedGenerator(reserve Reserver, suffixes ...[]byte) *NumberGenerator {
	g := NewNumberGenerator(reserve, zap.NewNop())
	g.now = func() time.Time { return time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC) }
	i := 0
	g.random = func(b []byte) (int, error) {
		n := copy(b, suffixes[i%len(suffixes)])
		i++
		return n, nil
	}
	return g
}

func TestNumberFormat(t *testing.T) {
	g := NewNumberGenerator(nil, nil)
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		n, err := g.Next(context.Background())
		require.NoError(t, err)
		assert.Regexp(t, numberPattern, n)
		seen[n] = true
	}
	assert.Greater(t, len(seen), 190)
}

func TestNumberIsTimeOrdered(t *testing.T) {
	g := fixedGenerator(nil, []byte{0, 1, 2, 3})
	n, err := g.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ORD-260314-092653-0123", n)
}

func TestNumberReservationSkipsTakenValues(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	rdb := redis.Wrap(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))

	g := fixedGenerator(rdb, []byte{0, 0, 0, 0}, []byte{0, 0, 0, 1})
	first, err := g.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ORD-260314-092653-0000", first)

	g = fixedGenerator(rdb, []byte{0, 0, 0, 0}, []byte{0, 0, 0, 1})
	second, err := g.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ORD-260314-092653-0001", second)
	assert.True(t, mr.Exists(reservationKey+second))
}

func TestNumberReservationExhausted(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	rdb := redis.Wrap(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))

	g := fixedGenerator(rdb, []byte{5, 5, 5, 5})
	_, err = g.Next(context.Background())
	require.NoError(t, err)
	_, err = g.Next(context.Background())
	assert.Error(t, err)
}
