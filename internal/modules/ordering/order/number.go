package order

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	numberPrefix = "ORD"
	suffixLength = 4
	// Crockford base32: no I, L, O or U.
	suffixAlphabet  = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"
	reservationTTL  = 24 * time.Hour
	reservationKey  = "qrdine:order_number:"
	maxReserveTries = 5
)

// Reserver claims a value for a TTL and reports whether it was free.
type Reserver interface {
	SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error)
}

// NumberGenerator produces display order numbers of the form
// ORD-YYMMDD-HHMMSS-XXXX. Numbers sort by creation second.
type NumberGenerator struct {
	now     func() time.Time
	random  func([]byte) (int, error)
	reserve Reserver
	log     *zap.Logger
}

// NewNumberGenerator returns a generator. reserve may be nil, in which case
// the database unique index is the only collision guard.
func NewNumberGenerator(reserve Reserver, log *zap.Logger) *NumberGenerator {
	if log == nil {
		log = zap.NewNop()
	}
	return &NumberGenerator{
		now:     time.Now,
		random:  rand.Read,
		reserve: reserve,
		log:     log,
	}
}

// Next returns a fresh order number.
func (g *NumberGenerator) Next(ctx context.Context) (string, error) {
	for attempt := 0; attempt < maxReserveTries; attempt++ {
		number, err := g.compose()
		if err != nil {
			return "", err
		}
		if g.reserve == nil {
			return number, nil
		}
		ok, err := g.reserve.SetNX(ctx, reservationKey+number, 1, reservationTTL)
		if err != nil {
			g.log.Warn("order number reservation unavailable", zap.Error(err))
			return number, nil
		}
		if ok {
			return number, nil
		}
	}
	return "", fmt.Errorf("order number space exhausted after %d attempts", maxReserveTries)
}

func (g *NumberGenerator) compose() (string, error) {
	buf := make([]byte, suffixLength)
	if _, err := g.random(buf); err != nil {
		return "", fmt.Errorf("read random suffix: %w", err)
	}
	for i, b := range buf {
		buf[i] = suffixAlphabet[int(b)%len(suffixAlphabet)]
	}
	ts := g.now().UTC().Format("060102-150405")
	return numberPrefix + "-" + ts + "-" + string(buf), nil
}
