package clipboard

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
)

const (
	pinLength = 6
	pinSpace  = 1000000

	// DefaultPinAttempts bounds PIN generation before giving up.
	DefaultPinAttempts = 32
)

// ValidPin reports whether pin is exactly six ASCII digits.
func ValidPin(pin string) bool {
	if len(pin) != pinLength {
		return false
	}
	for i := 0; i < len(pin); i++ {
		if pin[i] < '0' || pin[i] > '9' {
			return false
		}
	}
	return true
}

// PinChecker reports whether a live item holds a PIN.
type PinChecker interface {
	PinInUse(ctx context.Context, pin string) (bool, error)
}

// Allocator draws unused PINs uniformly from 000000-999999.
type Allocator struct {
	checker PinChecker

	// MaxAttempts bounds generation; zero means DefaultPinAttempts.
	MaxAttempts int
	// Rand is the entropy source; nil means crypto/rand.
	Rand io.Reader
}

// NewAllocator returns an Allocator checking collisions against c.
func NewAllocator(c PinChecker) *Allocator {
	return &Allocator{checker: c, MaxAttempts: DefaultPinAttempts}
}

// Allocate returns a PIN not held by any live item. Collisions are retried
// up to MaxAttempts, after which ErrAllocationExhausted is returned.
func (a *Allocator) Allocate(ctx context.Context) (string, error) {
	attempts := a.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultPinAttempts
	}
	src := a.Rand
	if src == nil {
		src = rand.Reader
	}

	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		n, err := rand.Int(src, big.NewInt(pinSpace))
		if err != nil {
			return "", fmt.Errorf("generate pin: %w", err)
		}
		pin := fmt.Sprintf("%06d", n.Int64())

		inUse, err := a.checker.PinInUse(ctx, pin)
		if err != nil {
			return "", fmt.Errorf("check pin: %w", err)
		}
		if !inUse {
			return pin, nil
		}
	}
	return "", ErrAllocationExhausted
}
