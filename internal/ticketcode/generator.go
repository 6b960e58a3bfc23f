// Package ticketcode produces the fixed-width random codes used in ticket subject lines.
package ticketcode

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
)

// MaxAttempts bounds how many candidates Next draws. The last candidate is accepted
// without a collision check.
const MaxAttempts = 3

// ExistsFunc reports whether a code is already taken.
type ExistsFunc func(ctx context.Context, code string) (bool, error)

// Generator draws random decimal codes of a fixed width.
type Generator struct {
	digits int
	limit  *big.Int
}

// New returns a generator for codes of the given number of digits.
func New(digits int) (*Generator, error) {
	if digits < 1 || digits > 18 {
		return nil, fmt.Errorf("ticketcode: digits must be between 1 and 18, got %d", digits)
	}
	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(digits)), nil)
	return &Generator{digits: digits, limit: limit}, nil
}

// Digits returns the configured code width.
func (g *Generator) Digits() int { return g.digits }

// Next returns a candidate code not reported by exists, trying at most MaxAttempts times.
func (g *Generator) Next(ctx context.Context, exists ExistsFunc) (string, error) {
	for attempt := 1; ; attempt++ {
		code, err := g.candidate()
		if err != nil {
			return "", err
		}
		if attempt == MaxAttempts {
			return code, nil
		}
		taken, err := exists(ctx, code)
		if err != nil {
			return "", err
		}
		if !taken {
			return code, nil
		}
	}
}

func (g *Generator) candidate() (string, error) {
	n, err := rand.Int(rand.Reader, g.limit)
	if err != nil {
		return "", fmt.Errorf("ticketcode: read random: %w", err)
	}
	return fmt.Sprintf("%0*d", g.digits, n), nil
}
