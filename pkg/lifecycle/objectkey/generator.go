package objectkey

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Generator defines the interface for object key generation strategies
type Generator interface {
	// GenerateKey creates a fresh object key
	GenerateKey() string
}

// WeeklyGenerator buckets keys by ISO year and week:
//
//	2024-42/3f0c6f5e-6d0e-4f0e-9a57-1c3c5d1c2b7a
//
// The key is always exactly two path segments; the deletion cascade relies
// on that when mapping URLs back to keys.
type WeeklyGenerator struct {
	// Now returns the current time (default time.Now)
	Now func() time.Time
	// NewID returns a unique id (default uuid.NewString)
	NewID func() string
}

func NewWeeklyGenerator() *WeeklyGenerator {
	return &WeeklyGenerator{
		Now:   time.Now,
		NewID: uuid.NewString,
	}
}

func (g *WeeklyGenerator) GenerateKey() string {
	year, week := g.Now().UTC().ISOWeek()
	return fmt.Sprintf("%d-%d/%s", year, week, sanitizeSegment(g.NewID()))
}

// sanitizeSegment keeps an id from introducing extra path segments.
func sanitizeSegment(s string) string {
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	return s
}
