package payment

import (
	"fmt"
	"regexp"
	"sync"
	"time"
)

const (
	referenceTimeLayout = "20060102150405"
	sequenceModulo      = 10000
)

var (
	referencePattern = regexp.MustCompile(`^[A-Z0-9]{2,8}-\d{14}-\d{4}$`)
	prefixPattern    = regexp.MustCompile(`^[A-Z0-9]{2,8}$`)
)

// IsWellFormedReference reports whether ref matches PREFIX-YYYYMMDDHHmmss-SEQ.
func IsWellFormedReference(ref string) bool {
	return referencePattern.MatchString(ref)
}

// IsLikelyDuplicateReference flags references that are not well formed.
func IsLikelyDuplicateReference(ref string) bool {
	return !IsWellFormedReference(ref)
}

// ReferenceGenerator issues checkout references. The sequence is a
// 4-digit counter that wraps at 10000.
type ReferenceGenerator struct {
	mu     sync.Mutex
	prefix string
	seq    int
	now    func() time.Time
}

// NewReferenceGenerator constructs a generator. now defaults to the wall
// clock; timestamps are rendered in the location of the returned time.
func NewReferenceGenerator(prefix string, now func() time.Time) (*ReferenceGenerator, error) {
	if !prefixPattern.MatchString(prefix) {
		return nil, ErrInvalidPrefix
	}
	if now == nil {
		now = time.Now
	}
	return &ReferenceGenerator{prefix: prefix, now: now}, nil
}

// Next returns a new reference.
func (g *ReferenceGenerator) Next() string {
	g.mu.Lock()
	g.seq = (g.seq + 1) % sequenceModulo
	seq := g.seq
	g.mu.Unlock()
	return fmt.Sprintf("%s-%s-%04d", g.prefix, g.now().Format(referenceTimeLayout), seq)
}
