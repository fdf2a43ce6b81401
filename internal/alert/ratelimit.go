package alert

import (
	"hash/fnv"
	"sort"
	"time"

	"github.com/Alias1177/Guardian/models"
	lru "github.com/hashicorp/golang-lru/v2"
)

// keyTags is how many leading violations identify an alert for rate limiting
const keyTags = 3

type rateKey struct {
	severity models.Severity
	tags     uint64
}

// newRateKey derives the key from the severity and the sorted kinds of the first three violations.
// Kinds leave out the numeric evidence, so repeats of the same incident share a key.
func newRateKey(severity models.Severity, violations []models.Violation) rateKey {
	n := min(len(violations), keyTags)
	tags := make([]string, 0, n)
	for _, v := range violations[:n] {
		tags = append(tags, string(v.Kind))
	}
	sort.Strings(tags)

	h := fnv.New64a()
	for _, t := range tags {
		h.Write([]byte(t))
		h.Write([]byte{0})
	}
	return rateKey{severity: severity, tags: h.Sum64()}
}

// limiter remembers when each key was last sent; the LRU bounds memory over long uptimes
type limiter struct {
	window time.Duration
	sent   *lru.Cache[rateKey, time.Time]
}

func newLimiter(window time.Duration, size int) *limiter {
	cache, err := lru.New[rateKey, time.Time](size)
	if err != nil {
		// only possible for a non-positive size
		cache, _ = lru.New[rateKey, time.Time](1)
	}
	return &limiter{window: window, sent: cache}
}

// allow records now for the key unless it was sent within the window
func (l *limiter) allow(key rateKey, now time.Time) bool {
	if last, ok := l.sent.Get(key); ok && now.Sub(last) < l.window {
		return false
	}
	l.sent.Add(key, now)
	return true
}

func (l *limiter) reset() {
	l.sent.Purge()
}
