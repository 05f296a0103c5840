package forecast

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// resultCache is a content-addressed memo of fitted forecasts. The key is a
// digest of (series values, order, horizon), so any change to the underlying
// data produces a different key and a stale result can never be served.
// Population is idempotent: recomputing for the same key is harmless.
type resultCache struct {
	mu     sync.Mutex
	cache  *lru.Cache[string, *Result]
	ttl    time.Duration
	hits   uint64
	misses uint64
}

func newResultCache(size int, ttl time.Duration) (*resultCache, error) {
	c, err := lru.New[string, *Result](size)
	if err != nil {
		return nil, err
	}
	return &resultCache{cache: c, ttl: ttl}, nil
}

func (rc *resultCache) get(key string) (*Result, bool) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	res, ok := rc.cache.Get(key)
	if !ok {
		rc.misses++
		return nil, false
	}
	if rc.ttl > 0 && time.Since(res.ComputedAt) > rc.ttl {
		rc.misses++
		return nil, false
	}
	rc.hits++
	return res, true
}

func (rc *resultCache) put(key string, res *Result) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.cache.Add(key, res)
}

func (rc *resultCache) stats() (hits, misses uint64, size int) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.hits, rc.misses, rc.cache.Len()
}

// cacheKey fingerprints the forecast inputs. Series identity is the values
// themselves, not the series name: two identical series legitimately share a
// forecast.
func cacheKey(values []float64, order Order, horizon int) string {
	h := sha256.New()
	var buf [8]byte
	for _, v := range values {
		binary.BigEndian.PutUint64(buf[:], math.Float64bits(v))
		h.Write(buf[:])
	}
	for _, n := range []int{order.P, order.D, order.Q, horizon} {
		binary.BigEndian.PutUint64(buf[:], uint64(int64(n)))
		h.Write(buf[:])
	}
	return hex.EncodeToString(h.Sum(nil))
}
