package crypto

import (
	"bytes"
	"crypto/sha256"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/pbkdf2"
)

func TestDeviceSalt(t *testing.T) {
	assert.Equal(t, []byte("meter_7000000000"), deviceSalt("meter_7"))
	assert.Equal(t, []byte("0000000000000000"), deviceSalt(""))
	assert.Equal(t, []byte("meter_0000000001"), deviceSalt("meter_0000000001"))
	assert.Equal(t, []byte("a_very_long_devi"), deviceSalt("a_very_long_device_identifier"))
}

func TestDeriveKeyParameters(t *testing.T) {
	want := pbkdf2.Key([]byte("smart_meter_meter_7"), []byte("meter_7000000000"), 100000, 32, sha256.New)
	got := DeriveKey("meter_7")
	assert.Equal(t, want, got)
	assert.Len(t, got, KeySize)
}

func TestGetOrCreateKeyIsDeterministic(t *testing.T) {
	first := NewKeyCache().GetOrCreateKey("meter_000001")
	second := NewKeyCache().GetOrCreateKey("meter_000001")
	other := NewKeyCache().GetOrCreateKey("meter_000002")

	assert.Equal(t, first, second, "independent caches derive the same key")
	assert.NotEqual(t, first, other)
}

func TestGetOrCreateKeyConcurrentFirstContact(t *testing.T) {
	var derivations atomic.Int32
	cache := newKeyCache(func(deviceID string) []byte {
		derivations.Add(1)
		// Widen the window in which other callers miss the cache.
		time.Sleep(20 * time.Millisecond)
		return bytes.Repeat([]byte(deviceID[len(deviceID)-1:]), KeySize)
	})

	const callers = 64
	keys := make([][]byte, callers)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			keys[i] = cache.GetOrCreateKey("meter_7")
		}(i)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), derivations.Load())
	for i := range keys {
		require.Equal(t, keys[0], keys[i])
	}

	// Later lookups hit the cache.
	cache.GetOrCreateKey("meter_7")
	assert.Equal(t, int32(1), derivations.Load())
	assert.Equal(t, 1, cache.Len())
}

func TestGetOrCreateKeyRealDerivationConcurrent(t *testing.T) {
	cache := NewKeyCache()
	want := DeriveKey("meter_42")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Equal(t, want, cache.GetOrCreateKey("meter_42"))
		}()
	}
	wg.Wait()
}

func TestGetOrCreateKeyPanicsOnBadDerivation(t *testing.T) {
	cache := newKeyCache(func(string) []byte { return make([]byte, 8) })
	assert.Panics(t, func() { cache.GetOrCreateKey("meter_1") })
	assert.Equal(t, 0, cache.Len())
}
