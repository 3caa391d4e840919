package crypto

import (
	"crypto/sha256"
	"fmt"
	"sync"

	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/sync/singleflight"
)

const (
	// KeySize is the AES-256 key length in bytes.
	KeySize = 32

	passwordPrefix = "smart_meter_"
	saltSize       = 16
	kdfIterations  = 100_000
)

// KeyCache derives and memoizes one key per device id. Lookups of known
// devices take only the read lock; a device's key is derived at most once.
type KeyCache struct {
	mu     sync.RWMutex
	keys   map[string][]byte
	flight singleflight.Group
	derive func(deviceID string) []byte
}

// NewKeyCache creates an empty key cache.
func NewKeyCache() *KeyCache {
	return newKeyCache(DeriveKey)
}

func newKeyCache(derive func(string) []byte) *KeyCache {
	return &KeyCache{
		keys:   make(map[string][]byte),
		derive: derive,
	}
}

// GetOrCreateKey returns the key for deviceID, deriving it on first use.
// The returned slice is shared and must not be modified.
func (c *KeyCache) GetOrCreateKey(deviceID string) []byte {
	if key, ok := c.lookup(deviceID); ok {
		return key
	}

	v, _, _ := c.flight.Do(deviceID, func() (interface{}, error) {
		// A flight for this device may have finished between our miss
		// and joining this one.
		if key, ok := c.lookup(deviceID); ok {
			return key, nil
		}

		key := c.derive(deviceID)
		if len(key) != KeySize {
			panic(fmt.Sprintf("crypto: key derivation for %q produced %d bytes, want %d", deviceID, len(key), KeySize))
		}

		c.mu.Lock()
		c.keys[deviceID] = key
		c.mu.Unlock()
		return key, nil
	})
	return v.([]byte)
}

// Len returns the number of devices with a cached key.
func (c *KeyCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.keys)
}

func (c *KeyCache) lookup(deviceID string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	key, ok := c.keys[deviceID]
	return key, ok
}

// DeriveKey derives the device key without caching it. Devices run the
// same derivation to encrypt.
func DeriveKey(deviceID string) []byte {
	password := []byte(passwordPrefix + deviceID)
	return pbkdf2.Key(password, deviceSalt(deviceID), kdfIterations, KeySize, sha256.New)
}

// deviceSalt truncates or right-pads deviceID with ASCII '0' to 16 bytes.
func deviceSalt(deviceID string) []byte {
	salt := make([]byte, saltSize)
	n := copy(salt, deviceID)
	for i := n; i < saltSize; i++ {
		salt[i] = '0'
	}
	return salt
}
