// Package decoder turns one ciphertext block from a device into a reading.
package decoder

import (
	"errors"
	"fmt"

	"github.com/kanna-karuppasamy/smart-grid-ingest-server/internal/crypto"
	"github.com/kanna-karuppasamy/smart-grid-ingest-server/internal/models"
	"github.com/kanna-karuppasamy/smart-grid-ingest-server/internal/wire"
)

// KeySource supplies the symmetric key for a device.
type KeySource interface {
	GetOrCreateKey(deviceID string) []byte
}

// Decoder decrypts and decodes device payloads
type Decoder struct {
	keys KeySource
}

// New creates a decoder backed by keys
func New(keys KeySource) *Decoder {
	return &Decoder{keys: keys}
}

// DecryptAndDecode decrypts a single-block ciphertext from deviceID and
// decodes the record inside it. The returned error wraps wire.ErrFraming,
// crypto.ErrDecrypt or wire.ErrDecode depending on the failing stage.
func (d *Decoder) DecryptAndDecode(deviceID string, ciphertext []byte) (models.MeterReading, error) {
	if len(ciphertext) != wire.CiphertextSize {
		return models.MeterReading{}, fmt.Errorf("%w: ciphertext is %d bytes, want %d", wire.ErrFraming, len(ciphertext), wire.CiphertextSize)
	}

	plaintext, err := crypto.Decrypt(d.keys.GetOrCreateKey(deviceID), deviceID, ciphertext)
	if err != nil {
		return models.MeterReading{}, err
	}

	reading, err := wire.DecodeRecord(plaintext)
	if err != nil {
		return models.MeterReading{}, err
	}

	reading.DeviceID = deviceID
	return reading, nil
}

// Encrypt produces the ciphertext a device would send for reading. It is
// used by the simulator and by tests.
func Encrypt(keys KeySource, deviceID string, reading models.MeterReading) ([]byte, error) {
	return crypto.Encrypt(keys.GetOrCreateKey(deviceID), deviceID, wire.EncodeRecord(reading))
}

// Stage names the pipeline stage an error came from, for logging.
func Stage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, wire.ErrFraming):
		return "framing"
	case errors.Is(err, crypto.ErrDecrypt):
		return "decrypt"
	case errors.Is(err, wire.ErrDecode):
		return "decode"
	default:
		return "unknown"
	}
}
