// Package wire implements the device-to-server framing and the fixed
// binary reading record carried inside each ciphertext block.
package wire

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/kanna-karuppasamy/smart-grid-ingest-server/internal/models"
)

const (
	// RecordSize is the length of an encoded reading before padding.
	RecordSize = 13

	// CiphertextSize is the only ciphertext length accepted on the wire:
	// one AES block holding the padded record.
	CiphertextSize = 16

	// Voltage, current and frequency travel as tenths of their unit.
	// Power travels as whole watts.
	scale = 10.0
)

// DecodeRecord decodes the big-endian record layout:
//
//	timestamp(4) device(2) voltage(2) current(2) power(2) frequency(1)
//
// The device number is informational; callers stamp the trusted device
// id from the connection header.
func DecodeRecord(data []byte) (models.MeterReading, error) {
	if len(data) < RecordSize {
		return models.MeterReading{}, fmt.Errorf("%w: record is %d bytes, want at least %d", ErrDecode, len(data), RecordSize)
	}

	return models.MeterReading{
		Timestamp:    binary.BigEndian.Uint32(data[0:4]),
		DeviceNumber: binary.BigEndian.Uint16(data[4:6]),
		Voltage:      float64(binary.BigEndian.Uint16(data[6:8])) / scale,
		Current:      float64(binary.BigEndian.Uint16(data[8:10])) / scale,
		Power:        float64(binary.BigEndian.Uint16(data[10:12])),
		Frequency:    float64(data[12]) / scale,
	}, nil
}

// EncodeRecord is the device-side inverse of DecodeRecord. Values are
// truncated to the wire resolution and masked to the field width, the way
// a meter firmware would pack them.
func EncodeRecord(r models.MeterReading) []byte {
	buf := make([]byte, RecordSize)
	binary.BigEndian.PutUint32(buf[0:4], r.Timestamp)
	binary.BigEndian.PutUint16(buf[4:6], r.DeviceNumber)
	binary.BigEndian.PutUint16(buf[6:8], toUint16(r.Voltage*scale))
	binary.BigEndian.PutUint16(buf[8:10], toUint16(r.Current*scale))
	binary.BigEndian.PutUint16(buf[10:12], toUint16(r.Power))
	buf[12] = uint8(toUint16(r.Frequency*scale) & 0xFF)
	return buf
}

func toUint16(v float64) uint16 {
	// Round away float noise such as 132.5*10 = 1324.9999.
	v = math.Round(v*1e6) / 1e6
	if v <= 0 {
		return 0
	}
	return uint16(uint64(v) & 0xFFFF)
}
