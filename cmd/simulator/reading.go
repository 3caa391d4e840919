package main

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/kanna-karuppasamy/smart-grid-ingest-server/internal/models"
)

func deviceID(index int) string {
	return fmt.Sprintf("meter_%06d", index)
}

// generator produces plausible household readings: a daily load curve
// scaled per device, with noise on power, voltage and frequency.
type generator struct {
	index  int
	factor float64
	rng    *rand.Rand
}

func newGenerator(index int) *generator {
	return &generator{
		index:  index,
		factor: 0.8 + 0.4*float64(index%100)/100,
		rng:    rand.New(rand.NewPCG(uint64(index), uint64(time.Now().UnixNano()))),
	}
}

func (g *generator) next(now time.Time) models.MeterReading {
	daily := 0.7 + 0.3*(1+math.Sin(float64(now.Hour()-6)*math.Pi/12))
	noise := g.uniform(0.9, 1.1)

	power := 2000 * daily * noise * g.factor
	voltage := 120 + g.uniform(-2, 2)

	return models.MeterReading{
		Timestamp:    uint32(now.Unix()),
		DeviceNumber: uint16(g.index),
		Voltage:      voltage,
		Current:      power / voltage,
		Power:        power,
		Frequency:    60 + g.uniform(-0.1, 0.1),
	}
}

func (g *generator) uniform(lo, hi float64) float64 {
	return lo + g.rng.Float64()*(hi-lo)
}
