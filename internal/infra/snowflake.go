package infra

import (
	"sync"
	"time"
)

// Snowflake layout: 41 bits of milliseconds since the custom epoch, 10 bits
// of worker id, 12 bits of per-millisecond sequence. Ids are strictly
// increasing per worker, which is what message ordering relies on.
const (
	// 2022-01-01T00:00:00Z
	snowflakeEpoch = int64(1640995200000)

	workerBits   = 10
	sequenceBits = 12

	maxSequence = (1 << sequenceBits) - 1

	workerShift = sequenceBits
	timeShift   = sequenceBits + workerBits
)

type SnowflakeGenerator struct {
	mu       sync.Mutex
	workerID int64
	lastMs   int64
	seq      int64
}

func NewSnowflakeGenerator(workerID int64) *SnowflakeGenerator {
	return &SnowflakeGenerator{workerID: workerID}
}

// Generate returns the next id. When the sequence for the current
// millisecond is exhausted it spins until the clock advances.
func (g *SnowflakeGenerator) Generate() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now().UnixMilli()
	if now == g.lastMs {
		g.seq = (g.seq + 1) & maxSequence
		if g.seq == 0 {
			for now <= g.lastMs {
				now = time.Now().UnixMilli()
			}
		}
	} else {
		g.seq = 0
	}
	g.lastMs = now

	return (now-snowflakeEpoch)<<timeShift | g.workerID<<workerShift | g.seq
}

// ExtractTimestamp recovers the creation time embedded in an id.
func (g *SnowflakeGenerator) ExtractTimestamp(id int64) time.Time {
	return time.UnixMilli(id>>timeShift + snowflakeEpoch)
}
