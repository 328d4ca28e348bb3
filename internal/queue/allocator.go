package queue

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/wolfman30/caretoken/internal/calendar"
)

// Partitioning policies.
const (
	PartitionPerClass = "per_class"
	PartitionShared   = "shared"
)

// PartitionKey identifies one token sequence.
type PartitionKey struct {
	DoctorID uuid.UUID
	Date     calendar.Date
	Class    Class
}

func (k PartitionKey) String() string {
	return fmt.Sprintf("%s:%s:%s", k.DoctorID, k.Date, k.Class)
}

// Policy decides whether emergency and normal tokens share a counter.
type Policy struct {
	Partition string
}

// Key builds the partition key for a booking.
func (p Policy) Key(doctorID uuid.UUID, date calendar.Date, emergency bool) PartitionKey {
	class := ClassOf(emergency)
	if p.Partition == PartitionShared {
		class = ClassAll
	}
	return PartitionKey{DoctorID: doctorID, Date: date, Class: class}
}

// Allocator hands out the next token number of a partition. Implementations
// must never return the same number twice for one key.
type Allocator interface {
	Allocate(ctx context.Context, key PartitionKey) (int, error)
}

// Seeder reports the highest token already stored in a partition.
type Seeder interface {
	MaxTokenNumber(ctx context.Context, key PartitionKey) (int, error)
}

// MemoryAllocator serializes each partition behind its own lock. It is only
// correct for a single process.
type MemoryAllocator struct {
	seeder Seeder

	mu         sync.Mutex
	partitions map[PartitionKey]*partition
}

type partition struct {
	mu     sync.Mutex
	seeded bool
	last   int
}

// NewMemoryAllocator creates an in-process allocator seeded from seeder.
func NewMemoryAllocator(seeder Seeder) *MemoryAllocator {
	return &MemoryAllocator{
		seeder:     seeder,
		partitions: make(map[PartitionKey]*partition),
	}
}

// Allocate implements Allocator.
func (a *MemoryAllocator) Allocate(ctx context.Context, key PartitionKey) (int, error) {
	a.mu.Lock()
	p, ok := a.partitions[key]
	if !ok {
		p = &partition{}
		a.partitions[key] = p
	}
	a.mu.Unlock()

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.seeded {
		if a.seeder != nil {
			max, err := a.seeder.MaxTokenNumber(ctx, key)
			if err != nil {
				return 0, fmt.Errorf("queue: seed token partition: %w", err)
			}
			p.last = max
		}
		p.seeded = true
	}
	p.last++
	return p.last, nil
}
