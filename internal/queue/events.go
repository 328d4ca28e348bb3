package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/caretoken/internal/calendar"
	"github.com/wolfman30/caretoken/pkg/logging"
)

// Event kinds published after a queue mutation.
const (
	EventBooked        = "appointment.booked"
	EventStatusChanged = "appointment.status_changed"
	EventHoldToggled   = "appointment.hold_toggled"
)

// Event tells live boards that a doctor's queue changed.
type Event struct {
	Type          string        `json:"type"`
	DoctorID      uuid.UUID     `json:"doctor_id"`
	Date          calendar.Date `json:"date"`
	AppointmentID uuid.UUID     `json:"appointment_id"`
	State         State         `json:"state"`
	OccurredAt    time.Time     `json:"occurred_at"`
}

// Broker fans queue events out to subscribers of a doctor.
type Broker interface {
	Publish(ctx context.Context, evt Event) error
	// Subscribe returns a channel of the doctor's events and a cancel func
	// that must be called to release it.
	Subscribe(ctx context.Context, doctorID uuid.UUID) (<-chan Event, func())
}

const subscriberBuffer = 16

// LocalBroker delivers events within one process.
type LocalBroker struct {
	mu   sync.RWMutex
	subs map[uuid.UUID]map[chan Event]struct{}
}

// NewLocalBroker creates an in-process broker.
func NewLocalBroker() *LocalBroker {
	return &LocalBroker{subs: make(map[uuid.UUID]map[chan Event]struct{})}
}

// Publish implements Broker. Slow subscribers miss events rather than block the caller.
func (b *LocalBroker) Publish(_ context.Context, evt Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs[evt.DoctorID] {
		select {
		case ch <- evt:
		default:
		}
	}
	return nil
}

// Subscribe implements Broker.
func (b *LocalBroker) Subscribe(_ context.Context, doctorID uuid.UUID) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	b.mu.Lock()
	if b.subs[doctorID] == nil {
		b.subs[doctorID] = make(map[chan Event]struct{})
	}
	b.subs[doctorID][ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[doctorID], ch)
			if len(b.subs[doctorID]) == 0 {
				delete(b.subs, doctorID)
			}
			b.mu.Unlock()
			close(ch)
		})
	}
}

// RedisBroker fans events out through Redis pub/sub so every API instance
// sees every mutation.
type RedisBroker struct {
	redis  *redis.Client
	logger *logging.Logger
}

// NewRedisBroker creates a Redis pub/sub broker.
func NewRedisBroker(client *redis.Client, logger *logging.Logger) *RedisBroker {
	if client == nil {
		panic("queue: redis client required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &RedisBroker{redis: client, logger: logger}
}

func eventChannel(doctorID uuid.UUID) string {
	return fmt.Sprintf("queue:events:%s", doctorID)
}

// Publish implements Broker.
func (b *RedisBroker) Publish(ctx context.Context, evt Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("queue: marshal event: %w", err)
	}
	if err := b.redis.Publish(ctx, eventChannel(evt.DoctorID), data).Err(); err != nil {
		return fmt.Errorf("queue: publish event: %w", err)
	}
	return nil
}

// Subscribe implements Broker.
func (b *RedisBroker) Subscribe(ctx context.Context, doctorID uuid.UUID) (<-chan Event, func()) {
	ctx, cancel := context.WithCancel(ctx)
	pubsub := b.redis.Subscribe(ctx, eventChannel(doctorID))
	out := make(chan Event, subscriberBuffer)

	go func() {
		defer close(out)
		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var evt Event
				if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
					b.logger.Warn("dropping malformed queue event", "channel", msg.Channel, "error", err)
					continue
				}
				select {
				case out <- evt:
				default:
				}
			}
		}
	}()

	var once sync.Once
	return out, func() {
		once.Do(func() {
			cancel()
			_ = pubsub.Close()
		})
	}
}
