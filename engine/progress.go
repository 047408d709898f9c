package engine

import (
	"sync"
	"time"
)

// ProgressEvent is the tagged union of everything the engine publishes to
// an external UI over the course of a session.
type ProgressEvent struct {
	Kind ProgressKind

	State          State  // StateChanged
	ConnectionType string // ConnectionTypeChanged: "direct" | "relay"

	SessionID string     // FileOffer
	Files     []FileOffered // FileOffer

	BytesTransferred int64   // TransferProgress
	BytesTotal       int64   // TransferProgress
	SpeedBps         float64 // TransferProgress
	ETASeconds       float64 // TransferProgress
	CurrentFile      string  // TransferProgress
	Percent          float64 // TransferProgress

	Name string // FileCompleted

	DurationSeconds float64 // TransferComplete
	AverageSpeed    float64 // TransferComplete
	TotalBytes      int64   // TransferComplete
	FileCount       int     // TransferComplete

	Message string // Error
}

// FileOffered is the minimal description of an offered file surfaced in a
// FileOffer event, for a UI accept/decline prompt.
type FileOffered struct {
	Name string
	Size uint64
}

// ProgressKind discriminates ProgressEvent's variants.
type ProgressKind int

const (
	EventStateChanged ProgressKind = iota
	EventConnectionTypeChanged
	EventFileOffer
	EventTransferProgress
	EventFileCompleted
	EventTransferComplete
	EventError
)

// ProgressBus fans one session's events out to every subscriber. A
// subscriber that stops reading never blocks the publisher: Publish uses a
// non-blocking send and drops the event for slow consumers rather than
// stalling the transfer.
type ProgressBus struct {
	mu          sync.Mutex
	subscribers map[int]chan ProgressEvent
	nextID      int
	bufferSize  int
}

// NewProgressBus creates a bus whose subscriber channels are buffered to
// bufferSize events.
func NewProgressBus(bufferSize int) *ProgressBus {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &ProgressBus{
		subscribers: make(map[int]chan ProgressEvent),
		bufferSize:  bufferSize,
	}
}

// Subscribe registers a new receiver and returns its channel plus a handle
// for Unsubscribe.
func (b *ProgressBus) Subscribe() (<-chan ProgressEvent, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	ch := make(chan ProgressEvent, b.bufferSize)
	b.subscribers[id] = ch
	return ch, id
}

// Unsubscribe removes and closes a subscriber's channel.
func (b *ProgressBus) Unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subscribers[id]; ok {
		delete(b.subscribers, id)
		close(ch)
	}
}

// Publish delivers event to every current subscriber. Failing to deliver to
// a full subscriber channel is treated as a disconnected receiver and
// silently ignored, per the engine's non-fatal emission-failure policy.
func (b *ProgressBus) Publish(event ProgressEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}

// speedWindow is the duration over which ProgressTracker computes its
// instantaneous speed_bps, matching the 3-second window the protocol's
// original implementation uses.
const speedWindow = 3 * time.Second

type speedSample struct {
	at    time.Time
	bytes int64
}

// ProgressTracker accumulates bytes transferred for one session and derives
// an instantaneous (sliding-window) speed and an ETA, plus a whole-session
// average speed for the terminal TransferComplete event.
type ProgressTracker struct {
	start            time.Time
	bytesTransferred int64
	bytesTotal       int64
	samples          []speedSample
}

// NewProgressTracker starts a tracker for a session whose total size (across
// all files) is bytesTotal.
func NewProgressTracker(bytesTotal int64) *ProgressTracker {
	now := time.Now()
	return &ProgressTracker{
		start:      now,
		bytesTotal: bytesTotal,
		samples:    []speedSample{{at: now, bytes: 0}},
	}
}

// Update records that bytesTransferred bytes have now been sent/received in
// total (a running total, not a delta), evicting samples older than the
// sliding window while keeping at least two for a speed calculation.
func (p *ProgressTracker) Update(bytesTransferred int64) {
	p.bytesTransferred = bytesTransferred
	now := time.Now()
	p.samples = append(p.samples, speedSample{at: now, bytes: bytesTransferred})

	cutoff := now.Add(-speedWindow)
	i := 0
	for i < len(p.samples)-2 && p.samples[i].at.Before(cutoff) {
		i++
	}
	p.samples = p.samples[i:]
}

// SpeedBps returns the instantaneous transfer rate over the sliding window.
func (p *ProgressTracker) SpeedBps() float64 {
	if len(p.samples) < 2 {
		return 0
	}
	first, last := p.samples[0], p.samples[len(p.samples)-1]
	elapsed := last.at.Sub(first.at).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(last.bytes-first.bytes) / elapsed
}

// ETASeconds estimates remaining time at the current sliding-window speed.
func (p *ProgressTracker) ETASeconds() float64 {
	speed := p.SpeedBps()
	if speed <= 0 {
		return 0
	}
	remaining := p.bytesTotal - p.bytesTransferred
	if remaining <= 0 {
		return 0
	}
	return float64(remaining) / speed
}

// Percent returns the percentage of bytesTotal transferred so far, or 100
// if bytesTotal is zero (an empty transfer is vacuously complete).
func (p *ProgressTracker) Percent() float64 {
	if p.bytesTotal == 0 {
		return 100.0
	}
	return float64(p.bytesTransferred) / float64(p.bytesTotal) * 100.0
}

// AverageSpeed returns the whole-session average throughput: total bytes
// transferred divided by total elapsed time since the tracker started.
func (p *ProgressTracker) AverageSpeed() float64 {
	elapsed := time.Since(p.start).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(p.bytesTransferred) / elapsed
}

// Elapsed returns the time since the tracker started.
func (p *ProgressTracker) Elapsed() time.Duration {
	return time.Since(p.start)
}
