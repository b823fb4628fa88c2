package alert

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// DefaultBlinkInterval is the pulse period of the visual cue.
const DefaultBlinkInterval = 500 * time.Millisecond

// Announcer records the audio and speech side effects of alerts.
type Announcer struct {
	log *zap.Logger
}

func NewAnnouncer(log *zap.Logger) *Announcer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Announcer{log: log}
}

func (a *Announcer) OnOpen(al Alert) {
	c := al.Classification
	a.log.Info("Starting alert audio",
		zap.Uint64("seq", al.Seq),
		zap.String("audio", c.Audio),
		zap.Bool("loop", c.LoopAudio),
	)
	a.log.Info("Speaking alert", zap.Uint64("seq", al.Seq), zap.String("text", c.Spoken))
}

func (a *Announcer) OnClose(al Alert, reason Reason) {
	a.log.Info("Stopping alert audio and speech",
		zap.Uint64("seq", al.Seq),
		zap.String("reason", string(reason)),
	)
}

// Blinker runs the pulsing cue while an alert is active. The lit flag toggles
// every interval and is false whenever no alert is open. onToggle sees every
// phase change, including the lit start on open and the final unlit on close.
type Blinker struct {
	interval time.Duration
	onToggle func(seq uint64, lit bool)

	mu   sync.Mutex
	seq  uint64
	stop chan struct{}
	done chan struct{}
	lit  atomic.Bool
}

// NewBlinker creates a blinker. onToggle may be nil; it runs on the blink
// goroutine or inside the dispatcher and must not block.
func NewBlinker(interval time.Duration, onToggle func(seq uint64, lit bool)) *Blinker {
	if interval <= 0 {
		interval = DefaultBlinkInterval
	}
	return &Blinker{interval: interval, onToggle: onToggle}
}

func (b *Blinker) OnOpen(a Alert) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.haltLocked()
	b.seq = a.Seq
	b.lit.Store(true)
	b.toggle(a.Seq, true)

	b.stop = make(chan struct{})
	b.done = make(chan struct{})
	go b.run(a.Seq, b.stop, b.done)
}

func (b *Blinker) OnClose(Alert, Reason) {
	b.mu.Lock()
	defer b.mu.Unlock()

	running := b.stop != nil
	b.haltLocked()
	b.lit.Store(false)
	if running {
		b.toggle(b.seq, false)
	}
}

// Lit reports the current phase of the pulse.
func (b *Blinker) Lit() bool {
	return b.lit.Load()
}

// Running reports whether the pulse interval is active.
func (b *Blinker) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stop != nil
}

func (b *Blinker) haltLocked() {
	if b.stop == nil {
		return
	}
	close(b.stop)
	<-b.done
	b.stop, b.done = nil, nil
}

func (b *Blinker) toggle(seq uint64, lit bool) {
	if b.onToggle != nil {
		b.onToggle(seq, lit)
	}
}

func (b *Blinker) run(seq uint64, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			lit := !b.lit.Load()
			b.lit.Store(lit)
			b.toggle(seq, lit)
		}
	}
}
