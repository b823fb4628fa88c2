package tracking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"fleetwatch/internal/domain/fleet"
	"fleetwatch/internal/geofence"
	"fleetwatch/internal/stream"
)

// SnapshotSource lists the paged REST snapshot taken before streaming.
type SnapshotSource interface {
	ListDevices(ctx context.Context) ([]fleet.Record, error)
	ListGeofences(ctx context.Context) ([]fleet.Record, error)
}

// Stream is the connection the service drives for its whole lifetime.
type Stream interface {
	Open(ctx context.Context) (<-chan stream.Message, error)
	Close() error
}

type ServiceConfig struct {
	Controller *Controller
	Stream     Stream
	// Snapshot is optional; without it the state starts empty.
	Snapshot         SnapshotSource
	BootstrapTimeout time.Duration
	Logger           *zap.Logger
}

// Service bootstraps state from the REST snapshot, then runs the stream into
// the controller until Stop.
type Service struct {
	cfg ServiceConfig
	log *zap.Logger

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Controller == nil {
		return nil, errors.New("controller is required")
	}
	if cfg.Stream == nil {
		return nil, errors.New("stream is required")
	}
	if cfg.BootstrapTimeout <= 0 {
		cfg.BootstrapTimeout = 30 * time.Second
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{cfg: cfg, log: log}, nil
}

// Start loads the snapshot and opens the stream. Snapshot failures are
// logged and startup continues. Missing credentials skip the stream without
// failing Start; any other open error is returned.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	s.bootstrap(ctx)

	msgs, err := s.cfg.Stream.Open(ctx)
	if err != nil {
		if errors.Is(err, stream.ErrMissingCredentials) {
			s.log.Warn("Live tracking disabled: no stream credentials")
			s.started = true
			return nil
		}
		return fmt.Errorf("failed to start tracking stream: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		if err := s.cfg.Controller.Run(runCtx, msgs); err != nil && !errors.Is(err, context.Canceled) {
			s.log.Error("Tracking loop stopped", zap.Error(err))
		}
	}()

	s.started = true
	s.log.Info("Tracking service started")
	return nil
}

func (s *Service) bootstrap(ctx context.Context) {
	if s.cfg.Snapshot == nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.BootstrapTimeout)
	defer cancel()

	devices, err := s.cfg.Snapshot.ListDevices(ctx)
	if err != nil {
		s.log.Warn("Failed to load device snapshot", zap.Error(err))
	} else {
		snap := s.cfg.Controller.Bootstrap(devices)
		s.log.Info("Device snapshot loaded", zap.Int("devices", len(snap.DeviceRecords())))
	}

	records, err := s.cfg.Snapshot.ListGeofences(ctx)
	if err != nil {
		s.log.Warn("Failed to load geofences", zap.Error(err))
		return
	}
	fences := geofence.Load(records, s.log)
	s.cfg.Controller.Renderer().SetGeofences(fences)
	s.log.Info("Geofences loaded", zap.Int("loaded", len(fences)), zap.Int("skipped", len(records)-len(fences)))
}

// Stop closes the stream, waits for the loop to drain and cancels any
// pending alert timer.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	if err := s.cfg.Stream.Close(); err != nil {
		s.log.Warn("Failed to close tracking stream", zap.Error(err))
	}
	if s.done != nil {
		<-s.done
		s.cancel()
	}
	s.cfg.Controller.Close()

	s.started = false
	s.cancel = nil
	s.done = nil
	s.log.Info("Tracking service stopped")
}
