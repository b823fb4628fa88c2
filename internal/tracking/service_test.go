package tracking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetwatch/internal/domain/fleet"
	"fleetwatch/internal/stream"
)

type fakeStream struct {
	msgs    chan stream.Message
	openErr error
	opened  int
	closed  int
}

func (s *fakeStream) Open(context.Context) (<-chan stream.Message, error) {
	s.opened++
	if s.openErr != nil {
		return nil, s.openErr
	}
	return s.msgs, nil
}

func (s *fakeStream) Close() error {
	s.closed++
	if s.msgs != nil {
		close(s.msgs)
		s.msgs = nil
	}
	return nil
}

type fakeSnapshot struct {
	devices   []fleet.Record
	geofences []fleet.Record
	err       error
}

func (f fakeSnapshot) ListDevices(context.Context) ([]fleet.Record, error) {
	return f.devices, f.err
}

func (f fakeSnapshot) ListGeofences(context.Context) ([]fleet.Record, error) {
	return f.geofences, f.err
}

func TestServiceBootstrapsThenStreams(t *testing.T) {
	fx := newFixture(t, "alarm")
	st := &fakeStream{msgs: make(chan stream.Message, 4)}
	svc, err := NewService(ServiceConfig{
		Controller: fx.ctrl,
		Stream:     st,
		Snapshot: fakeSnapshot{
			devices: []fleet.Record{{"id": "1", "name": "Truck1"}},
			geofences: []fleet.Record{
				{"id": "g1", "name": "Depot", "area": "CIRCLE (10 20, 300)"},
				{"id": "g2", "area": "GEOMETRYCOLLECTION EMPTY"},
			},
		},
	})
	require.NoError(t, err)
	require.NoError(t, svc.Start(context.Background()))
	require.NoError(t, svc.Start(context.Background()))
	assert.Equal(t, 1, st.opened)

	assert.Len(t, fx.ctrl.Renderer().Geofences(), 1)
	d, ok := fx.ctrl.Snapshot().Device("1")
	require.True(t, ok)
	assert.Equal(t, "Truck1", d.Name)

	st.msgs <- stream.DeviceBatch{Records: []fleet.Record{{"id": "1", "status": "online"}}}
	st.msgs <- stream.DiscreteEvent{Event: fleet.Event{Type: fleet.EventAlarm, DeviceID: "1"}}
	assert.Eventually(t, func() bool { return fx.ctrl.Alert().Active }, time.Second, 5*time.Millisecond)

	svc.Stop()
	svc.Stop()
	assert.Equal(t, 1, st.closed)
	assert.False(t, fx.ctrl.Alert().Active, "stop closes the active alert")
	assert.Zero(t, fx.clock.Pending())

	d, _ = fx.ctrl.Snapshot().Device("1")
	assert.Equal(t, fleet.StatusOnline, d.Status)
}

func TestServiceMissingCredentialsIsNotFatal(t *testing.T) {
	fx := newFixture(t)
	st := &fakeStream{openErr: stream.ErrMissingCredentials}
	svc, err := NewService(ServiceConfig{Controller: fx.ctrl, Stream: st})
	require.NoError(t, err)

	require.NoError(t, svc.Start(context.Background()))
	svc.Stop()
	assert.Equal(t, 1, st.closed)
}

func TestServiceOpenErrorIsReturned(t *testing.T) {
	fx := newFixture(t)
	svc, err := NewService(ServiceConfig{Controller: fx.ctrl, Stream: &fakeStream{openErr: errors.New("refused")}})
	require.NoError(t, err)
	assert.ErrorContains(t, svc.Start(context.Background()), "refused")
}

func TestServiceSnapshotFailureContinues(t *testing.T) {
	fx := newFixture(t)
	st := &fakeStream{msgs: make(chan stream.Message)}
	svc, err := NewService(ServiceConfig{
		Controller: fx.ctrl,
		Stream:     st,
		Snapshot:   fakeSnapshot{err: errors.New("backend down")},
	})
	require.NoError(t, err)
	require.NoError(t, svc.Start(context.Background()))
	assert.Empty(t, fx.ctrl.Snapshot().DeviceRecords())
	svc.Stop()
}

func TestNewServiceRequiresDeps(t *testing.T) {
	_, err := NewService(ServiceConfig{})
	assert.Error(t, err)
	_, err = NewService(ServiceConfig{Controller: NewController(Deps{})})
	assert.Error(t, err)
}
