package connector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weilun-shrimp/ocpp16-cp-sim/internal/kvstore"
)

type recordingObserver struct {
	availabilityChanges []string
	statusChanges       []string
}

func (r *recordingObserver) OnStatusChange(string, string) {}
func (r *recordingObserver) OnAvailabilityChange(connectorID int, availability string) {
	r.availabilityChanges = append(r.availabilityChanges, availability)
}
func (r *recordingObserver) OnConnectorStatusChange(connectorID int, status string) {
	r.statusChanges = append(r.statusChanges, status)
}
func (r *recordingObserver) OnMeterValueChange(int) {}
func (r *recordingObserver) OnLog(string)           {}

func newModel() (*Model, *recordingObserver) {
	obs := &recordingObserver{}
	m := New(kvstore.NewMemStore(), kvstore.NewMemStore(), obs)
	return m, obs
}

func TestDefaults(t *testing.T) {
	m, _ := newModel()
	assert.Equal(t, StatusAvailable, m.GetStatus(1))
	assert.Equal(t, Operative, m.GetAvailability(1))
}

func TestSetStatus_NotifyFlag(t *testing.T) {
	m, obs := newModel()

	m.SetStatus(1, StatusFinishing, false)
	assert.Equal(t, StatusFinishing, m.GetStatus(1))
	assert.Empty(t, obs.statusChanges, "notify=false must not emit an event")

	m.SetStatus(1, StatusAvailable, true)
	assert.Equal(t, []string{StatusAvailable}, obs.statusChanges)
}

func TestSetAvailability_InoperativeSetsUnavailable(t *testing.T) {
	m, _ := newModel()
	require.NoError(t, m.SetAvailability(1, Inoperative))
	assert.Equal(t, Inoperative, m.GetAvailability(1))
	assert.Equal(t, StatusUnavailable, m.GetStatus(1))
}

func TestSetAvailability_OperativeSetsAvailable(t *testing.T) {
	// This is the corrected branch: the source set Unavailable here too.
	m, _ := newModel()
	require.NoError(t, m.SetAvailability(1, Inoperative))
	require.NoError(t, m.SetAvailability(1, Operative))
	assert.Equal(t, Operative, m.GetAvailability(1))
	assert.Equal(t, StatusAvailable, m.GetStatus(1))
}

func TestSetAvailability_CascadesFromConnectorZero(t *testing.T) {
	m, obs := newModel()
	require.NoError(t, m.SetAvailability(0, Inoperative))

	assert.Equal(t, Inoperative, m.GetAvailability(0))
	assert.Equal(t, Inoperative, m.GetAvailability(1))
	assert.Equal(t, Inoperative, m.GetAvailability(2))

	// One availability event each for connectors 0, 1 and 2.
	require.Len(t, obs.availabilityChanges, 3)
	assert.Equal(t, []string{Inoperative, Inoperative, Inoperative}, obs.availabilityChanges)
}

func TestSetAvailability_NonZeroDoesNotCascade(t *testing.T) {
	m, _ := newModel()
	require.NoError(t, m.SetAvailability(1, Inoperative))
	assert.Equal(t, Operative, m.GetAvailability(2))
	assert.Equal(t, Operative, m.GetAvailability(0))
}

func TestSetAvailability_InvalidValue(t *testing.T) {
	m, _ := newModel()
	err := m.SetAvailability(1, "Bogus")
	assert.Error(t, err)
}

func TestAvailabilityIsDurable_StatusIsSession(t *testing.T) {
	durable := kvstore.NewMemStore()
	session := kvstore.NewMemStore()
	m := New(durable, session, nil)

	require.NoError(t, m.SetAvailability(1, Inoperative))
	m.SetStatus(1, StatusCharging, true)

	assert.Equal(t, Inoperative, durable.Get(kvstore.KeyConnAvailability+"1", ""))
	assert.Equal(t, StatusCharging, session.Get(kvstore.KeyConnStatus+"1", ""))

	// Clearing the session store must not disturb durable availability.
	session.Clear()
	assert.Equal(t, Inoperative, m.GetAvailability(1))
	assert.Equal(t, StatusAvailable, m.GetStatus(1), "session clear resets to default status")
}
