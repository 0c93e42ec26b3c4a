package sensors

import (
	"testing"

	"github.com/jkaberg/robovac-hass/internal/config"
	"github.com/jkaberg/robovac-hass/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupCreatesOneSensorPerVacuum(t *testing.T) {
	vacuums := map[string]config.VacuumEntry{
		"vac2": {ID: "vac2", Name: "Kitchen"},
		"vac1": {ID: "vac1", Name: "Living Room"},
	}

	var calls int
	var added []*BatterySensor
	err := Setup(vacuums, registry.New(), func(entities []*BatterySensor) {
		calls++
		added = entities
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
	require.Len(t, added, 2)
	assert.Equal(t, "vac1_battery", added[0].UniqueID())
	assert.Equal(t, "vac2_battery", added[1].UniqueID())
	for _, s := range added {
		assert.False(t, s.Available())
	}
}

func TestSetupRejectsBadEntry(t *testing.T) {
	vacuums := map[string]config.VacuumEntry{
		"vac1": {ID: "vac1"},
	}

	called := false
	err := Setup(vacuums, registry.New(), func([]*BatterySensor) { called = true }, nil)
	assert.ErrorIs(t, err, ErrInvalidEntry)
	assert.False(t, called)
}

func TestStateEqual(t *testing.T) {
	a := State{UniqueID: "vac1_battery", Value: intPtr(42), Available: true}
	b := State{UniqueID: "vac1_battery", Value: intPtr(42), Available: true}
	assert.True(t, a.Equal(b))

	b.Value = intPtr(41)
	assert.False(t, a.Equal(b))

	// Values behind an unavailable state are not compared.
	a.Available, b.Available = false, false
	assert.True(t, a.Equal(b))

	b.Available = true
	assert.False(t, a.Equal(b))
}
