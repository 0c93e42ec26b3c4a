package registry

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func TestLookupMissing(t *testing.T) {
	r := New()

	_, err := r.Lookup("vac1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateAndLookup(t *testing.T) {
	r := New()
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	r.now = func() time.Time { return fixed }

	r.Update("vac1", intPtr(42))

	v, err := r.Lookup("vac1")
	require.NoError(t, err)
	require.NotNil(t, v.BatteryLevel)
	assert.Equal(t, 42, *v.BatteryLevel)
	assert.Equal(t, "vac1", v.ID)
	assert.Equal(t, fixed, v.UpdatedAt)
}

func TestLookupReturnsCopy(t *testing.T) {
	r := New()
	level := 42
	r.Update("vac1", &level)
	level = 7

	v, err := r.Lookup("vac1")
	require.NoError(t, err)
	*v.BatteryLevel = 1

	again, err := r.Lookup("vac1")
	require.NoError(t, err)
	assert.Equal(t, 42, *again.BatteryLevel)
}

func TestUpdateNilLevel(t *testing.T) {
	r := New()
	r.Update("vac1", intPtr(42))
	r.Update("vac1", nil)

	v, err := r.Lookup("vac1")
	require.NoError(t, err)
	assert.Nil(t, v.BatteryLevel)
}

func TestMarkBrokenUntilNextUpdate(t *testing.T) {
	r := New()
	r.Update("vac1", intPtr(42))
	r.MarkBroken("vac1", errors.New("garbled payload"))

	_, err := r.Lookup("vac1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInconsistent)
	assert.Contains(t, err.Error(), "garbled payload")

	r.Update("vac1", intPtr(40))
	v, err := r.Lookup("vac1")
	require.NoError(t, err)
	assert.Equal(t, 40, *v.BatteryLevel)
}

func TestUpdateOutOfRangeMarksBroken(t *testing.T) {
	r := New()

	r.Update("vac1", intPtr(140))
	_, err := r.Lookup("vac1")
	assert.ErrorIs(t, err, ErrInconsistent)

	r.Update("vac2", intPtr(-1))
	_, err = r.Lookup("vac2")
	assert.ErrorIs(t, err, ErrInconsistent)
}

func TestRemove(t *testing.T) {
	r := New()
	r.Update("a", intPtr(1))
	r.MarkBroken("b", nil)

	r.Remove("a")
	r.Remove("b")

	_, err := r.Lookup("a")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = r.Lookup("b")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConcurrentAccess(t *testing.T) {
	r := New()
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(2)
		id := fmt.Sprintf("vac%d", i%2)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.Update(id, intPtr((n+j)%101))
			}
		}(i)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				v, err := r.Lookup(id)
				if err == nil && v.BatteryLevel != nil {
					assert.GreaterOrEqual(t, *v.BatteryLevel, 0)
					assert.LessOrEqual(t, *v.BatteryLevel, 100)
				}
			}
		}()
	}
	wg.Wait()
}
