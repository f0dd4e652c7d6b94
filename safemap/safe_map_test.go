package safemap

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type conn struct{ id uint32 }

func TestSafeMap_StoreLoad(t *testing.T) {
	m := New[uint32, string]()

	t.Run("load missing key returns zero value and false", func(t *testing.T) {
		v, ok := m.Load(1)
		assert.False(t, ok)
		assert.Empty(t, v)
		assert.False(t, m.Has(1))
	})

	t.Run("store then load", func(t *testing.T) {
		m.Store(1, "a")
		v, ok := m.Load(1)
		require.True(t, ok)
		assert.Equal(t, "a", v)
		assert.True(t, m.Has(1))
	})

	t.Run("store overwrites", func(t *testing.T) {
		m.Store(1, "b")
		v, _ := m.Load(1)
		assert.Equal(t, "b", v)
		assert.Equal(t, 1, m.Len())
	})

	t.Run("delete removes key", func(t *testing.T) {
		m.Delete(1)
		m.Delete(42)
		assert.False(t, m.Has(1))
		assert.Equal(t, 0, m.Len())
	})
}

func TestSafeMap_CompareAndDelete(t *testing.T) {
	t.Run("removes only the matching value", func(t *testing.T) {
		m := New[uint32, *conn]()
		owner := &conn{id: 7}
		m.Store(7, owner)

		assert.False(t, m.CompareAndDelete(7, &conn{id: 7}))
		assert.True(t, m.Has(7))

		assert.True(t, m.CompareAndDelete(7, owner))
		assert.False(t, m.Has(7))
		assert.False(t, m.CompareAndDelete(7, owner))
	})
}

func TestValues(t *testing.T) {
	t.Run("ordered by key", func(t *testing.T) {
		m := New[uint32, string]()
		m.Store(5, "e")
		m.Store(2, "b")
		m.Store(9, "i")

		assert.Equal(t, []string{"b", "e", "i"}, Values(m))
	})

	t.Run("empty map yields empty slice", func(t *testing.T) {
		assert.Empty(t, Values(New[uint32, string]()))
	})
}

func TestSafeMap_Range(t *testing.T) {
	m := New[uint32, int]()
	for i := uint32(1); i <= 3; i++ {
		m.Store(i, int(i)*10)
	}

	t.Run("visits every entry", func(t *testing.T) {
		seen := map[uint32]int{}
		m.Range(func(k uint32, v int) bool {
			seen[k] = v
			return true
		})
		assert.Equal(t, map[uint32]int{1: 10, 2: 20, 3: 30}, seen)
	})

	t.Run("stops when f returns false", func(t *testing.T) {
		calls := 0
		m.Range(func(uint32, int) bool {
			calls++
			return false
		})
		assert.Equal(t, 1, calls)
	})
}

func TestSafeMap_Concurrent(t *testing.T) {
	m := New[uint32, uint32]()
	const workers = 50
	const perWorker = 200

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				k := uint32(w*perWorker + i)
				m.Store(k, k)
				m.Load(k)
				m.Len()
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, workers*perWorker, m.Len())
}
