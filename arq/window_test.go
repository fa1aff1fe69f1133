package arq

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWindow(t *testing.T) {
	t.Run("bound", func(t *testing.T) {
		require := require.New(t)
		w := window{size: 3}
		for i := 0; i < 3; i++ {
			require.False(w.full())
			w.push([]byte{byte(i)})
		}
		require.True(w.full())
		require.Equal(3, w.outstanding())
		require.True(w.hasUnsent())
	})

	t.Run("wrap around", func(t *testing.T) {
		require := require.New(t)
		w := window{size: 7}
		now := time.Unix(0, 0)
		for round := 0; round < 3; round++ {
			for i := 0; i < 5; i++ {
				w.push([]byte{byte(i)})
				w.take(now)
			}
			require.Equal(5, w.outstanding())
			require.True(w.acceptable(w.next))
			require.False(w.acceptable((w.next + 1) & 7))
			w.confirm = w.next
			require.Equal(0, w.outstanding())
		}
	})

	t.Run("stale", func(t *testing.T) {
		require := require.New(t)
		w := window{size: 4}
		now := time.Unix(0, 0)
		for i := 0; i < 3; i++ {
			w.push([]byte{byte(i)})
			w.take(now)
		}
		w.confirm = 3
		require.True(w.acceptable(3))
		require.False(w.acceptable(1))
		require.True(w.stale(1))
		require.True(w.stale(0))
		require.False(w.stale(5))
		require.False(w.stale(4))
	})

	t.Run("rewind", func(t *testing.T) {
		require := require.New(t)
		w := window{size: 4}
		now := time.Unix(0, 0)
		for i := 0; i < 3; i++ {
			w.push([]byte{byte(i)})
			_, sl := w.take(now)
			require.False(sl.resent)
		}
		w.rewind()
		require.Equal(w.confirm, w.next)
		require.True(w.acceptable(3))
		_, sl := w.take(now)
		require.True(sl.resent)
		// high stays at the furthest transmitted frame after a rewind
		require.Equal(uint8(3), w.high)
	})

	t.Run("drain", func(t *testing.T) {
		require := require.New(t)
		w := window{size: 4}
		w.push([]byte("a"))
		w.push([]byte("b"))
		require.Equal([][]byte{[]byte("a"), []byte("b")}, w.drain())
		require.Equal(0, w.outstanding())
		require.Nil(w.oldest())
	})
}
