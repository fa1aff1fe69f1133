package mocks

import (
	"io"
	"testing"
	"time"

	uerrors "hdlc-toolkit/util/errors"

	"github.com/stretchr/testify/require"
)

func TestPipe(t *testing.T) {
	t.Run("read write", func(t *testing.T) {
		require := require.New(t)
		c1, c2 := Pipe()
		expected := []byte("Hello, world!")
		buf := make([]byte, 512)

		w, err := c1.Write(expected)
		require.Nil(err)
		require.Equal(len(expected), w)
		require.Equal(uint64(len(expected)), c1.Written())
		require.Equal(len(expected), c2.Buffered())

		r, err := c2.Read(buf)
		require.Nil(err)
		require.Equal(expected, buf[:r])

		require.Nil(c1.Close())
		require.Nil(c2.Close())
	})

	t.Run("non-blocking read", func(t *testing.T) {
		require := require.New(t)
		c1, _ := Pipe()
		n, err := c1.Read(make([]byte, 16))
		require.Nil(err)
		require.Equal(0, n)
	})

	t.Run("read deadline", func(t *testing.T) {
		require := require.New(t)
		c1, c2 := Pipe()
		require.Nil(c1.SetReadDeadline(time.Now().Add(25 * time.Millisecond)))
		_, err := c1.Read(make([]byte, 16))
		require.True(uerrors.IsDeadlineError(err))

		require.Nil(c1.SetReadDeadline(time.Now().Add(time.Second)))
		go func() {
			time.Sleep(10 * time.Millisecond)
			//nolint:errcheck
			c2.Write([]byte("late"))
		}()
		buf := make([]byte, 16)
		n, err := c1.Read(buf)
		require.Nil(err)
		require.Equal([]byte("late"), buf[:n])
	})

	t.Run("close", func(t *testing.T) {
		require := require.New(t)
		c1, c2 := Pipe()
		_, err := c1.Write([]byte("bye"))
		require.Nil(err)
		require.Nil(c1.Close())

		buf := make([]byte, 16)
		n, err := c2.Read(buf)
		require.Nil(err)
		require.Equal(3, n)
		_, err = c2.Read(buf)
		require.Equal(io.EOF, err)
		_, err = c2.Write([]byte("x"))
		require.Equal(io.ErrClosedPipe, err)
	})
}
