package netem

import (
	"io"
	"math/rand"
	"testing"

	"hdlc-toolkit/util/mocks"

	"github.com/stretchr/testify/require"
)

func TestNetem(t *testing.T) {
	rand := rand.New(rand.NewSource(0))
	expectedLen := 64
	expected := make([]byte, expectedLen)
	_, err := io.ReadFull(rand, expected)
	require.Nil(t, err)
	buf := make([]byte, 256)

	s, c := mocks.Pipe()
	ns := New(s, DefaultConfig())
	nc := New(c, DefaultConfig())

	clientWrite := func(require *require.Assertions) {
		w, err := nc.Write(expected)
		require.Nil(err)
		require.Equal(expectedLen, w)
	}

	serverRead := func(require *require.Assertions) []byte {
		var out []byte
		for {
			n, err := ns.Read(buf)
			require.Nil(err)
			if n == 0 && s.Buffered() == 0 {
				return out
			}
			out = append(out, buf[:n]...)
		}
	}

	t.Run("normal", func(t *testing.T) {
		require := require.New(t)
		clientWrite(require)
		require.Equal(expected, serverRead(require))
	})

	t.Run("fragmentation+loss:write", func(t *testing.T) {
		require := require.New(t)
		nc.Update(Config{
			WriteLossNth:      2,
			WriteFragmentSize: 16,
		})
		clientWrite(require)
		actual := serverRead(require)
		require.Len(actual, expectedLen/2)
		require.Equal(expected[:16], actual[:16])
		require.Equal(expected[32:48], actual[16:32])
		require.Equal(uint64(2), nc.Stats().Dropped)
	})

	t.Run("loss at:write", func(t *testing.T) {
		require := require.New(t)
		nc.Update(Config{
			WriteLossAt:       []int{3},
			WriteFragmentSize: 16,
		})
		clientWrite(require)
		actual := serverRead(require)
		require.Equal(expected[:32], actual[:32])
		require.Equal(expected[48:], actual[32:])
	})

	t.Run("fragmentation+duplication:write", func(t *testing.T) {
		require := require.New(t)
		nc.Update(Config{
			WriteDuplicateNth: 4,
			WriteFragmentSize: 16,
		})
		clientWrite(require)
		actual := serverRead(require)
		require.Len(actual, expectedLen+16)
		require.Equal(actual[48:64], actual[64:80])
	})

	t.Run("reorder:write", func(t *testing.T) {
		require := require.New(t)
		nc.Update(Config{
			WriteReorderNth:   1,
			WriteFragmentSize: 32,
		})
		clientWrite(require)
		actual := serverRead(require)
		require.Equal(expected[32:], actual[:32])
		require.Equal(expected[:32], actual[32:])
	})

	t.Run("corrupt:write", func(t *testing.T) {
		require := require.New(t)
		nc.Update(Config{WriteCorruptNth: 1})
		clientWrite(require)
		actual := serverRead(require)
		require.Len(actual, expectedLen)
		require.NotEqual(expected, actual)
		require.Equal(expected[0], actual[0])
		require.Equal(uint64(1), nc.Stats().Corrupted)
	})

	t.Run("loss:read", func(t *testing.T) {
		require := require.New(t)
		nc.Reset()
		ns.Update(Config{ReadLossNth: 1})
		clientWrite(require)
		n, err := ns.Read(buf)
		require.Nil(err)
		require.Equal(0, n)
		require.Equal(0, s.Buffered())
		ns.Reset()
	})

	t.Run("duplication:read", func(t *testing.T) {
		require := require.New(t)
		ns.Update(Config{ReadDuplicateNth: 1})
		clientWrite(require)
		n, err := ns.Read(buf)
		require.Nil(err)
		first := append([]byte(nil), buf[:n]...)
		ns.Reset()
		n, err = ns.Read(buf)
		require.Nil(err)
		require.Equal(first, buf[:n])
		require.Equal(expected, first)
	})

	{ // Teardown
		require := require.New(t)
		require.Nil(nc.Close())
		require.Nil(ns.Close())
		require.Equal(ErrNetemClosed, nc.Close())
	}
}
