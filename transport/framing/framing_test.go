package framing_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ozontech/bulkrpc/transport/framing"
)

const mtu = 1024

func randomPackets(r *rand.Rand, n int) [][]byte {
	packets := make([][]byte, n)
	for i := range packets {
		var size int
		switch r.Intn(4) {
		case 0:
			size = 0
		case 1:
			size = mtu - 2
		default:
			size = r.Intn(300)
		}
		p := make([]byte, size)
		r.Read(p)
		packets[i] = p
	}
	return packets
}

// encodeAll splits packets into mtu-bounded batches the way the outbound loop does.
func encodeAll(t *testing.T, packets [][]byte) [][]byte {
	var batches [][]byte
	for len(packets) > 0 {
		batch, n := framing.EncodeBatch(nil, packets, mtu)
		require.NotZero(t, n)
		require.LessOrEqual(t, len(batch), mtu)
		batches = append(batches, batch)
		packets = packets[n:]
	}
	return batches
}

func TestEncodeBatchStopsBeforeOverflow(t *testing.T) {
	t.Parallel()
	a := assert.New(t)

	packets := [][]byte{make([]byte, 500), make([]byte, 500), make([]byte, 10)}
	batch, n := framing.EncodeBatch(nil, packets, mtu)
	a.Equal(2, n)
	a.Len(batch, 1004)
	a.Equal([]byte{0xf4, 0x01}, batch[:2])

	batch, n = framing.EncodeBatch(batch, packets[n:], mtu)
	a.Equal(1, n)
	a.Len(batch, 12)

	// ровно в mtu
	batch, n = framing.EncodeBatch(nil, [][]byte{make([]byte, mtu-2)}, mtu)
	a.Equal(1, n)
	a.Len(batch, mtu)
}

func TestBatch(t *testing.T) {
	t.Parallel()
	a := assert.New(t)

	b := framing.NewBatch(make([]byte, 0, mtu), mtu)
	a.True(b.Add(make([]byte, 500)))
	a.True(b.Add(make([]byte, 500)))
	a.False(b.Add(make([]byte, 19)), "1004 + 21 > mtu")
	a.Equal(2, b.Packets())
	a.Len(b.Bytes(), 1004)

	b.Reset()
	a.Zero(b.Packets())
	a.Empty(b.Bytes())
}

func TestCheckPacket(t *testing.T) {
	t.Parallel()
	a := assert.New(t)

	a.NoError(framing.CheckPacket(make([]byte, mtu-2), mtu))
	a.ErrorIs(framing.CheckPacket(make([]byte, mtu-1), mtu), framing.ErrPacketTooLarge)
	a.ErrorIs(framing.CheckPacket(make([]byte, 1<<16), 1<<20), framing.ErrPacketTooLarge)
}

func TestRoundTripChunked(t *testing.T) {
	t.Parallel()
	r := rand.New(rand.NewSource(1))

	for _, chunkSize := range []int{1, 2, 3, 63, 64, 1000, mtu, 1 << 20} {
		packets := randomPackets(r, 200)
		var stream []byte
		for _, b := range encodeAll(t, packets) {
			stream = append(stream, b...)
		}

		var (
			got   [][]byte
			carry []byte
		)
		for off := 0; off < len(stream); off += chunkSize {
			end := min(off+chunkSize, len(stream))
			var decoded [][]byte
			decoded, carry = framing.DecodeStream(carry, stream[off:end])
			got = append(got, decoded...)
		}
		assert.Empty(t, carry, "chunk %d", chunkSize)
		assert.Equal(t, packets, got, "chunk %d", chunkSize)
	}
}

func TestSplitAtEveryOffset(t *testing.T) {
	t.Parallel()
	a := assert.New(t)

	packets := [][]byte{[]byte("hello"), {}, []byte("world!"), make([]byte, 300)}
	stream, n := framing.EncodeBatch(nil, packets, mtu)
	a.Equal(len(packets), n)

	whole, rest := framing.DecodeStream(nil, stream)
	a.Empty(rest)
	a.Equal(packets, whole)

	for off := 0; off <= len(stream); off++ {
		first, carry := framing.DecodeStream(nil, stream[:off])
		second, carry := framing.DecodeStream(carry, stream[off:])
		a.Empty(carry, "offset %d", off)
		a.Equal(whole, append(first, second...), "offset %d", off)
	}
}

func TestDecodeStreamDoesNotAlias(t *testing.T) {
	t.Parallel()
	a := assert.New(t)

	data := framing.AppendFrame(nil, []byte("abc"))
	packets, _ := framing.DecodeStream(nil, data)
	data[2] = 'x'
	a.Equal([][]byte{[]byte("abc")}, packets)
}

func TestReassembler(t *testing.T) {
	t.Parallel()
	a := assert.New(t)

	stream := framing.AppendFrame(nil, []byte("first"))
	stream = framing.AppendFrame(stream, []byte("second"))

	rs := framing.NewReassembler(mtu)
	buf := make([]byte, 4)

	// буфер чтения переиспользуется между вызовами, как в inbound loop
	var got [][]byte
	for off := 0; off < len(stream); off += len(buf) {
		n := copy(buf, stream[off:])
		packets, err := rs.Feed(buf[:n])
		a.NoError(err)
		got = append(got, packets...)
		for i := range buf {
			buf[i] = 0xAA
		}
	}
	a.Equal([][]byte{[]byte("first"), []byte("second")}, got)
	a.Zero(rs.Buffered())
}

func TestReassemblerStatuses(t *testing.T) {
	t.Parallel()
	a := assert.New(t)

	stream := framing.AppendFrame(nil, []byte("payload"))
	rs := framing.NewReassembler(mtu)

	rs.Fill(stream[:1])
	p, status, err := rs.Next()
	a.NoError(err)
	a.Nil(p)
	a.Equal(framing.StatusHeaderIncomplete, status)
	a.Equal(1, rs.Buffered())

	rs.Fill(stream[1:4])
	_, status, err = rs.Next()
	a.NoError(err)
	a.Equal(framing.StatusPayloadIncomplete, status)

	// повторный Next без Fill ничего не теряет
	_, status, err = rs.Next()
	a.NoError(err)
	a.Equal(framing.StatusPayloadIncomplete, status)
	a.Equal(4, rs.Buffered())

	rs.Fill(stream[4:])
	p, status, err = rs.Next()
	a.NoError(err)
	a.Equal(framing.StatusFrameDone, status)
	a.Equal([]byte("payload"), p)

	_, status, err = rs.Next()
	a.NoError(err)
	a.Equal(framing.StatusBufEmpty, status)
}

func TestReassemblerRejectsImpossibleLength(t *testing.T) {
	t.Parallel()
	a := assert.New(t)

	rs := framing.NewReassembler(mtu)
	_, err := rs.Feed([]byte{0xff, 0xff, 0x00})

	a.ErrorIs(err, framing.ErrFrameTooLarge)
	var frameErr framing.FrameError
	a.ErrorAs(err, &frameErr)
	a.Equal(0xffff, frameErr.Length)
	a.Equal(mtu, frameErr.Limit)
}

func BenchmarkEncodeBatch(b *testing.B) {
	packets := randomPackets(rand.New(rand.NewSource(2)), 64)
	buf := make([]byte, 0, mtu)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		rest := packets
		for len(rest) > 0 {
			_, n := framing.EncodeBatch(buf, rest, mtu)
			rest = rest[n:]
		}
	}
}

func BenchmarkReassembler(b *testing.B) {
	var stream []byte
	for _, p := range randomPackets(rand.New(rand.NewSource(3)), 64) {
		stream = framing.AppendFrame(stream, p)
	}
	rs := framing.NewReassembler(mtu)
	b.SetBytes(int64(len(stream)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for off := 0; off < len(stream); off += 64 {
			_, _ = rs.Feed(stream[off:min(off+64, len(stream))])
		}
	}
}
