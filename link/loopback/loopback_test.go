package loopback

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ozontech/bulkrpc/consts"
	"github.com/ozontech/bulkrpc/link"
)

func timeoutCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	t.Cleanup(cancel)
	return ctx
}

func TestBulkInPackets(t *testing.T) {
	t.Parallel()
	a := assert.New(t)
	l, d := New()

	payload := bytes.Repeat([]byte{0x42}, 150)
	a.NoError(d.WriteIn(payload))
	a.Equal(3, d.PendingIn()) // 64 + 64 + 22

	buf := make([]byte, 100)
	n, err := l.BulkIn(timeoutCtx(t), InEndpoint, buf)
	a.NoError(err)
	a.Equal(64, n, "second packet does not fit into the rest of the buffer")

	buf = make([]byte, consts.ProtocolMTU)
	n, err = l.BulkIn(timeoutCtx(t), InEndpoint, buf)
	a.NoError(err)
	a.Equal(86, n)

	_, err = l.BulkIn(timeoutCtx(t), InEndpoint, buf)
	a.True(link.IsTimeout(err))
}

func TestZeroLengthPacket(t *testing.T) {
	t.Parallel()
	a := assert.New(t)
	l, d := New()

	a.NoError(d.WriteIn(make([]byte, 64)))
	a.NoError(d.WriteIn([]byte{1}))

	buf := make([]byte, consts.ProtocolMTU)
	n, err := l.BulkIn(timeoutCtx(t), InEndpoint, buf)
	a.NoError(err)
	a.Equal(64, n)

	n, err = l.BulkIn(timeoutCtx(t), InEndpoint, buf)
	a.NoError(err)
	a.Equal(1, n)
}

func TestBulkOut(t *testing.T) {
	t.Parallel()
	a := assert.New(t)
	l, d := New()

	_, err := l.BulkOut(context.Background(), OutEndpoint, nil)
	a.NoError(err)
	n, err := l.BulkOut(context.Background(), OutEndpoint, []byte("abc"))
	a.NoError(err)
	a.Equal(3, n)

	tr, err := d.ReadOut(timeoutCtx(t))
	a.NoError(err)
	a.Empty(tr)
	tr, err = d.ReadOut(timeoutCtx(t))
	a.NoError(err)
	a.Equal([]byte("abc"), tr)

	_, err = l.BulkOut(context.Background(), 0x02, []byte("abc"))
	a.ErrorIs(err, ErrStall)
}

func TestControlIn(t *testing.T) {
	t.Parallel()
	a := assert.New(t)
	l, d := New(WithVersion(3))

	setup := link.Setup{RequestType: consts.VersionRequestType, Request: consts.VersionRequest}
	b := make([]byte, 1)
	n, err := l.ControlIn(context.Background(), setup, b)
	a.NoError(err)
	a.Equal(1, n)
	a.Equal(uint8(3), b[0])

	d.SetVersion(0)
	_, err = l.ControlIn(context.Background(), setup, b)
	a.NoError(err)
	a.Equal(uint8(0), b[0])

	_, err = l.ControlIn(context.Background(), link.Setup{RequestType: 0x80, Request: 6}, b)
	a.ErrorIs(err, ErrStall)
}

func TestFailAndClose(t *testing.T) {
	t.Parallel()
	a := assert.New(t)
	l, d := New()

	errCh := make(chan error)
	go func() {
		_, err := l.BulkIn(context.Background(), InEndpoint, make([]byte, 64))
		errCh <- err
	}()

	brand := errors.New("device gone")
	d.Fail(brand)
	a.ErrorIs(<-errCh, brand)
	_, err := l.BulkOut(context.Background(), OutEndpoint, []byte{1})
	a.ErrorIs(err, brand)

	a.NoError(l.Close())
	_, err = d.ReadOut(context.Background())
	a.ErrorIs(err, link.ErrClosed)
}
