package radio

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sync/errgroup"

	"github.com/ozontech/bulkrpc/consts"
	"github.com/ozontech/bulkrpc/link/loopback"
	"github.com/ozontech/bulkrpc/radio/emulator"
	"github.com/ozontech/bulkrpc/rpc"
)

func openEmulated(t *testing.T, opts ...emulator.Opt) (*Radio, *emulator.Emulator) {
	t.Helper()
	log := zaptest.NewLogger(t)
	l, dev := loopback.New()
	emu := emulator.New(dev, log, opts...)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- emu.Run(ctx) }()

	r, err := New(context.Background(), l, DefaultOptions(), log)
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, r.Close())
		cancel()
		assert.NoError(t, <-done)
	})
	return r, emu
}

func testCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestMethodTable(t *testing.T) {
	t.Parallel()
	a := assert.New(t)
	r, _ := openEmulated(t)

	methods := r.Methods()
	a.Contains(methods, consts.MethodsCall)
	a.Contains(methods, methodESBSendPacket)
	a.Contains(methods, methodVersion)
}

func TestRadioMode(t *testing.T) {
	t.Parallel()
	a := assert.New(t)
	r, emu := openEmulated(t)
	ctx := testCtx(t)

	modes, err := r.RadioModeList(ctx)
	a.NoError(err)
	a.Equal(emulator.DefaultModes, modes)

	a.NoError(r.RadioModeSet(ctx, "esb"))
	a.Equal("esb", emu.Mode())

	err = r.RadioModeSet(ctx, "wifi")
	a.ErrorIs(err, rpc.ErrRemote)
	var cerr *rpc.CallError
	if a.ErrorAs(err, &cerr) {
		a.Equal("unknown radio mode", cerr.Message)
	}
}

func TestScan(t *testing.T) {
	t.Parallel()
	a := assert.New(t)
	r, _ := openEmulated(t, emulator.WithAckChannel(42), emulator.WithRSSI(-57))
	ctx := testCtx(t)

	_, err := r.ESBSendPacket(ctx, 42, emulator.DefaultAddress, []byte{0xff})
	a.ErrorIs(err, rpc.ErrRemote, "esb mode is not set yet")

	a.NoError(r.RadioModeSet(ctx, "esb"))

	var found []uint8
	for ch := 0; ch <= 100; ch++ {
		ack, err := r.ESBSendPacket(ctx, uint8(ch), emulator.DefaultAddress, []byte{0xff})
		if !a.NoError(err) {
			return
		}
		if ack.Acked {
			found = append(found, uint8(ch))
			a.Equal(int8(-57), ack.RSSI)
			a.Equal([]byte{0xff}, ack.Data)
		} else {
			a.Nil(ack.Data)
		}
	}
	a.Equal([]uint8{42}, found)

	ack, err := r.ESBSendPacket(ctx, 42, [5]byte{1, 2, 3, 4, 5}, []byte{0xff})
	a.NoError(err)
	a.False(ack.Acked, "other address")
}

func TestVersionConcurrent(t *testing.T) {
	t.Parallel()
	a := assert.New(t)
	r, emu := openEmulated(t)
	ctx := testCtx(t)

	const calls = 1000
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(32)
	for i := 0; i < calls; i++ {
		g.Go(func() error {
			v, err := r.Version(ctx)
			if err != nil {
				return err
			}
			a.Equal(emulator.DefaultVersion, v)
			return nil
		})
	}
	a.NoError(g.Wait())

	// + well-known.methods
	a.Equal(uint64(calls+1), emu.Calls())
	st := r.Stats()
	a.Equal(uint64(calls+1), st.PacketsOut)
	a.Equal(uint64(calls+1), st.PacketsIn)
}

func TestUnknownMethod(t *testing.T) {
	t.Parallel()
	a := assert.New(t)
	r, _ := openEmulated(t)

	err := r.Call(testCtx(t), "led.set", true, nil)
	a.ErrorIs(err, rpc.ErrRemote)
}
