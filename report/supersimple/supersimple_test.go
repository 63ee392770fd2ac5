package supersimple

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSuperSimple(t *testing.T) {
	a := assert.New(t)

	start := time.Now()
	now = func() time.Time { return start }
	defer func() { now = time.Now }()

	b := new(bytes.Buffer)
	r := New(b, time.Second)

	s := r.Acquire("version")
	s.End()
	s = r.Acquire("version")
	s.Error(errors.New("remote error"))
	s.End()

	slow := r.Acquire("version")
	now = func() time.Time { return start.Add(2 * time.Second) }
	slow.End()

	r.report(start.Add(2 * time.Second))
	a.Equal("total=3 ok=1 nook=2 req=3 req/s=1.5 resp/s=1.5\n", b.String())

	b.Reset()
	a.NoError(r.Close())
	a.NoError(r.Run())
	a.Equal("total\ntotal=3 ok=1 nook=2 req=3 req/s=1.5 resp/s=1.5\n", b.String())
}
