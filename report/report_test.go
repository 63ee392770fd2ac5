package report

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ozontech/bulkrpc/rpc"
)

func TestClassify(t *testing.T) {
	t.Parallel()
	a := assert.New(t)

	a.Equal(CodeOK, Classify(nil))
	a.Equal(CodeRemote, Classify(&rpc.CallError{Method: "version", Message: "busy"}))
	a.Equal(CodeTimeout, Classify(fmt.Errorf("call version: %w", context.DeadlineExceeded)))
	a.Equal(CodeClosed, Classify(fmt.Errorf("%w: %w", rpc.ErrClosed, errors.New("unplugged"))))
	a.Equal(CodeCodec, Classify(&rpc.DecodeError{Method: "version", Err: errors.New("bad")}))
	a.Equal(CodeFailed, Classify(errors.New("send: link broken")))
}
