package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/ozontech/bulkrpc/formats/jsonvalue"
)

type CallCommand struct {
	Method  string        `arg:"" required:"" help:"Method name."`
	Params  string        `arg:"" optional:"" help:"Parameters as JSON. Byte strings are written as {\"$hex\": \"...\"}."`
	Timeout time.Duration `default:"1s" help:"Call timeout."`

	params any
}

func (c *CallCommand) Validate() error {
	if c.Params == "" {
		return nil
	}
	var err error
	c.params, err = jsonvalue.Decode([]byte(c.Params))
	if err != nil {
		return fmt.Errorf("params: %w", err)
	}
	return nil
}

func (c *CallCommand) Run(ctx context.Context, g *Globals, log *zap.Logger, out io.Writer) (err error) {
	r, release, err := g.open(ctx, log)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, release()) }()

	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	var result any
	if err := r.Call(ctx, c.Method, c.params, &result); err != nil {
		return err
	}
	b, err := jsonvalue.Encode(result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	_, err = fmt.Fprintf(out, "%s\n", b)
	return err
}
