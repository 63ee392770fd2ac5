package main

import (
	"context"
	"fmt"
	"io"
	"sort"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

type MethodsCommand struct{}

func (c *MethodsCommand) Run(ctx context.Context, g *Globals, log *zap.Logger, out io.Writer) (err error) {
	r, release, err := g.open(ctx, log)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, release()) }()

	methods := r.Methods()
	names := make([]string, 0, len(methods))
	for name := range methods {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, err := fmt.Fprintf(out, "%3d %s\n", methods[name], name); err != nil {
			return err
		}
	}
	return nil
}
