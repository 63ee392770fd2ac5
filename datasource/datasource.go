// Package datasource supplies the calls made by the bench command.
//
// A calls file holds one JSON object per line:
//
//	{"method": "esb.sendPacket", "params": [80, {"$hex": "e7e7e7ad42"}, {"$hex": "ff"}]}
//
// Empty lines and lines starting with # are skipped.
package datasource

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ozontech/bulkrpc/formats/jsonvalue"
)

var ErrEmpty = errors.New("calls file is empty")

type Call struct {
	Method string
	Params any
}

// DataSource is safe for concurrent use.
type DataSource interface {
	Fetch() (Call, error)
}

// Static repeats the same call.
type Static Call

func (s Static) Fetch() (Call, error) { return Call(s), nil }

func ParseCall(line []byte) (Call, error) {
	v, err := jsonvalue.Decode(line)
	if err != nil {
		return Call{}, err
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return Call{}, errors.New("call must be a json object")
	}
	for k := range obj {
		if k != "method" && k != "params" {
			return Call{}, fmt.Errorf("unknown field %q", k)
		}
	}
	method, _ := obj["method"].(string)
	if method == "" {
		return Call{}, errors.New(`"method" is required`)
	}
	return Call{Method: method, Params: obj["params"]}, nil
}

func skip(line []byte) bool {
	line = bytes.TrimSpace(line)
	return len(line) == 0 || line[0] == '#'
}
