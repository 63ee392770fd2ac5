package rpc

import (
	"github.com/fxamacker/cbor/v2"
)

const kindRequest = 0

const (
	cborNull      = 0xf6
	cborUndefined = 0xf7
	majorText     = 3
)

// request [0, seq, method, params]. Method is either the numeric id from
// the method table or the method name.
type request struct {
	_      struct{} `cbor:",toarray"`
	Kind   uint8
	Seq    uint64
	Method any
	Params any
}

// response [kind, seq, error, result].
type response struct {
	_      struct{} `cbor:",toarray"`
	Kind   uint64
	Seq    uint64
	Error  cbor.RawMessage
	Result cbor.RawMessage
}

func isNull(raw cbor.RawMessage) bool {
	return len(raw) == 0 || len(raw) == 1 && (raw[0] == cborNull || raw[0] == cborUndefined)
}

func isText(raw cbor.RawMessage) bool {
	return len(raw) > 0 && raw[0]>>5 == majorText
}

// decodeResponse decodes p into resp. When the envelope does not match but
// its second element is still a sequence number, that number is returned
// along with the error. Zero means no readable sequence number: calls are
// numbered from 1.
func decodeResponse(p []byte, resp *response) (uint64, error) {
	err := cbor.Unmarshal(p, resp)
	if err == nil {
		return resp.Seq, nil
	}

	var elems []cbor.RawMessage
	if cbor.Unmarshal(p, &elems) != nil || len(elems) < 2 {
		return 0, err
	}
	var seq uint64
	if cbor.Unmarshal(elems[1], &seq) != nil {
		return 0, err
	}
	return seq, err
}
