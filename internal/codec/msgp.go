// Package codec provides the wire encoding for messages exchanged
// between nodes, grounded on internal/netw/codec/msgp.go's
// Allen1211/msgp-backed Encode/Decode wrapper.
package codec

import (
	"bytes"
	"fmt"

	"github.com/Allen1211/msgp/msgp"
)

// RPCCodec matches the shape rpcx's codec registry expects: Encode
// turns a value into wire bytes, Decode fills a target from them.
type RPCCodec struct{}

func (c *RPCCodec) Encode(i interface{}) ([]byte, error) {
	e, ok := i.(msgp.Encodable)
	if !ok {
		return nil, fmt.Errorf("codec: %T is not msgp.Encodable", i)
	}
	buf := new(bytes.Buffer)
	if err := msgp.Encode(buf, e); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *RPCCodec) Decode(data []byte, i interface{}) error {
	d, ok := i.(msgp.Decodable)
	if !ok {
		return fmt.Errorf("codec: %T is not msgp.Decodable", i)
	}
	return msgp.Decode(bytes.NewReader(data), d)
}
