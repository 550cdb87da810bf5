package codec

import (
	"bytes"
	"encoding/gob"
)

// GobOperationCodec is the stdlib fallback OperationCodec: user
// operation types are arbitrary and not known at msgp-generation time,
// so there is no third-party library in the corpus that can serialize
// an unregistered interface{} without the caller first describing its
// concrete type (see DESIGN.md's stdlib justification for this file).
// Hosts whose operation type is itself msgp-generated should supply
// their own OperationCodec instead.
type GobOperationCodec struct{}

func (GobOperationCodec) Encode(operation interface{}) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := gob.NewEncoder(buf).Encode(&operation); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (GobOperationCodec) Decode(data []byte) (interface{}, error) {
	var operation interface{}
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&operation); err != nil {
		return nil, err
	}
	return operation, nil
}
