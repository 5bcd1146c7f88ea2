package pb

import (
	"encoding/json"

	"github.com/fxamacker/cbor/v2"
)

// Name is a nickname on the wire. Nicknames are opaque byte sequences, so a
// Name is carried as bytes rather than text: base64 in JSON, a byte string
// in CBOR. Any byte sequence survives either codec unchanged.
type Name string

func (n Name) MarshalJSON() ([]byte, error) {
	return json.Marshal([]byte(n))
}

func (n *Name) UnmarshalJSON(data []byte) error {
	var b []byte
	if err := json.Unmarshal(data, &b); err != nil {
		return err
	}
	*n = Name(b)
	return nil
}

func (n Name) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal([]byte(n))
}

func (n *Name) UnmarshalCBOR(data []byte) error {
	var b []byte
	if err := cbor.Unmarshal(data, &b); err != nil {
		return err
	}
	*n = Name(b)
	return nil
}
