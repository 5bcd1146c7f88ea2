// Package protocol defines the netxchat frame codecs and stream framing.
//
// A frame on a byte stream is [4-byte big-endian length][payload]; message
// oriented transports (WebSocket) carry one payload per message. The payload
// is a pb.Frame encoded with either JSON or CBOR.
package protocol

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"

	"github.com/fxamacker/cbor/v2"

	"github.com/NicolasHaas/netxchat/pkg/errcode"
	pb "github.com/NicolasHaas/netxchat/pkg/protocol/pb"
)

const (
	// MaxFrameSize is the default upper bound for one encoded frame (64KB).
	MaxFrameSize = 65536

	// LengthPrefixSize is the size of the stream length prefix.
	LengthPrefixSize = 4
)

var (
	ErrFrameTooLarge = fmt.Errorf("%w: frame too large", errcode.ErrProtocol)
	ErrUnknownFrame  = fmt.Errorf("%w: unrecognized frame", errcode.ErrProtocol)
	ErrAmbiguous     = fmt.Errorf("%w: frame sets more than one message", errcode.ErrProtocol)
)

// Codec converts frames to and from payload bytes.
type Codec interface {
	Name() string
	Marshal(f *pb.Frame) ([]byte, error)
	Unmarshal(data []byte) (*pb.Frame, error)
}

// CodecByName returns the codec registered under name.
func CodecByName(name string) (Codec, error) {
	switch name {
	case "json", "":
		return JSON, nil
	case "cbor":
		return CBOR, nil
	default:
		return nil, fmt.Errorf("protocol: unknown codec %q", name)
	}
}

// JSON is the default codec.
var JSON Codec = jsonCodec{}

// CBOR encodes frames with RFC 8949 core deterministic encoding.
var CBOR Codec = newCBORCodec()

type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Marshal(f *pb.Frame) ([]byte, error) {
	if err := Validate(f); err != nil {
		return nil, err
	}
	data, err := json.Marshal(f)
	if err != nil {
		return nil, errcode.Protocol(fmt.Errorf("protocol: marshal: %w", err))
	}
	return data, nil
}

func (jsonCodec) Unmarshal(data []byte) (*pb.Frame, error) {
	f := &pb.Frame{}
	if err := json.Unmarshal(data, f); err != nil {
		return nil, errcode.Protocol(fmt.Errorf("protocol: unmarshal: %w", err))
	}
	if err := Validate(f); err != nil {
		return nil, err
	}
	return f, nil
}

type cborCodec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

func newCBORCodec() cborCodec {
	enc, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("protocol: CBOR encoder initialization failed: " + err.Error())
	}
	dec, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("protocol: CBOR decoder initialization failed: " + err.Error())
	}
	return cborCodec{enc: enc, dec: dec}
}

func (cborCodec) Name() string { return "cbor" }

func (c cborCodec) Marshal(f *pb.Frame) ([]byte, error) {
	if err := Validate(f); err != nil {
		return nil, err
	}
	data, err := c.enc.Marshal(f)
	if err != nil {
		return nil, errcode.Protocol(fmt.Errorf("protocol: marshal: %w", err))
	}
	return data, nil
}

func (c cborCodec) Unmarshal(data []byte) (*pb.Frame, error) {
	f := &pb.Frame{}
	if err := c.dec.Unmarshal(data, f); err != nil {
		return nil, errcode.Protocol(fmt.Errorf("protocol: unmarshal: %w", err))
	}
	if err := Validate(f); err != nil {
		return nil, err
	}
	return f, nil
}

// Validate checks that exactly one message is set on f.
func Validate(f *pb.Frame) error {
	if f == nil {
		return ErrUnknownFrame
	}
	n := 0
	v := reflect.ValueOf(f).Elem()
	for i := 0; i < v.NumField(); i++ {
		if !v.Field(i).IsNil() {
			n++
		}
	}
	switch n {
	case 0:
		return ErrUnknownFrame
	case 1:
		return nil
	default:
		return ErrAmbiguous
	}
}

// Kind names the message set on f, for logging.
func Kind(f *pb.Frame) string {
	if f == nil {
		return "nil"
	}
	v := reflect.ValueOf(f).Elem()
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		if !v.Field(i).IsNil() {
			return t.Field(i).Name
		}
	}
	return "empty"
}

// WriteFrame writes a length-prefixed payload to w.
// Format: [4-byte big-endian length][payload]
func WriteFrame(w io.Writer, payload []byte, limit int) error {
	if limit <= 0 {
		limit = MaxFrameSize
	}
	if len(payload) > limit {
		return fmt.Errorf("protocol: write: %w: %d bytes", ErrFrameTooLarge, len(payload))
	}

	buf := make([]byte, LengthPrefixSize+len(payload))
	binary.BigEndian.PutUint32(buf[:LengthPrefixSize], uint32(len(payload))) //nolint:gosec // length already bounds-checked above
	copy(buf[LengthPrefixSize:], payload)
	if _, err := w.Write(buf); err != nil {
		return errcode.Protocol(fmt.Errorf("protocol: write frame: %w", err))
	}
	return nil
}

// ReadFrame reads one length-prefixed payload from r. A clean EOF before the
// length prefix is returned as io.EOF so callers can tell it apart from a
// truncated frame.
func ReadFrame(r io.Reader, limit int) ([]byte, error) {
	if limit <= 0 {
		limit = MaxFrameSize
	}
	lenBuf := make([]byte, LengthPrefixSize)
	if _, err := io.ReadFull(r, lenBuf); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errcode.Protocol(io.EOF)
		}
		return nil, errcode.Protocol(fmt.Errorf("protocol: read length: %w", err))
	}
	length := binary.BigEndian.Uint32(lenBuf)
	if length > uint32(limit) { //nolint:gosec // limit is a positive frame bound
		return nil, fmt.Errorf("protocol: read: %w: %d bytes", ErrFrameTooLarge, length)
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, errcode.Protocol(fmt.Errorf("protocol: read payload: %w", err))
	}
	return data, nil
}
