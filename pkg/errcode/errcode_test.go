package errcode

import (
	"errors"
	"fmt"
	"io"
	"testing"
)

func TestOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{"nil", nil, OK},
		{"null argument", fmt.Errorf("client: login: %w", ErrNullArgument), NullArgument},
		{"not connected", fmt.Errorf("client: talk: %w", ErrNotConnected), NotConnected},
		{"protocol", Protocol(io.ErrUnexpectedEOF), ProtocolOrTransportError},
		{"internal", ErrInternal, InternalFault},
		{"panic", &PanicError{Value: "boom"}, InternalFault},
		{"unclassified", errors.New("surprise"), InternalFault},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Of(tt.err); got != tt.want {
				t.Errorf("Of(%v) = %s, want %s", tt.err, got, tt.want)
			}
		})
	}
}

func TestProtocolKeepsCause(t *testing.T) {
	err := Protocol(io.EOF)
	if !errors.Is(err, io.EOF) {
		t.Fatalf("Protocol(io.EOF) lost the cause: %v", err)
	}
	if Protocol(err) != err {
		t.Fatalf("Protocol should not double-wrap")
	}
	if Protocol(nil) != nil {
		t.Fatalf("Protocol(nil) should be nil")
	}
}

func TestGuard(t *testing.T) {
	if got := Guard("ok", func() Code { return NotConnected }); got != NotConnected {
		t.Fatalf("Guard passthrough = %s, want %s", got, NotConnected)
	}
	got := Guard("panics", func() Code {
		var m map[string]int
		m["x"] = 1
		return OK
	})
	if got != InternalFault {
		t.Fatalf("Guard on panic = %s, want %s", got, InternalFault)
	}
}

func TestCodeValues(t *testing.T) {
	// The numeric values are an external contract.
	want := map[Code]uint8{OK: 0, NullArgument: 1, InternalFault: 2, ProtocolOrTransportError: 3, NotConnected: 4}
	for c, v := range want {
		if uint8(c) != v {
			t.Errorf("%s = %d, want %d", c, uint8(c), v)
		}
		if !c.Valid() {
			t.Errorf("%s should be valid", c)
		}
	}
	if Code(5).Valid() {
		t.Errorf("Code(5) should be invalid")
	}
}
