package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/NicolasHaas/netxchat/pkg/errcode"
	pb "github.com/NicolasHaas/netxchat/pkg/protocol/pb"
)

var codecs = []Codec{JSON, CBOR}

func TestUserListRoundTrip(t *testing.T) {
	sequential := func(n int) []pb.UserInfo {
		users := make([]pb.UserInfo, n)
		for i := range users {
			users[i] = pb.UserInfo{
				Nickname:  pb.Name(fmt.Sprintf("user-%d", i)),
				SessionID: math.MaxInt64 - int64(i)*977,
			}
		}
		if n > 1 {
			users[1].SessionID = math.MinInt64
		}
		return users
	}
	tests := []struct {
		name  string
		users []pb.UserInfo
	}{
		{"0", sequential(0)},
		{"1", sequential(1)},
		{"7", sequential(7)},
		{"1000", sequential(1000)},
		{"invalid utf-8", []pb.UserInfo{
			{Nickname: "\xff\xfe", SessionID: math.MinInt64},
			{Nickname: "\xff\xfeal", SessionID: 1},
		}},
	}
	for _, codec := range codecs {
		for _, tt := range tests {
			t.Run(codec.Name()+"/"+tt.name, func(t *testing.T) {
				in := &pb.Frame{UserListResponse: &pb.UserListResponse{Users: tt.users}}

				data, err := codec.Marshal(in)
				if err != nil {
					t.Fatalf("Marshal: %v", err)
				}
				out, err := codec.Unmarshal(data)
				if err != nil {
					t.Fatalf("Unmarshal: %v", err)
				}
				if out.UserListResponse == nil {
					t.Fatalf("Unmarshal: lost user_list_response")
				}
				if diff := cmp.Diff(tt.users, out.UserListResponse.Users, cmpEmptyAsNil()); diff != "" {
					t.Errorf("user list mismatch (-want +got):\n%s", diff)
				}
			})
		}
	}
}

func cmpEmptyAsNil() cmp.Option {
	return cmp.FilterValues(func(x, y []pb.UserInfo) bool {
		return len(x) == 0 && len(y) == 0
	}, cmp.Comparer(func(_, _ []pb.UserInfo) bool { return true }))
}

func TestFrameRoundTrip(t *testing.T) {
	frames := []*pb.Frame{
		{LoginRequest: &pb.LoginRequest{Nickname: "alice"}},
		{LoginResponse: &pb.LoginResponse{Success: true, Message: "alice", SessionID: -42}},
		{UserListRequest: &pb.UserListRequest{}},
		{TalkRequest: &pb.TalkRequest{Text: "hello all"}},
		{DirectRequest: &pb.DirectRequest{Target: "bob", Text: "hi bob"}},
		{PingRequest: &pb.PingRequest{Target: "bob", Time: 1000}},
		{PingEvent: &pb.PingEvent{From: "alice", Time: 1000}},
		{PongReply: &pb.PongReply{To: "alice", Time: 1000}},
		{Pong: &pb.Pong{Target: "bob", Time: 1000}},
		{UserJoinedEvent: &pb.UserJoinedEvent{User: pb.UserInfo{Nickname: "carol", SessionID: 3}}},
		{UserLeftEvent: &pb.UserLeftEvent{SessionID: 3, Nickname: "carol"}},
		{ChatEvent: &pb.ChatEvent{From: "bob", SenderID: 2, Text: "yo", Direct: true, Timestamp: 99}},
		{Heartbeat: &pb.Heartbeat{}},
		{ErrorResponse: &pb.ErrorResponse{Code: pb.ErrCodeUnknownTarget, Message: "no such user", Target: "zed", Ping: true}},
	}
	for _, codec := range codecs {
		for _, in := range frames {
			t.Run(codec.Name()+"/"+Kind(in), func(t *testing.T) {
				data, err := codec.Marshal(in)
				if err != nil {
					t.Fatalf("Marshal: %v", err)
				}
				out, err := codec.Unmarshal(data)
				if err != nil {
					t.Fatalf("Unmarshal: %v", err)
				}
				if diff := cmp.Diff(in, out); diff != "" {
					t.Errorf("frame mismatch (-want +got):\n%s", diff)
				}
			})
		}
	}
}

func TestUnmarshalRejectsUnknownShapes(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  error
	}{
		{"empty object", `{}`, ErrUnknownFrame},
		{"unknown field", `{"teleport":{"to":"mars"}}`, ErrUnknownFrame},
		{"two messages", `{"pong":{"target":"YQ==","time":1},"heartbeat":{}}`, ErrAmbiguous},
		{"not json", `\x00\x01garbage`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := JSON.Unmarshal([]byte(tt.input))
			if err == nil {
				t.Fatalf("Unmarshal(%q) succeeded", tt.input)
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("Unmarshal(%q) = %v, want %v", tt.input, err, tt.want)
			}
			if errcode.Of(err) != errcode.ProtocolOrTransportError {
				t.Errorf("Unmarshal(%q) classified as %s", tt.input, errcode.Of(err))
			}
		})
	}

	if _, err := CBOR.Unmarshal([]byte{0xff, 0x00}); errcode.Of(err) != errcode.ProtocolOrTransportError {
		t.Errorf("CBOR garbage classified as %s", errcode.Of(err))
	}
}

func TestMarshalRejectsEmptyFrame(t *testing.T) {
	for _, codec := range codecs {
		if _, err := codec.Marshal(&pb.Frame{}); !errors.Is(err, ErrUnknownFrame) {
			t.Errorf("%s.Marshal(empty) = %v, want ErrUnknownFrame", codec.Name(), err)
		}
	}
}

func TestStreamFraming(t *testing.T) {
	var buf bytes.Buffer
	payloads := [][]byte{[]byte("first"), {}, []byte(strings.Repeat("z", 1024))}
	for _, p := range payloads {
		if err := WriteFrame(&buf, p, 0); err != nil {
			t.Fatalf("WriteFrame: %v", err)
		}
	}
	for i, want := range payloads {
		got, err := ReadFrame(&buf, 0)
		if err != nil {
			t.Fatalf("ReadFrame #%d: %v", i, err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("ReadFrame #%d = %q, want %q", i, got, want)
		}
	}
	if _, err := ReadFrame(&buf, 0); !errors.Is(err, io.EOF) {
		t.Errorf("ReadFrame at end = %v, want io.EOF", err)
	}
}

func TestFrameLimits(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, make([]byte, 11), 10); !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("WriteFrame over limit = %v, want ErrFrameTooLarge", err)
	}
	if err := WriteFrame(&buf, make([]byte, 11), 0); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	if _, err := ReadFrame(&buf, 10); !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("ReadFrame over limit = %v, want ErrFrameTooLarge", err)
	}

	truncated := bytes.NewReader([]byte{0, 0, 0, 5, 'a'})
	if _, err := ReadFrame(truncated, 0); errors.Is(err, io.EOF) || errcode.Of(err) != errcode.ProtocolOrTransportError {
		t.Fatalf("ReadFrame truncated = %v", err)
	}
}

func TestCodecByName(t *testing.T) {
	for _, name := range []string{"", "json", "cbor"} {
		if _, err := CodecByName(name); err != nil {
			t.Errorf("CodecByName(%q): %v", name, err)
		}
	}
	if _, err := CodecByName("xml"); err == nil {
		t.Errorf("CodecByName(xml) succeeded")
	}
}
