// Package pb holds the netxchat wire messages.
//
// A Frame is an envelope where exactly one field is set. Field tags are
// `json` only; the CBOR codec reads them as a fallback, so both codecs agree
// on field names.
package pb

// Frame wraps every message exchanged between client and server.
type Frame struct {
	// Client -> server
	LoginRequest    *LoginRequest    `json:"login_request,omitempty"`
	UserListRequest *UserListRequest `json:"user_list_request,omitempty"`
	TalkRequest     *TalkRequest     `json:"talk_request,omitempty"`
	DirectRequest   *DirectRequest   `json:"direct_request,omitempty"`
	PingRequest     *PingRequest     `json:"ping_request,omitempty"`
	PongReply       *PongReply       `json:"pong_reply,omitempty"`
	Heartbeat       *Heartbeat       `json:"heartbeat,omitempty"`

	// Server -> client
	LoginResponse    *LoginResponse    `json:"login_response,omitempty"`
	UserListResponse *UserListResponse `json:"user_list_response,omitempty"`
	UserJoinedEvent  *UserJoinedEvent  `json:"user_joined_event,omitempty"`
	UserLeftEvent    *UserLeftEvent    `json:"user_left_event,omitempty"`
	ChatEvent        *ChatEvent        `json:"chat_event,omitempty"`
	PingEvent        *PingEvent        `json:"ping_event,omitempty"`
	Pong             *Pong             `json:"pong,omitempty"`
	ErrorResponse    *ErrorResponse    `json:"error_response,omitempty"`
}

// ----- Login -----

type LoginRequest struct {
	Nickname Name `json:"nickname"`
}

// LoginResponse carries the accepted nickname in Message on success and the
// rejection reason otherwise.
type LoginResponse struct {
	Success   bool  `json:"success"`
	Message   Name  `json:"message"`
	SessionID int64 `json:"session_id,omitempty"`
}

// ----- Directory -----

type UserInfo struct {
	Nickname  Name  `json:"nickname"`
	SessionID int64 `json:"session_id"`
}

type UserListRequest struct{}

type UserListResponse struct {
	Users []UserInfo `json:"users"`
}

type UserJoinedEvent struct {
	User UserInfo `json:"user"`
}

type UserLeftEvent struct {
	SessionID int64 `json:"session_id"`
	Nickname  Name  `json:"nickname"`
}

// ----- Chat -----

type TalkRequest struct {
	Text string `json:"text"`
}

type DirectRequest struct {
	Target Name   `json:"target"`
	Text   string `json:"text"`
}

type ChatEvent struct {
	From      Name   `json:"from"`
	SenderID  int64  `json:"sender_id"`
	Text      string `json:"text"`
	Direct    bool   `json:"direct"`
	Timestamp int64  `json:"timestamp"` // unix millis, server clock
}

// ----- Latency -----

// PingRequest asks the server to bounce a ping off Target. Time is the
// caller's issue time and is echoed back untouched.
type PingRequest struct {
	Target Name  `json:"target"`
	Time   int64 `json:"time"`
}

// PingEvent is delivered to the peer being pinged.
type PingEvent struct {
	From Name  `json:"from"`
	Time int64 `json:"time"`
}

// PongReply is the pinged peer's answer, addressed back to From.
type PongReply struct {
	To   Name  `json:"to"`
	Time int64 `json:"time"`
}

// Pong completes a ping for the caller that issued it. Target is the peer that
// answered.
type Pong struct {
	Target Name  `json:"target"`
	Time   int64 `json:"time"`
}

type Heartbeat struct{}

// ----- Generic -----

const (
	ErrCodeBadRequest    int32 = 1
	ErrCodeNotLoggedIn   int32 = 2
	ErrCodeUnknownTarget int32 = 3
	ErrCodeInternal      int32 = 4
)

type ErrorResponse struct {
	Code    int32  `json:"code"`
	Message string `json:"message"`
	Target  Name   `json:"target,omitempty"`
	Ping    bool   `json:"ping,omitempty"` // set when the failed request was a ping
}
