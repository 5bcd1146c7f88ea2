// Package msgclient is the flat, code-returning boundary over a client
// Session. It is the surface foreign callers bind to: every entry point
// takes an opaque *Client, treats nil arguments as absent, and reports
// failures only through errcode.Code values. A panic anywhere below an
// entry point is reported as errcode.InternalFault.
package msgclient

import (
	"context"
	"time"

	"github.com/NicolasHaas/netxchat/pkg/client"
	"github.com/NicolasHaas/netxchat/pkg/errcode"
	"github.com/NicolasHaas/netxchat/pkg/model"
	"github.com/NicolasHaas/netxchat/pkg/version"
)

const probeTimeout = 5 * time.Second

// Client is an opaque session handle created by NewByConfig and released by
// Destroy.
type Client struct {
	s *client.Session
}

// User is one directory entry as seen across the boundary.
type User struct {
	Nickname  []byte
	SessionID int64
}

// LoginCallback receives the login outcome (0 rejected, 1 accepted,
// 2 cancelled) and the server message. Its return value is ignored.
type LoginCallback func(outcome uint8, message []byte) bool

// UsersCallback receives a directory snapshot. The slice and every nickname
// in it are freshly allocated for this call and owned by the callee. A nil
// slice means the request was cancelled; an empty directory is a non-nil
// empty slice.
type UsersCallback func(users []User)

// PingCallback receives the round-trip time in milliseconds, or -1 when the
// ping was cancelled or could not be routed.
type PingCallback func(target []byte, elapsedMillis int64)

// APIGuard returns the stable identifier of this boundary revision.
func APIGuard() uint64 {
	return version.APIGuard()
}

// NewByConfig parses config and stores a new Configured client in *out.
func NewByConfig(out **Client, config []byte) errcode.Code {
	return NewByConfigWith(out, config, client.Dependencies{})
}

// NewByConfigWith is NewByConfig with explicit session dependencies.
func NewByConfigWith(out **Client, config []byte, deps client.Dependencies) errcode.Code {
	return errcode.Guard("new_by_config", func() errcode.Code {
		if out == nil || config == nil {
			return errcode.NullArgument
		}
		cfg, err := client.ParseConfig(config)
		if err != nil {
			return errcode.Of(err)
		}
		*out = &Client{s: client.New(cfg, deps)}
		return errcode.OK
	})
}

// Init connects the client and starts its dispatch loop.
func Init(c *Client) errcode.Code {
	return errcode.Guard("init", func() errcode.Code {
		if c == nil {
			return errcode.NullArgument
		}
		return errcode.Of(c.s.Init(context.Background()))
	})
}

// ConnectTest checks that the connection is alive.
func ConnectTest(c *Client) errcode.Code {
	return errcode.Guard("connect_test", func() errcode.Code {
		if c == nil {
			return errcode.NullArgument
		}
		ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
		defer cancel()
		return errcode.Of(c.s.TestConnection(ctx))
	})
}

// Login sends a login request. It returns true when the request was accepted
// for processing, in which case cb will be invoked exactly once.
func Login(c *Client, nickname []byte, cb LoginCallback) bool {
	code := errcode.Guard("login", func() errcode.Code {
		if c == nil || nickname == nil || cb == nil {
			return errcode.NullArgument
		}
		return errcode.Of(c.s.Login(string(nickname), func(o client.LoginOutcome, msg string) {
			cb(uint8(o), []byte(msg))
		}))
	})
	return code == errcode.OK
}

// GetUsers requests the user directory.
func GetUsers(c *Client, cb UsersCallback) errcode.Code {
	return errcode.Guard("get_users", func() errcode.Code {
		if c == nil || cb == nil {
			return errcode.NullArgument
		}
		return errcode.Of(c.s.FetchUsers(func(users []model.User, err error) {
			if err != nil {
				cb(nil)
				return
			}
			cb(exportUsers(users))
		}))
	})
}

// Talk broadcasts msg.
func Talk(c *Client, msg []byte) errcode.Code {
	return errcode.Guard("talk", func() errcode.Code {
		if c == nil || msg == nil {
			return errcode.NullArgument
		}
		return errcode.Of(c.s.Talk(string(msg)))
	})
}

// To sends msg to target.
func To(c *Client, target, msg []byte) errcode.Code {
	return errcode.Guard("to", func() errcode.Code {
		if c == nil || target == nil || msg == nil {
			return errcode.NullArgument
		}
		return errcode.Of(c.s.SendTo(string(target), string(msg)))
	})
}

// Ping measures the round trip to target. issueTime is echoed by the peer
// and identifies the request.
func Ping(c *Client, target []byte, issueTime int64, cb PingCallback) errcode.Code {
	return errcode.Guard("ping", func() errcode.Code {
		if c == nil || target == nil || cb == nil {
			return errcode.NullArgument
		}
		return errcode.Of(c.s.Ping(string(target), issueTime, func(t string, elapsed time.Duration, err error) {
			ms := int64(-1)
			if err == nil {
				ms = elapsed.Milliseconds()
			}
			cb([]byte(t), ms)
		}))
	})
}

// Destroy releases *c and sets it to nil. Destroying an already released
// handle is OK.
func Destroy(c **Client) errcode.Code {
	return errcode.Guard("destroy", func() errcode.Code {
		if c == nil {
			return errcode.NullArgument
		}
		if *c == nil {
			return errcode.OK
		}
		err := (*c).s.Destroy()
		*c = nil
		return errcode.Of(err)
	})
}

func exportUsers(users []model.User) []User {
	out := make([]User, len(users))
	for i, u := range users {
		out[i] = User{Nickname: []byte(u.Nickname), SessionID: u.SessionID}
	}
	return out
}
