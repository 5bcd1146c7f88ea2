package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/NicolasHaas/netxchat/pkg/model"
	"github.com/NicolasHaas/netxchat/pkg/protocol"
	pb "github.com/NicolasHaas/netxchat/pkg/protocol/pb"
	"github.com/NicolasHaas/netxchat/pkg/transport"
)

// run drains ch until it fails, routing each decoded frame. It is the only
// goroutine that reads from ch and the only one that runs completion
// handles for server replies.
func (s *Session) run(ch transport.Channel) {
	defer s.closeDone.Do(func() { close(s.done) })

	for {
		data, err := ch.ReadFrame()
		if errors.Is(err, transport.ErrDropFrame) {
			s.stats.FramesDropped.Add(1)
			s.log.Warn("dropping non-frame message", "err", err)
			continue
		}
		if err != nil {
			s.connectionLost(err)
			return
		}
		s.stats.FramesIn.Add(1)

		f, err := s.codec.Unmarshal(data)
		if err != nil {
			s.stats.FramesDropped.Add(1)
			s.log.Warn("dropping malformed frame", "bytes", len(data), "err", err)
			continue
		}
		if s.State() == StateClosed {
			return
		}
		s.handleFrame(ch, f)
	}
}

// connectionLost moves the session to StateClosed after a read failure and
// cancels everything pending. A Destroy already in progress owns cleanup.
func (s *Session) connectionLost(err error) {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = StateClosed
	ch := s.ch
	s.mu.Unlock()

	if transport.IsExpectedClose(err) {
		s.log.Info("connection closed by server")
	} else {
		s.log.Info("connection lost", "err", err)
	}
	_ = ch.Close()
	s.cancelPending(fmt.Errorf("%w: %w", ErrConnectionLost, err))
	s.dir.Reset()
}

func (s *Session) handleFrame(ch transport.Channel, f *pb.Frame) {
	switch {
	case f.LoginResponse != nil:
		s.handleLoginResponse(f.LoginResponse)
	case f.UserListResponse != nil:
		s.handleUserList(f.UserListResponse)
	case f.UserJoinedEvent != nil:
		u := f.UserJoinedEvent.User
		s.dir.Add(model.User{Nickname: string(u.Nickname), SessionID: u.SessionID})
		s.log.Debug("user joined", "nickname", u.Nickname, "session", u.SessionID)
	case f.UserLeftEvent != nil:
		s.dir.Remove(f.UserLeftEvent.SessionID)
		s.log.Debug("user left", "nickname", f.UserLeftEvent.Nickname, "session", f.UserLeftEvent.SessionID)
	case f.ChatEvent != nil:
		s.handleChat(f.ChatEvent)
	case f.PingEvent != nil:
		s.answerPing(ch, f.PingEvent)
	case f.Pong != nil:
		s.handlePong(f.Pong)
	case f.ErrorResponse != nil:
		s.handleError(f.ErrorResponse)
	case f.Heartbeat != nil:
		s.handleHeartbeat()
	default:
		s.stats.FramesDropped.Add(1)
		s.log.Warn("dropping unexpected frame", "kind", protocol.Kind(f))
	}
}

// handleHeartbeat releases the oldest TestConnection waiting for an echo.
func (s *Session) handleHeartbeat() {
	s.mu.Lock()
	if len(s.heartbeats) == 0 {
		s.mu.Unlock()
		s.log.Debug("unsolicited heartbeat")
		return
	}
	ack := s.heartbeats[0]
	s.heartbeats = s.heartbeats[1:]
	s.mu.Unlock()
	close(ack)
}

func (s *Session) handleLoginResponse(resp *pb.LoginResponse) {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	done := s.registry.takeLogin()
	if done == nil {
		s.mu.Unlock()
		s.stats.FramesDropped.Add(1)
		s.log.Warn("dropping unsolicited login response")
		return
	}
	nick := s.loginNick
	outcome := LoginRejected
	if resp.Success {
		outcome = LoginAccepted
		s.state = StateAuthenticated
		s.identity = Identity{Nickname: nick, SessionID: resp.SessionID}
		s.hasIdentity = true
	}
	s.mu.Unlock()

	s.log.Info("login finished", "nickname", nick, "outcome", outcome, "message", resp.Message)
	s.invoke(opLogin, func() { done(outcome, string(resp.Message)) })
}

func (s *Session) handleUserList(resp *pb.UserListResponse) {
	users := make([]model.User, len(resp.Users))
	for i, u := range resp.Users {
		users[i] = model.User{Nickname: string(u.Nickname), SessionID: u.SessionID}
	}
	s.dir.Replace(users)

	done := s.registry.takeFetch()
	if done == nil {
		s.log.Debug("user list applied without pending fetch", "users", len(users))
		return
	}
	s.invoke(opFetch, func() { done(users, nil) })
}

func (s *Session) handleChat(ev *pb.ChatEvent) {
	if s.deps.OnMessage == nil {
		return
	}
	s.stats.ChatReceived.Add(1)
	msg := Message{
		From:      string(ev.From),
		SenderID:  ev.SenderID,
		Text:      ev.Text,
		Direct:    ev.Direct,
		Timestamp: ev.Timestamp,
	}
	s.invoke("message", func() { s.deps.OnMessage(msg) })
}

// answerPing echoes a peer's ping back through the server.
func (s *Session) answerPing(ch transport.Channel, ev *pb.PingEvent) {
	reply := &pb.Frame{PongReply: &pb.PongReply{To: ev.From, Time: ev.Time}}
	if err := s.send(context.Background(), ch, reply); err != nil {
		s.log.Warn("answer ping", "from", ev.From, "err", err)
		return
	}
	s.stats.PingsAnswered.Add(1)
}

func (s *Session) handlePong(pong *pb.Pong) {
	now := s.deps.Clock.Now()
	p := s.registry.takePing(pingKey{target: string(pong.Target), issued: pong.Time})
	if p == nil {
		s.stats.FramesDropped.Add(1)
		s.log.Debug("dropping unmatched pong", "target", pong.Target, "time", pong.Time)
		return
	}
	elapsed := now.Sub(p.sentAt)
	if elapsed < 0 {
		elapsed = 0
	}
	s.stats.PingsComplete.Add(1)
	s.invoke(opPing, func() { p.done(p.key.target, elapsed, nil) })
}

func (s *Session) handleError(resp *pb.ErrorResponse) {
	if resp.Ping && resp.Target != "" {
		if p := s.registry.takeOldestPing(string(resp.Target)); p != nil {
			err := fmt.Errorf("client: ping %s: %w: %s", resp.Target, ErrUnknownTarget, resp.Message)
			s.invoke(opPing, func() { p.done(p.key.target, -1, err) })
			return
		}
	}
	s.log.Warn("server error", "code", resp.Code, "message", resp.Message, "target", resp.Target)
}
