package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/NicolasHaas/netxchat/pkg/model"
	"github.com/NicolasHaas/netxchat/pkg/protocol"
	pb "github.com/NicolasHaas/netxchat/pkg/protocol/pb"
	"github.com/NicolasHaas/netxchat/pkg/transport"
)

const (
	writeTimeout = 5 * time.Second

	// routePrefix marks a ping origin that has not logged in yet. The pinged
	// peer echoes it back in PongReply.To.
	routePrefix = "#"
)

// StartControl starts the TCP (optionally TLS) listener.
func (s *Server) StartControl() error {
	if s.codec == nil {
		return fmt.Errorf("server: unknown codec %q", s.cfg.Codec)
	}

	var (
		ln  net.Listener
		err error
	)
	if s.cfg.TLS {
		cert, certErr := loadOrGenerateTLS(s.cfg, s.log)
		if certErr != nil {
			return fmt.Errorf("server: tls: %w", certErr)
		}
		tlsCfg := &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS13,
		}
		ln, err = tls.Listen("tcp", s.cfg.ListenAddr, tlsCfg)
	} else {
		ln, err = net.Listen("tcp", s.cfg.ListenAddr)
	}
	if err != nil {
		return fmt.Errorf("server: listen control: %w", err)
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	s.log.Info("control plane listening", "addr", ln.Addr().String(), "tls", s.cfg.TLS, "codec", s.codec.Name())

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				if errors.Is(err, net.ErrClosed) {
					return
				}
				s.log.Error("accept error", "err", err)
				continue
			}
			s.Serve(transport.NewStreamChannel(conn, s.cfg.MaxFrameSize))
		}
	}()
	return nil
}

// Serve handles ch on a new goroutine until it closes. Shutdown closes it.
func (s *Server) Serve(ch transport.Channel) {
	if s.ctx.Err() != nil {
		_ = ch.Close()
		return
	}
	s.conns.Add(1)
	go func() {
		defer s.conns.Done()
		s.handleConn(ch)
	}()
}

// handleConn runs a single connection lifecycle.
func (s *Server) handleConn(ch transport.Channel) {
	sess := s.sessions.Create(ch)
	log := s.log.With("remote", ch.RemoteAddr(), "session", sess.ID)

	s.metrics.TotalConnections.Add(1)
	s.metrics.ActiveConnections.Add(1)
	log.Debug("new connection")

	stop := context.AfterFunc(s.ctx, func() { _ = ch.Close() })
	defer func() {
		stop()
		_ = ch.Close()
		s.disconnect(sess.ID, log)
	}()

	for {
		data, err := ch.ReadFrame()
		if errors.Is(err, transport.ErrDropFrame) {
			s.metrics.FramesDropped.Add(1)
			log.Warn("dropping non-frame message", "err", err)
			continue
		}
		if err != nil {
			if !transport.IsExpectedClose(err) && s.ctx.Err() == nil {
				log.Debug("read failed", "err", err)
			}
			return
		}
		s.metrics.FramesIn.Add(1)

		f, err := s.codec.Unmarshal(data)
		if err != nil {
			s.metrics.FramesDropped.Add(1)
			log.Warn("malformed frame", "bytes", len(data), "err", err)
			s.sendError(ch, pb.ErrCodeBadRequest, "malformed frame", "", false)
			continue
		}
		s.handleFrame(sess.ID, ch, f, log)
	}
}

// disconnect removes the session and announces the departure.
func (s *Server) disconnect(id int64, log *slog.Logger) {
	s.metrics.ActiveConnections.Add(-1)
	s.metrics.TotalDisconnects.Add(1)

	sess := s.sessions.Remove(id)
	if sess == nil || !sess.LoggedIn() {
		log.Debug("connection closed")
		return
	}
	log.Info("user left", "nickname", sess.Nickname)
	s.broadcast(&pb.Frame{UserLeftEvent: &pb.UserLeftEvent{
		SessionID: sess.ID,
		Nickname:  pb.Name(sess.Nickname),
	}}, sess.ID)
}

func (s *Server) handleFrame(id int64, ch transport.Channel, f *pb.Frame, log *slog.Logger) {
	switch {
	case f.LoginRequest != nil:
		s.handleLogin(id, ch, f.LoginRequest, log)
		return
	case f.Heartbeat != nil:
		s.send(ch, &pb.Frame{Heartbeat: &pb.Heartbeat{}})
		return
	case f.PingRequest != nil:
		s.handlePing(id, ch, f.PingRequest)
		return
	case f.PongReply != nil:
		s.handlePongReply(id, f.PongReply)
		return
	}

	nick := s.sessions.Nickname(id)
	if nick == "" {
		s.sendError(ch, pb.ErrCodeNotLoggedIn, "login required", "", false)
		return
	}

	switch {
	case f.UserListRequest != nil:
		s.send(ch, &pb.Frame{UserListResponse: &pb.UserListResponse{Users: userInfos(s.sessions.Users())}})
	case f.TalkRequest != nil:
		s.handleTalk(id, nick, ch, f.TalkRequest)
	case f.DirectRequest != nil:
		s.handleDirect(id, nick, ch, f.DirectRequest)
	default:
		s.metrics.FramesDropped.Add(1)
		log.Warn("unexpected frame", "kind", protocol.Kind(f))
		s.sendError(ch, pb.ErrCodeBadRequest, "unexpected "+protocol.Kind(f), "", false)
	}
}

func (s *Server) handleLogin(id int64, ch transport.Channel, req *pb.LoginRequest, log *slog.Logger) {
	reject := func(reason string) {
		s.metrics.FailedLogins.Add(1)
		log.Info("login rejected", "nickname", req.Nickname, "reason", reason)
		s.send(ch, &pb.Frame{LoginResponse: &pb.LoginResponse{Success: false, Message: pb.Name(reason)}})
	}

	nick := string(req.Nickname)
	if err := model.ValidateNickname(nick); err != nil {
		reject(err.Error())
		return
	}
	if strings.HasPrefix(nick, routePrefix) {
		reject("nickname must not start with " + routePrefix)
		return
	}
	user, err := s.sessions.Login(id, nick)
	if err != nil {
		reject(err.Error())
		return
	}

	s.metrics.SuccessfulLogins.Add(1)
	log.Info("user logged in", "nickname", user.Nickname)
	s.send(ch, &pb.Frame{LoginResponse: &pb.LoginResponse{
		Success:   true,
		Message:   pb.Name(user.Nickname),
		SessionID: user.SessionID,
	}})
	s.broadcast(&pb.Frame{UserJoinedEvent: &pb.UserJoinedEvent{
		User: pb.UserInfo{Nickname: pb.Name(user.Nickname), SessionID: user.SessionID},
	}}, id)
}

func (s *Server) handleTalk(id int64, nick string, ch transport.Channel, req *pb.TalkRequest) {
	if err := model.ValidateMessage(req.Text); err != nil {
		s.sendError(ch, pb.ErrCodeBadRequest, err.Error(), "", false)
		return
	}
	s.metrics.ChatMessages.Add(1)
	s.broadcast(&pb.Frame{ChatEvent: &pb.ChatEvent{
		From:      pb.Name(nick),
		SenderID:  id,
		Text:      req.Text,
		Timestamp: s.clock.Now().UnixMilli(),
	}}, id)
}

func (s *Server) handleDirect(id int64, nick string, ch transport.Channel, req *pb.DirectRequest) {
	if err := model.ValidateMessage(req.Text); err != nil {
		s.sendError(ch, pb.ErrCodeBadRequest, err.Error(), req.Target, false)
		return
	}
	target := s.sessions.GetByNickname(string(req.Target))
	if target == nil {
		s.sendError(ch, pb.ErrCodeUnknownTarget, "no such user", req.Target, false)
		return
	}
	s.metrics.DirectMessages.Add(1)
	s.send(target.Channel, &pb.Frame{ChatEvent: &pb.ChatEvent{
		From:      pb.Name(nick),
		SenderID:  id,
		Text:      req.Text,
		Direct:    true,
		Timestamp: s.clock.Now().UnixMilli(),
	}})
}

// handlePing forwards a ping to its target. The origin is named by its
// nickname, or by a route token before login.
func (s *Server) handlePing(id int64, ch transport.Channel, req *pb.PingRequest) {
	target := s.sessions.GetByNickname(string(req.Target))
	if target == nil {
		s.sendError(ch, pb.ErrCodeUnknownTarget, "no such user", req.Target, true)
		return
	}
	from := s.sessions.Nickname(id)
	if from == "" {
		from = routePrefix + strconv.FormatInt(id, 10)
	}
	s.metrics.PingsRelayed.Add(1)
	s.send(target.Channel, &pb.Frame{PingEvent: &pb.PingEvent{From: pb.Name(from), Time: req.Time}})
}

// handlePongReply completes a relayed ping for its origin. The responder must
// be logged in since the origin matches the pong by nickname.
func (s *Server) handlePongReply(id int64, reply *pb.PongReply) {
	responder := s.sessions.Nickname(id)
	if responder == "" {
		s.metrics.FramesDropped.Add(1)
		return
	}

	var origin *Session
	if rest, ok := strings.CutPrefix(string(reply.To), routePrefix); ok {
		if oid, err := strconv.ParseInt(rest, 10, 64); err == nil {
			origin = s.sessions.Get(oid)
		}
	} else {
		origin = s.sessions.GetByNickname(string(reply.To))
	}
	if origin == nil {
		s.metrics.FramesDropped.Add(1)
		return
	}
	s.metrics.PongsRelayed.Add(1)
	s.send(origin.Channel, &pb.Frame{Pong: &pb.Pong{Target: pb.Name(responder), Time: reply.Time}})
}

// broadcast sends f to every logged-in session except exclude.
func (s *Server) broadcast(f *pb.Frame, exclude int64) {
	data, err := s.codec.Marshal(f)
	if err != nil {
		s.log.Error("broadcast marshal failed", "kind", protocol.Kind(f), "err", err)
		return
	}
	for _, sess := range s.sessions.LoggedIn(exclude) {
		if err := s.write(sess.Channel, data); err != nil {
			s.log.Debug("broadcast write failed", "session", sess.ID, "err", err)
		}
	}
}

func (s *Server) send(ch transport.Channel, f *pb.Frame) {
	data, err := s.codec.Marshal(f)
	if err != nil {
		s.log.Error("marshal failed", "kind", protocol.Kind(f), "err", err)
		return
	}
	if err := s.write(ch, data); err != nil {
		s.log.Debug("write failed", "remote", ch.RemoteAddr(), "kind", protocol.Kind(f), "err", err)
	}
}

func (s *Server) write(ch transport.Channel, data []byte) error {
	ctx, cancel := context.WithTimeout(s.ctx, writeTimeout)
	defer cancel()
	if err := ch.WriteFrame(ctx, data); err != nil {
		return err
	}
	s.metrics.FramesOut.Add(1)
	return nil
}

// sendError sends an error response.
func (s *Server) sendError(ch transport.Channel, code int32, message string, target pb.Name, ping bool) {
	s.send(ch, &pb.Frame{ErrorResponse: &pb.ErrorResponse{
		Code:    code,
		Message: message,
		Target:  target,
		Ping:    ping,
	}})
}

func userInfos(users []model.User) []pb.UserInfo {
	out := make([]pb.UserInfo, len(users))
	for i, u := range users {
		out[i] = pb.UserInfo{Nickname: pb.Name(u.Nickname), SessionID: u.SessionID}
	}
	return out
}
