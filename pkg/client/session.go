// Package client implements the netxchat client session engine.
//
// A Session owns one transport channel, a registry of in-flight requests and
// a cached user directory. Requests return as soon as their frame is written;
// results arrive later on the session's dispatch goroutine through the
// completion handle passed with the request.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/NicolasHaas/netxchat/pkg/clock"
	"github.com/NicolasHaas/netxchat/pkg/errcode"
	"github.com/NicolasHaas/netxchat/pkg/logging"
	"github.com/NicolasHaas/netxchat/pkg/model"
	"github.com/NicolasHaas/netxchat/pkg/protocol"
	pb "github.com/NicolasHaas/netxchat/pkg/protocol/pb"
	"github.com/NicolasHaas/netxchat/pkg/transport"
)

// Dialer opens the transport channel for a session.
type Dialer func(ctx context.Context, opts transport.Options) (transport.Channel, error)

// Message is an inbound chat message.
type Message struct {
	From      string
	SenderID  int64
	Text      string
	Direct    bool
	Timestamp int64 // unix millis, server clock
}

// Identity is the authenticated user of a session.
type Identity struct {
	Nickname  string
	SessionID int64
}

// Dependencies are the injectable collaborators of a Session. Zero values
// select production defaults.
type Dependencies struct {
	Dial   Dialer
	Clock  clock.Clock
	Logger *slog.Logger

	// OnMessage is invoked on the dispatch goroutine for every chat event.
	OnMessage func(Message)
}

// Session is one client connection to a message server.
type Session struct {
	mu          sync.Mutex
	state       State
	initing     bool
	ch          transport.Channel
	identity    Identity
	hasIdentity bool
	loginNick   string
	loopStarted bool
	heartbeats  []chan struct{} // waiting TestConnection calls, oldest first

	cfg   Config
	codec protocol.Codec
	deps  Dependencies
	log   *slog.Logger

	registry *registry
	dir      Directory
	stats    Stats

	done      chan struct{}
	closeDone sync.Once
	inHandle  atomic.Int32
}

// New returns a Session in StateConfigured. cfg is expected to come from
// ParseConfig; an unknown codec falls back to JSON.
func New(cfg Config, deps Dependencies) *Session {
	if deps.Dial == nil {
		deps.Dial = transport.Dial
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.Logger == nil {
		deps.Logger = configLogger(cfg.Log)
	}
	codec, err := protocol.CodecByName(cfg.Codec)
	if err != nil {
		codec = protocol.JSON
	}
	return &Session{
		state:    StateConfigured,
		cfg:      cfg,
		codec:    codec,
		deps:     deps,
		log:      logging.For(deps.Logger, "client", "client", uuid.NewString(), "addr", cfg.Addr),
		registry: newRegistry(),
		done:     make(chan struct{}),
	}
}

// configLogger returns the logger a Log config section asks for, or the slog
// default when the section is empty or invalid.
func configLogger(opts logging.Options) *slog.Logger {
	if opts.IsZero() {
		return slog.Default()
	}
	if opts.Output == nil {
		opts.Output = os.Stderr
	}
	log, err := logging.New(opts)
	if err != nil {
		return slog.Default()
	}
	return log
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Identity returns the authenticated user, if login has succeeded.
func (s *Session) Identity() (Identity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity, s.hasIdentity
}

// Users returns a copy of the cached directory.
func (s *Session) Users() []model.User {
	return s.dir.Snapshot()
}

// Stats returns the session counters.
func (s *Session) Stats() StatsSnapshot {
	snap := s.stats.Snapshot()
	snap.Pending = s.registry.pending()
	snap.Users = s.dir.Len()
	return snap
}

// Done is closed once the session reaches StateClosed and its dispatch
// goroutine has exited.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Init opens the transport and starts the dispatch goroutine.
func (s *Session) Init(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateConfigured || s.initing {
		st := s.state
		s.mu.Unlock()
		return fmt.Errorf("client: init in state %s: %w", st, ErrWrongState)
	}
	s.initing = true
	s.mu.Unlock()

	if s.cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.DialTimeout)
		defer cancel()
	}
	ch, err := s.deps.Dial(ctx, s.cfg.transportOptions())

	s.mu.Lock()
	s.initing = false
	if err != nil {
		s.mu.Unlock()
		s.log.Warn("connect failed", "addr", s.cfg.Addr, "err", err)
		return errcode.Protocol(fmt.Errorf("client: init: %w", err))
	}
	if s.state != StateConfigured {
		// Destroyed while dialing.
		s.mu.Unlock()
		_ = ch.Close()
		return fmt.Errorf("client: init: %w", ErrWrongState)
	}
	s.ch = ch
	s.state = StateConnected
	s.loopStarted = true
	s.mu.Unlock()

	s.log.Info("connected", "addr", s.cfg.Addr, "transport", s.cfg.Transport, "codec", s.codec.Name())
	go s.run(ch)
	return nil
}

// TestConnection checks that the server is still answering: it sends a
// heartbeat and waits for the server's echo, bounded by ctx. Channels with a
// native liveness check are probed first. State does not change.
func (s *Session) TestConnection(ctx context.Context) error {
	ch, err := s.channelIf(State.online)
	if err != nil {
		return err
	}
	if p, ok := ch.(transport.Prober); ok {
		if err := p.Probe(ctx); err != nil {
			return errcode.Protocol(fmt.Errorf("client: probe: %w", err))
		}
	}

	ack := make(chan struct{})
	s.mu.Lock()
	s.heartbeats = append(s.heartbeats, ack)
	s.mu.Unlock()

	if err := s.send(ctx, ch, &pb.Frame{Heartbeat: &pb.Heartbeat{}}); err != nil {
		s.dropHeartbeat(ack)
		return err
	}
	select {
	case <-ack:
		return nil
	case <-s.done:
		return errcode.Protocol(fmt.Errorf("client: heartbeat: %w", ErrConnectionLost))
	case <-ctx.Done():
		s.dropHeartbeat(ack)
		return errcode.Protocol(fmt.Errorf("client: heartbeat unanswered: %w", ctx.Err()))
	}
}

func (s *Session) dropHeartbeat(ack chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range s.heartbeats {
		if c == ack {
			s.heartbeats = append(s.heartbeats[:i], s.heartbeats[i+1:]...)
			return
		}
	}
}

// Login starts the login handshake. A nil error means done will be invoked
// exactly once: with the server's answer, or with a cancellation when the
// session closes first. A non-nil error means done is never invoked.
func (s *Session) Login(nickname string, done LoginFunc) error {
	if done == nil {
		return nullArg("login callback")
	}
	if err := checkNickname(nickname); err != nil {
		return err
	}

	s.mu.Lock()
	if s.state != StateConnected {
		st := s.state
		s.mu.Unlock()
		return fmt.Errorf("client: login in state %s: %w", st, ErrWrongState)
	}
	if err := s.registry.registerLogin(done); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("client: login: %w", err)
	}
	s.loginNick = nickname
	ch := s.ch
	s.mu.Unlock()

	if err := s.send(context.Background(), ch, &pb.Frame{LoginRequest: &pb.LoginRequest{Nickname: pb.Name(nickname)}}); err != nil {
		if s.registry.takeLogin() == nil {
			// Destroy cancelled the entry first; done already has its answer.
			return nil
		}
		return err
	}
	s.log.Debug("login sent", "nickname", nickname)
	return nil
}

// FetchUsers requests a fresh directory snapshot.
func (s *Session) FetchUsers(done UsersFunc) error {
	if done == nil {
		return nullArg("users callback")
	}

	s.mu.Lock()
	if s.state != StateAuthenticated {
		st := s.state
		s.mu.Unlock()
		return fmt.Errorf("client: fetch users in state %s: %w", st, ErrWrongState)
	}
	if err := s.registry.registerFetch(done); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("client: fetch users: %w", err)
	}
	ch := s.ch
	s.mu.Unlock()

	if err := s.send(context.Background(), ch, &pb.Frame{UserListRequest: &pb.UserListRequest{}}); err != nil {
		if s.registry.takeFetch() == nil {
			return nil
		}
		return err
	}
	return nil
}

// Talk broadcasts text to every logged-in user.
func (s *Session) Talk(text string) error {
	if err := checkMessage(text); err != nil {
		return err
	}
	ch, err := s.channelIf(func(st State) bool { return st == StateAuthenticated })
	if err != nil {
		return err
	}
	return s.send(context.Background(), ch, &pb.Frame{TalkRequest: &pb.TalkRequest{Text: text}})
}

// SendTo sends text to a single user. An unknown target is reported by the
// server asynchronously and only logged.
func (s *Session) SendTo(target, text string) error {
	if target == "" {
		return nullArg("target")
	}
	if err := checkMessage(text); err != nil {
		return err
	}
	ch, err := s.channelIf(func(st State) bool { return st == StateAuthenticated })
	if err != nil {
		return err
	}
	return s.send(context.Background(), ch, &pb.Frame{DirectRequest: &pb.DirectRequest{Target: pb.Name(target), Text: text}})
}

// Ping measures the round trip to target. issueTime is the caller's
// correlation value in milliseconds and is echoed by the peer; elapsed time
// is measured from the local send instant.
func (s *Session) Ping(target string, issueTime int64, done PingFunc) error {
	if target == "" {
		return nullArg("target")
	}
	if done == nil {
		return nullArg("ping callback")
	}

	s.mu.Lock()
	if !s.state.online() {
		st := s.state
		s.mu.Unlock()
		return fmt.Errorf("client: ping in state %s: %w", st, ErrWrongState)
	}
	p := &pendingPing{
		key:    pingKey{target: target, issued: issueTime},
		sentAt: s.deps.Clock.Now(),
		done:   done,
	}
	if err := s.registry.registerPing(p); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("client: ping %s: %w", target, err)
	}
	ch := s.ch
	s.mu.Unlock()

	if err := s.send(context.Background(), ch, &pb.Frame{PingRequest: &pb.PingRequest{Target: pb.Name(target), Time: issueTime}}); err != nil {
		if !s.registry.discardPing(p.key) {
			return nil
		}
		return err
	}
	return nil
}

// Destroy closes the session, cancels every pending operation and releases
// the directory. It is safe to call more than once and from inside a
// completion handle.
func (s *Session) Destroy() error {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return nil
	}
	prev := s.state
	s.state = StateClosed
	ch := s.ch
	started := s.loopStarted
	s.mu.Unlock()

	if ch != nil {
		if err := ch.Close(); err != nil && !transport.IsExpectedClose(err) {
			s.log.Debug("close transport", "err", err)
		}
	}
	if !started {
		s.closeDone.Do(func() { close(s.done) })
	} else if s.inHandle.Load() == 0 {
		<-s.done
	}

	s.cancelPending(ErrCancelled)
	s.dir.Reset()
	s.log.Info("session destroyed", "from", prev)
	s.Stats().LogSummary(s.log)
	return nil
}

// channelIf returns the open channel when allowed(state) holds.
func (s *Session) channelIf(allowed func(State) bool) (transport.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !allowed(s.state) {
		return nil, fmt.Errorf("client: state %s: %w", s.state, ErrWrongState)
	}
	return s.ch, nil
}

// send encodes f and writes it within the configured write timeout.
func (s *Session) send(ctx context.Context, ch transport.Channel, f *pb.Frame) error {
	data, err := s.codec.Marshal(f)
	if err != nil {
		return fmt.Errorf("client: encode %s: %w", protocol.Kind(f), err)
	}
	if s.cfg.WriteTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.WriteTimeout)
		defer cancel()
	}
	if err := ch.WriteFrame(ctx, data); err != nil {
		return errcode.Protocol(fmt.Errorf("client: send %s: %w", protocol.Kind(f), err))
	}
	s.stats.FramesOut.Add(1)
	return nil
}

// cancelPending fires every registered handle with reason.
func (s *Session) cancelPending(reason error) {
	for _, c := range s.registry.cancelAll(reason) {
		s.stats.OpsCancelled.Add(1)
		s.invoke(c.op, c.fn)
	}
}

// invoke runs a completion handle. A panicking handle is logged and does
// not take the dispatch goroutine down.
func (s *Session) invoke(op opKind, fn func()) {
	s.inHandle.Add(1)
	defer s.inHandle.Add(-1)
	defer func() {
		if r := recover(); r != nil {
			s.stats.HandlerPanics.Add(1)
			s.log.Error("completion handler panicked", "op", op, "panic", r)
		}
	}()
	fn()
}

func checkNickname(nickname string) error {
	err := model.ValidateNickname(nickname)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, model.ErrNicknameEmpty):
		return nullArg("nickname")
	default:
		return errcode.Protocol(fmt.Errorf("client: %w", err))
	}
}

func checkMessage(text string) error {
	err := model.ValidateMessage(text)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, model.ErrMessageEmpty):
		return nullArg("message")
	default:
		return errcode.Protocol(fmt.Errorf("client: %w", err))
	}
}
