package session

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"peercall/internal/domain"
	"peercall/internal/presence"
)

var (
	// ErrAlreadyLoggedIn is returned by Login while a relay connection is
	// open.
	ErrAlreadyLoggedIn = errors.New("already logged in")
	// ErrEmptyName is returned by Login without a name.
	ErrEmptyName = errors.New("empty name")
	// ErrUnknownParticipant is returned when toggling a name not in the
	// directory.
	ErrUnknownParticipant = errors.New("unknown participant")
)

// Dialer creates a relay channel that reports to h.
type Dialer func(h domain.Handler) domain.Relay

// Negotiator runs the media negotiation for one call at a time.
type Negotiator interface {
	CreateOffer(ctx context.Context, targets []string) (domain.CallOffer, error)
	HandleInvite(ctx context.Context, invite domain.CallInvite) (domain.CallAccepted, error)
	MarkSent()
	ApplyRemoteAnswer(blob string) error
	Hangup()
	Reset()
}

// Session coordinates the relay, the presence directory and the negotiation
// engine for one logged-in user. It implements domain.Handler.
//
// Relay events and UI intents are serialized by one lock, so every handler
// runs to completion before the next starts.
type Session struct {
	dial     Dialer
	engine   Negotiator
	dir      *presence.Directory
	observer domain.Observer
	log      zerolog.Logger

	mu     sync.Mutex
	name   string
	relay  domain.Relay
	ctx    context.Context
	cancel context.CancelFunc
}

var _ domain.Handler = (*Session)(nil)

// New creates a logged-out Session. A nil observer discards notifications.
func New(dial Dialer, engine Negotiator, observer domain.Observer) *Session {
	if observer == nil {
		observer = nopObserver{}
	}
	return &Session{
		dial:     dial,
		engine:   engine,
		dir:      presence.NewDirectory(),
		observer: observer,
		log:      log.With().Str("component", "session").Logger(),
	}
}

// Name returns the logged-in name, or "" when logged out.
func (s *Session) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name
}

// Participants lists the directory in arrival order.
func (s *Session) Participants() []presence.Participant {
	return s.dir.Participants()
}

// Login connects to the relay as name. The User/add announcement is sent
// once the relay reports the channel open.
func (s *Session) Login(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if name == "" {
		return ErrEmptyName
	}
	if s.relay != nil {
		return ErrAlreadyLoggedIn
	}

	relay := s.dial(s)
	if err := relay.Connect(ctx); err != nil {
		s.log.Error().Err(err).Msg("connect to relay")
		return err
	}

	s.name = name
	s.relay = relay
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.log.Info().Str("name", name).Msg("logging in")
	return nil
}

// Logout closes the relay channel. OnRelayClosed follows from the relay.
func (s *Session) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.relay != nil {
		s.relay.Close()
	}
}

// Toggle flips the selection of name and returns the new selection state.
func (s *Session) Toggle(name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	selected, ok := s.dir.ToggleSelection(name)
	if !ok {
		return false, ErrUnknownParticipant
	}
	s.observer.SelectionChanged(name, selected)
	return selected, nil
}

// InitiateCall offers a call to every selected participant other than self.
func (s *Session) InitiateCall(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.relay == nil {
		return domain.ErrNotConnected
	}
	targets := s.dir.SelectedNames(false)
	if len(targets) == 0 {
		return domain.ErrNoTargets
	}

	s.log.Info().Strs("targets", targets).Msg("calling")
	offer, err := s.engine.CreateOffer(ctx, targets)
	if err != nil {
		return s.callFailed(err)
	}
	if err := s.relay.Send(offer); err != nil {
		return s.callFailed(err)
	}
	s.engine.MarkSent()
	return nil
}

// Hangup ends the current call, if any.
func (s *Session) Hangup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log.Info().Msg("hanging up")
	s.engine.Hangup()
}

// OnStateChanged forwards an engine state change to the observer. The engine
// reports from inside calls the session makes under its lock, so this must
// not take it.
func (s *Session) OnStateChanged(state string) {
	s.log.Debug().Str("state", state).Msg("call state")
	s.observer.CallStateChanged(state)
}

func (s *Session) OnRelayOpened() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.relay == nil {
		return
	}
	s.log.Info().Str("name", s.name).Msg("relay open, announcing")
	if err := s.relay.Send(domain.UserAdded{Name: s.name}); err != nil {
		s.log.Error().Err(err).Msg("announce")
		s.relay.Close()
	}
}

func (s *Session) OnRelayError(err error) {
	s.log.Warn().Err(err).Msg("relay error")
}

// OnRelayClosed clears all session state and returns the UI to login.
func (s *Session) OnRelayClosed(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.log.Info().Err(err).Msg("relay closed")
	if s.cancel != nil {
		s.cancel()
	}
	s.name = ""
	s.relay = nil
	s.ctx, s.cancel = nil, nil
	s.dir.Reset()
	s.engine.Reset()
	s.observer.RelayClosed(err)
}

func (s *Session) OnUserAdded(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	self := name == s.name
	p := presence.Participant{Name: name, Self: self, Selected: self}
	if err := s.dir.Add(p); err != nil {
		s.log.Warn().Err(err).Str("name", name).Msg("ignoring participant")
		return
	}
	s.log.Debug().Str("name", name).Bool("self", self).Msg("participant added")
	s.observer.ParticipantAdded(name, self)
	if self {
		s.observer.SelectionChanged(name, true)
	}
}

func (s *Session) OnUserRemoved(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.dir.FindByName(name)
	if !ok {
		s.log.Debug().Str("name", name).Msg("remove for unknown participant")
		return
	}
	s.dir.Remove(name)
	if p.Selected {
		s.observer.SelectionChanged(name, false)
	}
	s.observer.ParticipantRemoved(name)
}

func (s *Session) OnCallInvite(invite domain.CallInvite) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.relay == nil {
		return
	}
	s.log.Info().Str("from", invite.From).Str("conference", invite.Conference).Msg("invited")

	accepted, err := s.engine.HandleInvite(s.ctx, invite)
	if errors.Is(err, domain.ErrCallInProgress) {
		s.log.Warn().Str("from", invite.From).Msg("busy, ignoring invite")
		return
	}
	if err != nil {
		_ = s.callFailed(err)
		return
	}
	if err := s.relay.Send(accepted); err != nil {
		_ = s.callFailed(err)
		return
	}
	s.engine.MarkSent()
}

func (s *Session) OnCallAnswer(answer domain.CallAnswer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.engine.ApplyRemoteAnswer(answer.LocalDescription)
	if errors.Is(err, domain.ErrNoPendingOffer) {
		s.log.Warn().Msg("answer without a pending offer, ignoring")
		return
	}
	if err != nil {
		_ = s.callFailed(err)
	}
}

// callFailed reports err and tears down the failed call. A call rejected
// because another is in progress leaves that call alone.
func (s *Session) callFailed(err error) error {
	if errors.Is(err, domain.ErrCallInProgress) {
		return err
	}
	s.log.Error().Err(err).Msg("call failed")
	s.observer.CallFailed(err)
	s.engine.Hangup()
	return err
}

type nopObserver struct{}

func (nopObserver) ParticipantAdded(string, bool) {}
func (nopObserver) ParticipantRemoved(string) {}
func (nopObserver) SelectionChanged(string, bool) {}
func (nopObserver) CallStateChanged(string) {}
func (nopObserver) CallFailed(error) {}
func (nopObserver) RelayClosed(error) {}
