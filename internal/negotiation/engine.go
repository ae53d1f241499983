package negotiation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"peercall/internal/domain"
)

const defaultGatherTimeout = 15 * time.Second

// ErrGatherTimeout is returned when candidate gathering does not finish
// within the configured timeout.
var ErrGatherTimeout = errors.New("candidate gathering timed out")

// Snapshot is a read-only copy of a negotiation session.
type Snapshot struct {
	ID          string
	Role        Role
	State       State
	Description DescriptionState
	Targets     []string
	Conference  string
	// History lists every state the session entered, in order.
	History []State
}

type session struct {
	id         string
	role       Role
	state      State
	desc       DescriptionState
	targets    []string
	conference string
	history    []State

	conn   domain.Connection
	stream domain.Stream
}

// Option configures an Engine.
type Option func(*Engine)

// WithStateObserver registers fn to be called after every state change.
func WithStateObserver(fn func(State)) Option {
	return func(e *Engine) { e.onState = fn }
}

// WithICEServers sets the ICE servers passed to new connections.
func WithICEServers(servers []domain.ICEServer) Option {
	return func(e *Engine) { e.iceServers = servers }
}

// WithConstraints sets which local tracks are acquired. Audio and video by
// default.
func WithConstraints(c domain.MediaConstraints) Option {
	return func(e *Engine) { e.constraints = c }
}

// WithGatherTimeout bounds the wait for candidate gathering.
func WithGatherTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.gatherTimeout = d
		}
	}
}

// Engine owns the peer connection and local stream of at most one
// negotiation session. Operations are serialized; State and Current may be
// called from any goroutine.
type Engine struct {
	factory       domain.ConnectionFactory
	media         domain.MediaSource
	iceServers    []domain.ICEServer
	constraints   domain.MediaConstraints
	gatherTimeout time.Duration
	onState       func(State)
	log           zerolog.Logger

	opMu sync.Mutex // serializes operations

	mu  sync.Mutex // guards cur and its exported fields
	cur *session
}

// NewEngine creates an idle engine.
func NewEngine(factory domain.ConnectionFactory, media domain.MediaSource, opts ...Option) *Engine {
	e := &Engine{
		factory:       factory,
		media:         media,
		constraints:   domain.MediaConstraints{Audio: true, Video: true},
		gatherTimeout: defaultGatherTimeout,
		log:           log.With().Str("component", "negotiation").Logger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// State returns the current session's state, or Idle without one.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cur == nil {
		return Idle
	}
	return e.cur.state
}

// Current returns a copy of the current session.
func (e *Engine) Current() (Snapshot, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cur == nil {
		return Snapshot{}, false
	}
	s := e.cur
	return Snapshot{
		ID:          s.id,
		Role:        s.role,
		State:       s.state,
		Description: s.desc,
		Targets:     append([]string(nil), s.targets...),
		Conference:  s.conference,
		History:     append([]State(nil), s.history...),
	}, true
}

// EnsureConnection returns the current session's connection, creating it
// and attaching local media on first use. Without an outstanding session a
// new initiator session is started.
func (e *Engine) EnsureConnection(ctx context.Context) (domain.Connection, error) {
	e.opMu.Lock()
	defer e.opMu.Unlock()

	s := e.outstanding()
	if s == nil {
		e.closeCurrent()
		s = e.begin(Initiator, nil, "")
	}
	return e.ensureConnection(ctx, s)
}

// CreateOffer starts an initiator session for targets, creates and applies
// the local offer, and waits for candidate gathering before returning the
// offer message. targets is copied.
func (e *Engine) CreateOffer(ctx context.Context, targets []string) (domain.CallOffer, error) {
	e.opMu.Lock()
	defer e.opMu.Unlock()

	if len(targets) == 0 {
		return domain.CallOffer{}, domain.ErrNoTargets
	}
	users := append([]string(nil), targets...)

	s := e.outstanding()
	switch {
	case s == nil:
		e.closeCurrent()
		s = e.begin(Initiator, users, "")
	case s.role == Initiator && (s.state == Idle || s.state == LocalMediaAcquired):
		// Connection prepared by EnsureConnection; claim it for this call.
		e.mu.Lock()
		s.targets = users
		e.mu.Unlock()
	default:
		return domain.CallOffer{}, domain.ErrCallInProgress
	}

	if _, err := e.ensureConnection(ctx, s); err != nil {
		return domain.CallOffer{}, err
	}
	blob, err := e.offer(ctx, s)
	if err != nil {
		return domain.CallOffer{}, err
	}

	e.log.Info().Str("session", s.id).Strs("targets", users).Msg("offer ready")
	return domain.CallOffer{Users: append([]string(nil), users...), LocalDescription: blob}, nil
}

// HandleInvite runs the responder side of an invite. When the invite
// carries an offer the returned message carries the answer; otherwise it
// carries a fresh offer and the session waits for a Call/answer.
func (e *Engine) HandleInvite(ctx context.Context, invite domain.CallInvite) (domain.CallAccepted, error) {
	e.opMu.Lock()
	defer e.opMu.Unlock()

	if e.outstanding() != nil {
		return domain.CallAccepted{}, domain.ErrCallInProgress
	}
	e.closeCurrent()

	var targets []string
	if invite.From != "" {
		targets = []string{invite.From}
	}
	s := e.begin(Responder, targets, invite.Conference)
	e.advance(s, InviteReceived, DescriptionNone)

	var remote domain.Description
	if invite.LocalDescription != "" {
		var err error
		remote, err = DecodeDescription(invite.LocalDescription)
		if err != nil {
			return domain.CallAccepted{}, e.fail(s, &domain.NegotiationError{Op: "decode offer", Err: err})
		}
		if remote.Type != domain.DescriptionOffer {
			return domain.CallAccepted{}, e.fail(s, &domain.NegotiationError{
				Op:  "decode offer",
				Err: fmt.Errorf("invite does not carry an offer: %s", remote.Type),
			})
		}
	}

	conn, err := e.ensureConnection(ctx, s)
	if err != nil {
		return domain.CallAccepted{}, err
	}

	if invite.LocalDescription == "" {
		blob, err := e.offer(ctx, s)
		if err != nil {
			return domain.CallAccepted{}, err
		}
		e.log.Info().Str("session", s.id).Str("conference", invite.Conference).Msg("offer ready for relay")
		return domain.CallAccepted{Conference: invite.Conference, LocalDescription: blob}, nil
	}

	if err := conn.SetRemoteDescription(remote); err != nil {
		return domain.CallAccepted{}, e.fail(s, &domain.NegotiationError{Op: "apply offer", Err: err})
	}
	e.setDescription(s, DescriptionRemoteSet)

	answer, err := conn.CreateAnswer()
	if err != nil {
		return domain.CallAccepted{}, e.fail(s, &domain.NegotiationError{Op: "create answer", Err: err})
	}
	if err := conn.SetLocalDescription(answer); err != nil {
		return domain.CallAccepted{}, e.fail(s, &domain.NegotiationError{Op: "set local answer", Err: err})
	}
	e.advance(s, LocalAnswerCreated, DescriptionLocalPending)

	blob, err := e.finalize(ctx, s)
	if err != nil {
		return domain.CallAccepted{}, err
	}

	e.log.Info().Str("session", s.id).Str("from", invite.From).Msg("answer ready")
	return domain.CallAccepted{Conference: invite.Conference, LocalDescription: blob}, nil
}

// MarkSent records that the pending local description reached the relay.
func (e *Engine) MarkSent() {
	e.opMu.Lock()
	defer e.opMu.Unlock()

	s := e.outstanding()
	if s == nil {
		return
	}
	switch s.state {
	case OfferCreated:
		e.advance(s, OfferSent, s.desc)
	case LocalAnswerCreated:
		e.advance(s, Established, DescriptionEstablished)
	default:
		e.log.Warn().Str("state", s.state.String()).Msg("nothing pending to mark as sent")
	}
}

// ApplyRemoteAnswer applies the answer to a sent offer. Without a session
// in OfferSent it returns a NegotiationError wrapping ErrNoPendingOffer and
// changes nothing.
func (e *Engine) ApplyRemoteAnswer(blob string) error {
	e.opMu.Lock()
	defer e.opMu.Unlock()

	s := e.outstanding()
	if s == nil || s.state != OfferSent {
		return &domain.NegotiationError{Op: "apply answer", Err: domain.ErrNoPendingOffer}
	}

	desc, err := DecodeDescription(blob)
	if err != nil {
		return e.fail(s, &domain.NegotiationError{Op: "decode answer", Err: err})
	}
	// A provisional answer cannot establish the call.
	if desc.Type != domain.DescriptionAnswer {
		return e.fail(s, &domain.NegotiationError{
			Op:  "decode answer",
			Err: fmt.Errorf("expected an answer, got %s", desc.Type),
		})
	}
	if err := s.conn.SetRemoteDescription(desc); err != nil {
		return e.fail(s, &domain.NegotiationError{Op: "apply answer", Err: err})
	}

	e.advance(s, RemoteAnswerApplied, DescriptionRemoteSet)
	e.advance(s, Established, DescriptionEstablished)
	e.log.Info().Str("session", s.id).Msg("call established")
	return nil
}

// Hangup closes the current connection and stream and returns the engine
// to Idle.
func (e *Engine) Hangup() {
	e.opMu.Lock()
	defer e.opMu.Unlock()

	if e.closeCurrent() {
		e.notify(Idle)
	}
}

// Reset is Hangup for when the relay went away.
func (e *Engine) Reset() {
	e.Hangup()
}

// outstanding returns the current session if it is not terminal.
func (e *Engine) outstanding() *session {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cur == nil || e.cur.state.Terminal() {
		return nil
	}
	return e.cur
}

func (e *Engine) begin(role Role, targets []string, conference string) *session {
	s := &session{
		id:         uuid.NewString(),
		role:       role,
		state:      Idle,
		targets:    targets,
		conference: conference,
	}
	e.mu.Lock()
	e.cur = s
	e.mu.Unlock()

	e.log.Debug().Str("session", s.id).Str("role", role.String()).Msg("session started")
	return s
}

// closeCurrent releases the current session's resources. It reports
// whether there was a session.
func (e *Engine) closeCurrent() bool {
	e.mu.Lock()
	s := e.cur
	e.cur = nil
	e.mu.Unlock()
	if s == nil {
		return false
	}

	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			e.log.Warn().Err(err).Str("session", s.id).Msg("close connection")
		}
	}
	if s.stream != nil {
		if err := s.stream.Close(); err != nil {
			e.log.Warn().Err(err).Str("session", s.id).Msg("close local stream")
		}
	}
	e.log.Debug().Str("session", s.id).Str("state", s.state.String()).Msg("session closed")
	return true
}

func (e *Engine) ensureConnection(ctx context.Context, s *session) (domain.Connection, error) {
	if s.conn != nil {
		return s.conn, nil
	}

	conn, err := e.factory.NewConnection(e.iceServers)
	if err != nil {
		return nil, e.fail(s, &domain.NegotiationError{Op: "create connection", Err: err})
	}
	s.conn = conn
	id := s.id
	conn.OnICEConnectionStateChange(func(state string) {
		e.log.Info().Str("session", id).Str("ice", state).Msg("ICE connection state changed")
	})

	stream, err := e.media.Acquire(ctx, e.constraints)
	if err != nil {
		var mediaErr *domain.MediaAcquisitionError
		if !errors.As(err, &mediaErr) {
			mediaErr = &domain.MediaAcquisitionError{Err: err}
		}
		return nil, e.fail(s, mediaErr)
	}
	s.stream = stream

	if err := conn.AddStream(stream); err != nil {
		return nil, e.fail(s, &domain.NegotiationError{Op: "add stream", Err: err})
	}

	if s.role == Responder {
		e.advance(s, PeerConnectionReady, s.desc)
	} else {
		e.advance(s, LocalMediaAcquired, s.desc)
	}
	return conn, nil
}

// offer creates and applies a local offer and returns it once gathering
// has finished.
func (e *Engine) offer(ctx context.Context, s *session) (string, error) {
	desc, err := s.conn.CreateOffer()
	if err != nil {
		return "", e.fail(s, &domain.NegotiationError{Op: "create offer", Err: err})
	}
	if err := s.conn.SetLocalDescription(desc); err != nil {
		return "", e.fail(s, &domain.NegotiationError{Op: "set local offer", Err: err})
	}
	e.advance(s, OfferCreated, DescriptionLocalPending)

	return e.finalize(ctx, s)
}

// finalize waits for candidate gathering and encodes the final local
// description.
func (e *Engine) finalize(ctx context.Context, s *session) (string, error) {
	timer := time.NewTimer(e.gatherTimeout)
	defer timer.Stop()

	select {
	case <-s.conn.GatheringComplete():
	case <-timer.C:
		return "", e.fail(s, &domain.NegotiationError{Op: "gather", Err: ErrGatherTimeout})
	case <-ctx.Done():
		return "", e.fail(s, &domain.NegotiationError{Op: "gather", Err: ctx.Err()})
	}

	desc, ok := s.conn.LocalDescription()
	if !ok {
		return "", e.fail(s, &domain.NegotiationError{Op: "gather", Err: errors.New("no local description")})
	}
	blob, err := EncodeDescription(desc)
	if err != nil {
		return "", e.fail(s, &domain.NegotiationError{Op: "encode description", Err: err})
	}

	e.setDescription(s, DescriptionLocalSet)
	return blob, nil
}

func (e *Engine) setDescription(s *session, desc DescriptionState) {
	e.mu.Lock()
	s.desc = desc
	e.mu.Unlock()
}

func (e *Engine) advance(s *session, to State, desc DescriptionState) {
	e.mu.Lock()
	from := s.state
	s.state = to
	s.desc = desc
	s.history = append(s.history, to)
	e.mu.Unlock()

	e.log.Debug().
		Str("session", s.id).
		Str("from", from.String()).
		Str("to", to.String()).
		Str("description", desc.String()).
		Msg("state transition")
	e.notify(to)
}

func (e *Engine) fail(s *session, err error) error {
	e.log.Error().Err(err).Str("session", s.id).Str("state", s.state.String()).Msg("negotiation failed")
	e.advance(s, Failed, s.desc)
	return err
}

func (e *Engine) notify(state State) {
	if e.onState != nil {
		e.onState(state)
	}
}
