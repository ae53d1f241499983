package domain

import "context"

// Relay is the client's handle on the relay channel.
type Relay interface {
	Connect(ctx context.Context) error
	Send(ev Event) error
	Close()
}

// Handler receives relay lifecycle and signaling events, in the order the
// relay delivered them.
type Handler interface {
	OnRelayOpened()
	OnRelayClosed(err error)
	OnRelayError(err error)
	OnUserAdded(name string)
	OnUserRemoved(name string)
	OnCallInvite(invite CallInvite)
	OnCallAnswer(answer CallAnswer)
}

// Connection is a single peer media connection.
type Connection interface {
	AddStream(stream Stream) error
	CreateOffer() (Description, error)
	CreateAnswer() (Description, error)
	SetLocalDescription(desc Description) error
	SetRemoteDescription(desc Description) error
	// LocalDescription returns the current local description, including
	// every candidate gathered so far.
	LocalDescription() (Description, bool)
	// GatheringComplete is closed once candidate gathering has finished.
	GatheringComplete() <-chan struct{}
	OnICEConnectionStateChange(fn func(state string))
	Close() error
}

// ConnectionFactory creates peer connections.
type ConnectionFactory interface {
	NewConnection(iceServers []ICEServer) (Connection, error)
}

// MediaConstraints selects which local tracks to acquire.
type MediaConstraints struct {
	Audio bool
	Video bool
}

// Stream is a set of local tracks ready to be attached to a Connection.
type Stream interface {
	ID() string
	Kinds() []string
	Close() error
}

// MediaSource acquires local media.
type MediaSource interface {
	Acquire(ctx context.Context, constraints MediaConstraints) (Stream, error)
}

// Observer is told about state changes the UI may want to render.
type Observer interface {
	ParticipantAdded(name string, self bool)
	ParticipantRemoved(name string)
	SelectionChanged(name string, selected bool)
	CallStateChanged(state string)
	CallFailed(err error)
	RelayClosed(err error)
}
