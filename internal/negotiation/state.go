package negotiation

// State is a negotiation session's position in the offer/answer exchange.
type State int

// Initiator states run Idle through OfferSent to Established; responder
// states run InviteReceived through LocalAnswerCreated. Failed ends either.
const (
	Idle State = iota
	LocalMediaAcquired
	OfferCreated
	OfferSent
	RemoteAnswerApplied
	Established
	InviteReceived
	PeerConnectionReady
	LocalAnswerCreated
	Failed
)

// String returns the lower-case name used in logs and the UI.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case LocalMediaAcquired:
		return "local-media-acquired"
	case OfferCreated:
		return "offer-created"
	case OfferSent:
		return "offer-sent"
	case RemoteAnswerApplied:
		return "remote-answer-applied"
	case Established:
		return "established"
	case InviteReceived:
		return "invite-received"
	case PeerConnectionReady:
		return "peer-connection-ready"
	case LocalAnswerCreated:
		return "local-answer-created"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition can happen in this
// session.
func (s State) Terminal() bool {
	return s == Established || s == Failed
}

// DescriptionState tracks which side's description has been applied.
type DescriptionState int

// Description states in the order a session moves through them.
const (
	DescriptionNone DescriptionState = iota
	// DescriptionLocalPending means a local description is applied and
	// candidates are still being gathered.
	DescriptionLocalPending
	DescriptionLocalSet
	DescriptionRemoteSet
	DescriptionEstablished
)

// String returns the lower-case name used in logs.
func (d DescriptionState) String() string {
	switch d {
	case DescriptionNone:
		return "none"
	case DescriptionLocalPending:
		return "local-pending"
	case DescriptionLocalSet:
		return "local-set"
	case DescriptionRemoteSet:
		return "remote-set"
	case DescriptionEstablished:
		return "established"
	default:
		return "unknown"
	}
}

// Role is the side a session plays in the exchange.
type Role int

// Initiator sends the offer; Responder answers an invite.
const (
	Initiator Role = iota
	Responder
)

// String returns "initiator" or "responder".
func (r Role) String() string {
	if r == Responder {
		return "responder"
	}
	return "initiator"
}
