package domain

// Object names used in the relay envelope.
const (
	ObjectUser = "User"
	ObjectCall = "Call"
)

// Actions used in the relay envelope.
const (
	ActionAdd      = "add"
	ActionRemove   = "remove"
	ActionOffer    = "offer"
	ActionInvite   = "invite"
	ActionAccepted = "accepted"
	ActionAnswer   = "answer"
)

// Event is one decoded relay message. The set of implementations is closed;
// each one is keyed by its (Object, Action) pair.
type Event interface {
	Object() string
	Action() string
	event()
}

// UserAdded announces a participant.
type UserAdded struct {
	Name string
}

// UserRemoved announces that a participant left.
type UserRemoved struct {
	Name string
}

// CallOffer is sent by the caller to the relay.
type CallOffer struct {
	Users            []string `json:"Users"`
	LocalDescription string   `json:"LocalDescription"`
}

// CallInvite is delivered by the relay to each callee. LocalDescription is
// the caller's offer blob; it is empty when the relay terminates media
// itself and expects the callee to offer.
type CallInvite struct {
	From             string `json:"From,omitempty"`
	Conference       string `json:"Conference,omitempty"`
	LocalDescription string `json:"LocalDescription,omitempty"`
}

// CallAccepted is the callee's reply to an invite.
type CallAccepted struct {
	Conference       string `json:"Conference,omitempty"`
	LocalDescription string `json:"LocalDescription,omitempty"`
}

// CallAnswer carries the remote description blob back to the caller.
type CallAnswer struct {
	LocalDescription string
}

func (UserAdded) Object() string    { return ObjectUser }
func (UserAdded) Action() string    { return ActionAdd }
func (UserRemoved) Object() string  { return ObjectUser }
func (UserRemoved) Action() string  { return ActionRemove }
func (CallOffer) Object() string    { return ObjectCall }
func (CallOffer) Action() string    { return ActionOffer }
func (CallInvite) Object() string   { return ObjectCall }
func (CallInvite) Action() string   { return ActionInvite }
func (CallAccepted) Object() string { return ObjectCall }
func (CallAccepted) Action() string { return ActionAccepted }
func (CallAnswer) Object() string   { return ObjectCall }
func (CallAnswer) Action() string   { return ActionAnswer }

func (UserAdded) event()    {}
func (UserRemoved) event()  {}
func (CallOffer) event()    {}
func (CallInvite) event()   {}
func (CallAccepted) event() {}
func (CallAnswer) event()   {}

// Description is a session description as exchanged between peers.
type Description struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// Description types.
const (
	DescriptionOffer    = "offer"
	DescriptionAnswer   = "answer"
	DescriptionPranswer = "pranswer"
)
