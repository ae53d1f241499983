package signal

import (
	"errors"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"peercall/internal/domain"
)

// Dispatcher decodes inbound relay messages and routes them to a Handler.
type Dispatcher struct {
	handler domain.Handler
	log     zerolog.Logger
}

// NewDispatcher creates a dispatcher that delivers events to handler.
func NewDispatcher(handler domain.Handler) *Dispatcher {
	return &Dispatcher{
		handler: handler,
		log:     log.With().Str("component", "dispatcher").Logger(),
	}
}

// Dispatch decodes data and routes it. Unknown and malformed messages are
// logged and dropped.
func (d *Dispatcher) Dispatch(data []byte) {
	ev, err := Decode(data)
	if errors.Is(err, ErrUnknownMessage) {
		d.log.Info().Err(err).Msg("ignoring message")
		return
	}
	if err != nil {
		d.log.Warn().Err(err).Bytes("data", data).Msg("dropping malformed message")
		return
	}
	d.Route(ev)
}

// Route delivers an already decoded event.
func (d *Dispatcher) Route(ev domain.Event) {
	switch e := ev.(type) {
	case domain.UserAdded:
		d.handler.OnUserAdded(e.Name)
	case domain.UserRemoved:
		d.handler.OnUserRemoved(e.Name)
	case domain.CallInvite:
		d.handler.OnCallInvite(e)
	case domain.CallAnswer:
		d.handler.OnCallAnswer(e)
	default:
		// Call/offer and Call/accepted travel client to relay only.
		d.log.Info().Str("object", ev.Object()).Str("action", ev.Action()).Msg("unhandled event")
	}
}
