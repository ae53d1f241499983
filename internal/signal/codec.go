package signal

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"peercall/internal/domain"
)

// ErrUnknownMessage is returned by Decode for an (object, action) pair it
// does not know. Callers ignore such messages.
var ErrUnknownMessage = errors.New("unknown message")

// envelope is the relay wire format.
type envelope struct {
	Object string          `json:"Object"`
	Action string          `json:"Action"`
	Data   json.RawMessage `json:"Data,omitempty"`
}

// Decode parses one relay message into its typed event.
func Decode(data []byte) (domain.Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	switch env.Object + "/" + env.Action {
	case domain.ObjectUser + "/" + domain.ActionAdd:
		name, err := decodeName(env.Data)
		if err != nil {
			return nil, fmt.Errorf("decode User/add: %w", err)
		}
		return domain.UserAdded{Name: name}, nil

	case domain.ObjectUser + "/" + domain.ActionRemove:
		name, err := decodeName(env.Data)
		if err != nil {
			return nil, fmt.Errorf("decode User/remove: %w", err)
		}
		return domain.UserRemoved{Name: name}, nil

	case domain.ObjectCall + "/" + domain.ActionOffer:
		var offer domain.CallOffer
		if err := decodeObject(env.Data, &offer); err != nil {
			return nil, fmt.Errorf("decode Call/offer: %w", err)
		}
		if offer.LocalDescription == "" {
			return nil, fmt.Errorf("decode Call/offer: missing LocalDescription")
		}
		return offer, nil

	case domain.ObjectCall + "/" + domain.ActionInvite:
		var invite domain.CallInvite
		if err := decodeObject(env.Data, &invite); err != nil {
			return nil, fmt.Errorf("decode Call/invite: %w", err)
		}
		return invite, nil

	case domain.ObjectCall + "/" + domain.ActionAccepted:
		var accepted domain.CallAccepted
		if err := decodeObject(env.Data, &accepted); err != nil {
			return nil, fmt.Errorf("decode Call/accepted: %w", err)
		}
		return accepted, nil

	case domain.ObjectCall + "/" + domain.ActionAnswer:
		blob, err := decodeAnswer(env.Data)
		if err != nil {
			return nil, fmt.Errorf("decode Call/answer: %w", err)
		}
		return domain.CallAnswer{LocalDescription: blob}, nil
	}

	return nil, fmt.Errorf("%w: %s/%s", ErrUnknownMessage, env.Object, env.Action)
}

// Encode serializes ev into the relay wire format.
func Encode(ev domain.Event) ([]byte, error) {
	var (
		data []byte
		err  error
	)

	switch e := ev.(type) {
	case domain.UserAdded:
		data, err = json.Marshal(e.Name)
	case domain.UserRemoved:
		data, err = json.Marshal(e.Name)
	case domain.CallOffer:
		if e.Users == nil {
			e.Users = []string{}
		}
		data, err = json.Marshal(e)
	case domain.CallInvite:
		if e != (domain.CallInvite{}) {
			data, err = json.Marshal(e)
		}
	case domain.CallAccepted:
		if e != (domain.CallAccepted{}) {
			data, err = json.Marshal(e)
		}
	case domain.CallAnswer:
		data, err = json.Marshal(e.LocalDescription)
	default:
		return nil, fmt.Errorf("encode: unsupported event %T", ev)
	}
	if err != nil {
		return nil, fmt.Errorf("encode %s/%s: %w", ev.Object(), ev.Action(), err)
	}

	return json.Marshal(envelope{
		Object: ev.Object(),
		Action: ev.Action(),
		Data:   data,
	})
}

func decodeName(raw json.RawMessage) (string, error) {
	var name string
	if err := json.Unmarshal(raw, &name); err != nil {
		return "", err
	}
	if name == "" {
		return "", fmt.Errorf("empty participant name")
	}
	return name, nil
}

// decodeObject fills v from a payload sent either as a JSON object or as a
// string holding one. A missing or empty payload leaves v untouched.
func decodeObject(raw json.RawMessage, v any) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return err
		}
		if s == "" {
			return nil
		}
		raw = []byte(s)
	}
	return json.Unmarshal(raw, v)
}

// decodeAnswer accepts the bare description blob or an object carrying it
// in LocalDescription.
func decodeAnswer(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		if !bytes.HasPrefix(bytes.TrimSpace([]byte(s)), []byte("{")) {
			if s == "" {
				return "", fmt.Errorf("empty description")
			}
			return s, nil
		}
	}

	var wrapped struct {
		LocalDescription string `json:"LocalDescription"`
	}
	if err := decodeObject(raw, &wrapped); err != nil {
		return "", err
	}
	if wrapped.LocalDescription == "" {
		return "", fmt.Errorf("empty description")
	}
	return wrapped.LocalDescription, nil
}
