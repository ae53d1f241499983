package negotiation

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"peercall/internal/domain"
)

// ErrMalformedDescription is returned when a description blob cannot be
// decoded.
var ErrMalformedDescription = errors.New("malformed description")

// EncodeDescription serializes desc as base64 (standard alphabet, padded) of
// its JSON form {"type","sdp"}.
func EncodeDescription(desc domain.Description) (string, error) {
	if err := validate(desc); err != nil {
		return "", err
	}
	data, err := json.Marshal(desc)
	if err != nil {
		return "", fmt.Errorf("encode description: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodeDescription is the inverse of EncodeDescription. Corrupt or
// truncated input returns an error wrapping ErrMalformedDescription.
func DecodeDescription(blob string) (domain.Description, error) {
	data, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return domain.Description{}, fmt.Errorf("%w: base64: %v", ErrMalformedDescription, err)
	}

	var desc domain.Description
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&desc); err != nil {
		return domain.Description{}, fmt.Errorf("%w: json: %v", ErrMalformedDescription, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return domain.Description{}, fmt.Errorf("%w: trailing data", ErrMalformedDescription)
	}
	if err := validate(desc); err != nil {
		return domain.Description{}, err
	}
	return desc, nil
}

func validate(desc domain.Description) error {
	switch desc.Type {
	case domain.DescriptionOffer, domain.DescriptionAnswer, domain.DescriptionPranswer:
	default:
		return fmt.Errorf("%w: type %q", ErrMalformedDescription, desc.Type)
	}
	if desc.SDP == "" {
		return fmt.Errorf("%w: empty sdp", ErrMalformedDescription)
	}
	return nil
}
