package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ObservationInput is the wire shape of one ingested sample
type ObservationInput struct {
	Timestamp string `json:"timestamp,omitempty"`
	Status    string `json:"status"`
	Count     *int64 `json:"count,omitempty"`
	Volume    *int64 `json:"volume,omitempty"`
	AuthCode  string `json:"auth_code,omitempty"`
}

// ParseStatus validates a status string
func ParseStatus(v string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(v)))
	for _, known := range Statuses {
		if s == known {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, v)
}

// Observation converts the input, applying defaults: now, volume 1, auth code "00"
func (in ObservationInput) Observation(now time.Time) (Observation, error) {
	status, err := ParseStatus(in.Status)
	if err != nil {
		return Observation{}, err
	}

	obs := Observation{
		Timestamp: now,
		Volume:    1,
		Status:    status,
		AuthCode:  "00",
	}

	if in.Timestamp != "" {
		ts, err := ParseTimestamp(in.Timestamp)
		if err != nil {
			return Observation{}, err
		}
		obs.Timestamp = ts
	}

	switch {
	case in.Volume != nil:
		obs.Volume = *in.Volume
	case in.Count != nil:
		obs.Volume = *in.Count
	}
	if obs.Volume < 0 {
		return Observation{}, fmt.Errorf("%w: %d", ErrNegativeVolume, obs.Volume)
	}

	if in.AuthCode != "" {
		if len(in.AuthCode) != 2 {
			return Observation{}, fmt.Errorf("%w: %q", ErrInvalidAuthCode, in.AuthCode)
		}
		obs.AuthCode = in.AuthCode
	}

	return obs, nil
}

// ParseObservation decodes one JSON document into an Observation
func ParseObservation(data []byte, now time.Time) (Observation, error) {
	var in ObservationInput
	if err := json.Unmarshal(data, &in); err != nil {
		return Observation{}, fmt.Errorf("decoding observation: %w", err)
	}
	return in.Observation(now)
}
