package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// ThreatRansomware is the threat type carried by distress alerts.
const ThreatRansomware = "RANSOMWARE"

// Alert is the distress message exchanged between agents on the grid.
// It is built on send and discarded after it has been handled.
type Alert struct {
	SenderIP   string `json:"sender_ip"`
	ThreatType string `json:"threat_type"`
	Timestamp  uint64 `json:"timestamp"`
}

// AlertSink receives every alert the grid listener manages to parse.
type AlertSink interface {
	HandleAlert(alert Alert)
}

// NewAlert creates an alert stamped with the current unix time.
func NewAlert(senderIP, threatType string) Alert {
	return Alert{
		SenderIP:   senderIP,
		ThreatType: threatType,
		Timestamp:  uint64(time.Now().Unix()),
	}
}

// Encode serializes the alert into its datagram payload.
func (a Alert) Encode() ([]byte, error) {
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("failed to encode alert: %w", err)
	}
	return data, nil
}

// ParseAlert decodes a datagram payload. The schema is strict: keys are matched
// case sensitively, and unknown, duplicate or missing keys, null values, wrong
// types and trailing data all yield ErrMalformedAlert.
func ParseAlert(payload []byte) (Alert, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return Alert{}, fmt.Errorf("%w: not a JSON object", ErrMalformedAlert)
	}

	var alert Alert
	targets := map[string]interface{}{
		"sender_ip":   &alert.SenderIP,
		"threat_type": &alert.ThreatType,
		"timestamp":   &alert.Timestamp,
	}
	seen := make(map[string]bool, len(targets))

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return Alert{}, fmt.Errorf("%w: %v", ErrMalformedAlert, err)
		}
		key, _ := tok.(string)
		target, known := targets[key]
		if !known {
			return Alert{}, fmt.Errorf("%w: unknown field %q", ErrMalformedAlert, key)
		}
		if seen[key] {
			return Alert{}, fmt.Errorf("%w: duplicate field %q", ErrMalformedAlert, key)
		}
		seen[key] = true

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return Alert{}, fmt.Errorf("%w: %v", ErrMalformedAlert, err)
		}
		if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			return Alert{}, fmt.Errorf("%w: %s is null", ErrMalformedAlert, key)
		}
		if err := json.Unmarshal(raw, target); err != nil {
			return Alert{}, fmt.Errorf("%w: %s: %v", ErrMalformedAlert, key, err)
		}
	}

	if tok, err := dec.Token(); err != nil || tok != json.Delim('}') {
		return Alert{}, fmt.Errorf("%w: unterminated object", ErrMalformedAlert)
	}
	if _, err := dec.Token(); err != io.EOF {
		return Alert{}, fmt.Errorf("%w: trailing data", ErrMalformedAlert)
	}
	if len(seen) != len(targets) {
		return Alert{}, fmt.Errorf("%w: missing field", ErrMalformedAlert)
	}
	return alert, nil
}
