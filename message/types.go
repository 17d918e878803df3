package message

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/clyfe/systems-toolbox/errors"
)

// FirehoseDomain is the reserved namespace for observability envelopes.
// User messages must not use it.
const FirehoseDomain = "firehose"

// Type provides structured type information for messages.
// It enables type-safe handler dispatch and topic routing by clearly
// identifying the domain and name of each message.
//
// Type constants should be defined in domain packages to maintain
// clear ownership and avoid coupling. This package only provides the
// type definition itself and the reserved runtime types.
//
// Example definition in a domain package:
//
//	var PingRequest = message.Type{
//	    Domain: "ping",
//	    Name:   "req",
//	}
type Type struct {
	// Domain identifies the business or system domain.
	// Examples: "ping", "cmd", "sensors"
	Domain string

	// Name identifies the specific message type within the domain.
	// Examples: "req", "get-state", "gps"
	Name string
}

// Key returns the slash notation representation: "domain/name".
// This is the wire tag used for topic routing and handler lookup.
func (t Type) Key() string {
	return fmt.Sprintf("%s/%s", t.Domain, t.Name)
}

// String returns the same as Key()
func (t Type) String() string {
	return t.Key()
}

// IsValid checks if the Type has all required fields populated
// with non-empty values.
func (t Type) IsValid() bool {
	return t.Domain != "" && t.Name != ""
}

// IsFirehose reports whether the type lies in the reserved firehose namespace.
func (t Type) IsFirehose() bool {
	return t.Domain == FirehoseDomain
}

// Equal compares two Type instances for equality.
func (t Type) Equal(other Type) bool {
	return t.Domain == other.Domain && t.Name == other.Name
}

// ParseType creates a Type from slash notation: "domain/name".
// Returns an error if the format is invalid.
func ParseType(s string) (Type, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 2 {
		return Type{}, errors.WrapInvalid(errors.ErrInvalidData, "Type", "ParseType",
			fmt.Sprintf("expected 2 parts, got %d", len(parts)))
	}

	for i, part := range parts {
		if part == "" {
			return Type{}, errors.WrapInvalid(errors.ErrInvalidData, "Type", "ParseType",
				fmt.Sprintf("part %d is empty", i+1))
		}
	}

	return Type{Domain: parts[0], Name: parts[1]}, nil
}

// MarshalJSON encodes the type as its slash notation key. The zero Type
// encodes as the empty string so partially-populated envelopes survive a
// wire round trip.
func (t Type) MarshalJSON() ([]byte, error) {
	if t == (Type{}) {
		return json.Marshal("")
	}
	return json.Marshal(t.Key())
}

// UnmarshalJSON decodes a type from its slash notation key.
func (t *Type) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return errors.WrapInvalid(err, "Type", "UnmarshalJSON", "key decoding")
	}
	if s == "" {
		*t = Type{}
		return nil
	}
	parsed, err := ParseType(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Reserved message types consumed or produced by the component runtime.
var (
	// TypeGetState requests a state snapshot; answered with TypeStateSnapshot.
	TypeGetState = Type{Domain: "cmd", Name: "get-state"}

	// TypePublishState triggers a snapshot publication on the sliding-out channel.
	TypePublishState = Type{Domain: "cmd", Name: "publish-state"}

	// TypeStateSnapshot is the reply to TypeGetState, carrying {cmp-id, snapshot}.
	TypeStateSnapshot = Type{Domain: "state", Name: "snapshot"}

	// TypeAppState carries a component's published state snapshot on sliding-out.
	TypeAppState = Type{Domain: "app", Name: "state"}

	// TypeFirehoseRecv wraps every message received on the ordered in-channel.
	TypeFirehoseRecv = Type{Domain: FirehoseDomain, Name: "cmp-recv"}

	// TypeFirehoseRecvState wraps every message received on the sliding in-channel.
	TypeFirehoseRecvState = Type{Domain: FirehoseDomain, Name: "cmp-recv-state"}

	// TypeFirehosePut wraps every ordinary message a component emits.
	TypeFirehosePut = Type{Domain: FirehoseDomain, Name: "cmp-put"}

	// TypeFirehosePublishState wraps every state snapshot publication.
	TypeFirehosePublishState = Type{Domain: FirehoseDomain, Name: "cmp-publish-state"}
)
