package message

import (
	"github.com/google/uuid"

	"github.com/clyfe/systems-toolbox/pkg/timestamp"
)

// Direction for message flow relative to a component
type Direction string

// Direction constants for metadata sequence appends
const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// Stamp holds per-component timing information accumulated as a message
// flows through the system. Values are Unix milliseconds; 0 means unset.
type Stamp struct {
	InTS  int64 `json:"in_ts,omitempty"`
	OutTS int64 `json:"out_ts,omitempty"`
}

// Meta is the out-of-band metadata record attached to every message.
// It is never inlined into the payload.
//
// Invariants maintained by the runtime:
//   - CorrID differs on every emit, including forwarding.
//   - Tag is assigned on first emit if absent and never rewritten.
//   - A component ID appears at most once consecutively in CmpSeq.
type Meta struct {
	// CmpSeq is the ordered sequence of component IDs the message has traversed.
	CmpSeq []string `json:"cmp_seq,omitempty"`

	// CorrID is a fresh unique identifier assigned on every emit.
	CorrID string `json:"corr_id,omitempty"`

	// Tag is a unique identifier preserved across a logical message's full path.
	Tag string `json:"tag,omitempty"`

	// Stamps holds per-component timing, keyed by component ID.
	Stamps map[string]Stamp `json:"stamps,omitempty"`

	// From identifies the publishing component on snapshot messages.
	From string `json:"from,omitempty"`
}

// NewID generates a 128-bit random identifier with negligible collision
// probability. Used for both correlation IDs and tags.
func NewID() string {
	return uuid.New().String()
}

// Clone returns a deep copy so per-message metadata can be rewritten
// without aliasing the sender's record.
func (m *Meta) Clone() *Meta {
	if m == nil {
		return &Meta{}
	}
	c := &Meta{
		CorrID: m.CorrID,
		Tag:    m.Tag,
		From:   m.From,
	}
	if len(m.CmpSeq) > 0 {
		c.CmpSeq = append([]string(nil), m.CmpSeq...)
	}
	if len(m.Stamps) > 0 {
		c.Stamps = make(map[string]Stamp, len(m.Stamps))
		for k, v := range m.Stamps {
			c.Stamps[k] = v
		}
	}
	return c
}

// AppendSeq appends cmpID to the component sequence if either the sequence
// is empty or the direction is in; forwarding an already-sequenced message
// back out leaves the sequence unchanged. Consecutive duplicates are never
// produced.
func (m *Meta) AppendSeq(cmpID string, dir Direction) {
	if len(m.CmpSeq) == 0 || dir == DirectionIn {
		if n := len(m.CmpSeq); n > 0 && m.CmpSeq[n-1] == cmpID {
			return
		}
		m.CmpSeq = append(m.CmpSeq, cmpID)
	}
}

// StampIn records the reception timestamp for cmpID.
func (m *Meta) StampIn(cmpID string) {
	m.stamp(cmpID, func(s *Stamp) { s.InTS = timestamp.Now() })
}

// StampOut records the emission timestamp for cmpID.
func (m *Meta) StampOut(cmpID string) {
	m.stamp(cmpID, func(s *Stamp) { s.OutTS = timestamp.Now() })
}

func (m *Meta) stamp(cmpID string, set func(*Stamp)) {
	if m.Stamps == nil {
		m.Stamps = make(map[string]Stamp, 1)
	}
	s := m.Stamps[cmpID]
	set(&s)
	m.Stamps[cmpID] = s
}
