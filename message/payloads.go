package message

// Payload shapes for the reserved runtime message types. Domain packages
// define their own payload types; these are the ones the runtime itself
// produces.

// SnapshotPayload is the payload of a TypeStateSnapshot reply.
type SnapshotPayload struct {
	CmpID    string `json:"cmp_id"`
	Snapshot any    `json:"snapshot"`
}

// FirehoseMsg is the envelope payload for TypeFirehoseRecv and
// TypeFirehosePut: the wrapped message plus its metadata at capture time.
type FirehoseMsg struct {
	CmpID string  `json:"cmp_id"`
	Msg   Message `json:"msg"`
	Meta  *Meta   `json:"msg_meta,omitempty"`
	TS    int64   `json:"ts"`
}

// FirehoseState is the envelope payload for TypeFirehoseRecvState.
type FirehoseState struct {
	CmpID string  `json:"cmp_id"`
	Msg   Message `json:"msg"`
}

// FirehoseSnapshot is the envelope payload for TypeFirehosePublishState.
type FirehoseSnapshot struct {
	CmpID    string `json:"cmp_id"`
	Snapshot any    `json:"snapshot"`
	TS       int64  `json:"ts"`
}
