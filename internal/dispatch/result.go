package dispatch

type Outcome string

const (
	OutcomeSent           Outcome = "sent"
	OutcomeSkipped        Outcome = "skipped"
	OutcomeDeliveryFailed Outcome = "delivery_failed"
)

type SkipReason string

const (
	SkipInvalidMessage   SkipReason = "invalid_message"
	SkipRoomNotFound     SkipReason = "room_not_found"
	SkipNoMembers        SkipReason = "no_members"
	SkipRoomDisconnected SkipReason = "room_disconnected"
	SkipMalformedRoom    SkipReason = "malformed_room"
	SkipNoReceiver       SkipReason = "no_receiver"
	SkipReceiverNotFound SkipReason = "receiver_not_found"
	SkipNoPushToken      SkipReason = "no_push_token"
	SkipDuplicate        SkipReason = "duplicate"
)

// Result describes what one dispatch did. Reason is set only for OutcomeSkipped,
// DeliveryID only for OutcomeSent and Err only for OutcomeDeliveryFailed.
type Result struct {
	Outcome    Outcome
	Reason     SkipReason
	ReceiverID string
	DeliveryID string
	Err        error
}

func Skipped(reason SkipReason) Result {
	return Result{Outcome: OutcomeSkipped, Reason: reason}
}

func (r Result) Sent() bool {
	return r.Outcome == OutcomeSent
}
