package event

import (
	"time"

	"github.com/google/uuid"
)

// Type discriminator for event payloads
type Type int32

const (
	TypeUnknown Type = iota
	TypeCollateralDeposited
	TypeCollateralRedeemed
	TypeDebtMinted
	TypeDebtBurned
	TypePositionLiquidated
)

func (t Type) String() string {
	switch t {
	case TypeCollateralDeposited:
		return "CollateralDeposited"
	case TypeCollateralRedeemed:
		return "CollateralRedeemed"
	case TypeDebtMinted:
		return "DebtMinted"
	case TypeDebtBurned:
		return "DebtBurned"
	case TypePositionLiquidated:
		return "PositionLiquidated"
	default:
		return "Unknown"
	}
}

// Event is the interface all payloads implement.
type Event interface {
	EventType() Type
}

// Envelope wraps every committed operation in the log. The sequence is a
// global monotonic counter assigned by the engine; events are only emitted
// for operations that fully committed.
type Envelope struct {
	Sequence  int64     `json:"sequence"`
	EventID   uuid.UUID `json:"event_id"`
	Type      Type      `json:"-"`
	TypeName  string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
	Payload   Event     `json:"payload"`
}

// NewEnvelope stamps a payload with identity and ordering metadata.
func NewEnvelope(sequence int64, ts time.Time, payload Event) Envelope {
	return Envelope{
		Sequence:  sequence,
		EventID:   uuid.New(),
		Type:      payload.EventType(),
		TypeName:  payload.EventType().String(),
		Timestamp: ts,
		Payload:   payload,
	}
}
