package transactions

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Direction classifies a transaction from the account holder's point of view.
// The zero value is Received, matching the fall-through of DirectionFromType.
type Direction int

const (
	Received Direction = iota
	Sent
)

// sendType is the only upstream type value that maps to Sent.
const sendType = "send"

// DirectionFromType maps an upstream transaction type to a Direction.
// Only "send" is Sent; any other value, including "", is Received.
func DirectionFromType(t string) Direction {
	if t == sendType {
		return Sent
	}
	return Received
}

func (d Direction) String() string {
	if d == Sent {
		return "Sent"
	}
	return "Received"
}

// MarshalText encodes the direction as its display label.
func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText accepts the display labels produced by MarshalText.
func (d *Direction) UnmarshalText(b []byte) error {
	switch string(b) {
	case "Sent":
		*d = Sent
	case "Received":
		*d = Received
	default:
		return fmt.Errorf("unknown direction %q", string(b))
	}
	return nil
}

// Transaction is one display row of the activity list.
// Display strings are copied verbatim from the upstream record; an empty
// string means the upstream record did not carry the field.
type Transaction struct {
	Type           Direction `json:"type"`
	CoinImage      *string   `json:"coinImage,omitempty"` // nil when asset.icon_url is null or absent
	CoinName       string    `json:"coinName,omitempty"`
	NativeDisplay  string    `json:"nativeDisplay,omitempty"`
	BalanceDisplay string    `json:"balanceDisplay,omitempty"`

	// Optional metadata used for ordering and grouping.
	Hash         *string          `json:"hash,omitempty"`
	MinedAt      *time.Time       `json:"minedAt,omitempty"`
	Pending      bool             `json:"pending,omitempty"`
	Status       string           `json:"status,omitempty"`
	NativeAmount *decimal.Decimal `json:"nativeAmount,omitempty"`
}
