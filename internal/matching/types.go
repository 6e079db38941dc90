package matching

import (
	"fmt"

	"matchfeed.com/pkg/xerr"
)

type Side uint8

const (
	Buy Side = iota + 1
	Sell
)

func (s Side) Valid() bool { return s == Buy || s == Sell }

// Opposite returns the side an incoming order of side s trades against.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

func (s Side) String() string {
	switch s {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	default:
		return fmt.Sprintf("side(%d)", uint8(s))
	}
}

func (s Side) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, ErrInvalidSide
	}
	return []byte(s.String()), nil
}

func (s *Side) UnmarshalText(b []byte) error {
	v, err := ParseSide(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ParseSide accepts "buy"/"sell", "b"/"s" and the legacy "1"/"2" codes.
func ParseSide(s string) (Side, error) {
	switch s {
	case "buy", "BUY", "Buy", "b", "1":
		return Buy, nil
	case "sell", "SELL", "Sell", "s", "2":
		return Sell, nil
	}
	return 0, ErrInvalidSide
}

// Order is a value copy of one order. Book internals hold their own copy, so
// mutating a returned Order never touches the book.
type Order struct {
	ID    uint64
	Side  Side
	Price int64 // ticks
	Qty   int64 // remaining
	Time  int64 // arrival, unix nanos
}

type Trade struct {
	TakerID uint64
	MakerID uint64
	Side    Side // taker side
	Price   int64
	Qty     int64
}

// Level is a snapshot of one price level, orders in FIFO priority order.
type Level struct {
	Side   Side
	Price  int64
	Orders []Order
}

func (l Level) TotalQty() int64 {
	var n int64
	for _, o := range l.Orders {
		n += o.Qty
	}
	return n
}

// Emitter receives book changes synchronously, inside the mutating call.
// LevelChanged carries the full current content of the level at price
// (empty once the level is gone).
type Emitter interface {
	LevelChanged(price int64, orders []Order)
	Traded(t Trade)
}

type nopEmitter struct{}

func (nopEmitter) LevelChanged(int64, []Order) {}
func (nopEmitter) Traded(Trade)                {}

var (
	ErrInvalidSide     = xerr.New(xerr.InvalidArgument, "side must be buy or sell")
	ErrInvalidPrice    = xerr.New(xerr.InvalidArgument, "price must be positive")
	ErrInvalidQuantity = xerr.New(xerr.InvalidArgument, "quantity must be positive")
	ErrOrderNotFound   = xerr.New(xerr.NotFound, "order not found")
)
