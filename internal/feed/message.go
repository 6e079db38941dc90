package feed

import (
	"time"

	"matchfeed.com/internal/matching"
)

const (
	TypeIncremental = "inc"
	TypeRecovery    = "rec"
)

// OrderRecord is one order as it appears on the feed.
type OrderRecord struct {
	ID    uint64        `json:"id"`
	Qty   int64         `json:"qty"`
	Price int64         `json:"price"`
	Side  matching.Side `json:"side"`
	TS    int64         `json:"ts"`
}

func (r OrderRecord) Order() matching.Order {
	return matching.Order{ID: r.ID, Side: r.Side, Price: r.Price, Qty: r.Qty, Time: r.TS}
}

// FromOrders converts book orders to records. The result is never nil.
func FromOrders(orders []matching.Order) []OrderRecord {
	out := make([]OrderRecord, len(orders))
	for i, o := range orders {
		out[i] = OrderRecord{ID: o.ID, Qty: o.Qty, Price: o.Price, Side: o.Side, TS: o.Time}
	}
	return out
}

// IncrementalMessage is the full new content of the level at Price after one
// book mutation step. An empty Orders list means the level was cleared.
type IncrementalMessage struct {
	Type    string        `json:"type"`
	Session string        `json:"session"`
	Seq     uint64        `json:"seq"`
	Price   int64         `json:"price"`
	Orders  []OrderRecord `json:"orders"`
}

func NewIncremental(session string, seq uint64, price int64, orders []matching.Order) IncrementalMessage {
	return IncrementalMessage{
		Type:    TypeIncremental,
		Session: session,
		Seq:     seq,
		Price:   price,
		Orders:  FromOrders(orders),
	}
}

// Side of the level, inferred from its orders. ok is false for a cleared level.
func (m IncrementalMessage) Side() (matching.Side, bool) {
	if len(m.Orders) == 0 {
		return 0, false
	}
	return m.Orders[0].Side, true
}

// RecoverySnapshot is a full book replica as of LastSeq. Levels are sorted
// by ascending price, each in FIFO priority order.
type RecoverySnapshot struct {
	Type      string          `json:"type"`
	Session   string          `json:"session"`
	LastSeq   uint64          `json:"last_seq"`
	Gaps      uint64          `json:"gaps"`
	CreatedAt time.Time       `json:"created_at"`
	Levels    [][]OrderRecord `json:"levels"`
}

// Messages expands the snapshot into one incremental message per level, all
// tagged with LastSeq. Folding them into an empty replica rebuilds the book.
func (s RecoverySnapshot) Messages() []IncrementalMessage {
	out := make([]IncrementalMessage, 0, len(s.Levels))
	for _, lv := range s.Levels {
		if len(lv) == 0 {
			continue
		}
		out = append(out, IncrementalMessage{
			Type:    TypeIncremental,
			Session: s.Session,
			Seq:     s.LastSeq,
			Price:   lv[0].Price,
			Orders:  lv,
		})
	}
	return out
}

// Sink receives incremental messages in generation order. Deliver must not block.
type Sink interface {
	Deliver(msg IncrementalMessage)
}

type SinkFunc func(msg IncrementalMessage)

func (f SinkFunc) Deliver(msg IncrementalMessage) { f(msg) }
