package matching

import (
	"cmp"
	"container/heap"
	"slices"
	"time"
)

type priceHeap interface {
	heap.Interface
	top() int64
}

type bookSide struct {
	side   Side
	levels map[int64]*priceLevel
	prices priceHeap
}

func newBookSide(side Side) *bookSide {
	s := &bookSide{side: side, levels: make(map[int64]*priceLevel, 1024)}
	if side == Buy {
		s.prices = &maxPriceHeap{}
	} else {
		s.prices = &minPriceHeap{}
	}
	return s
}

// best returns the best live price, dropping stale heap entries on the way.
func (s *bookSide) best() (int64, bool) {
	for s.prices.Len() > 0 {
		p := s.prices.top()
		if lv := s.levels[p]; lv != nil && !lv.empty() {
			return p, true
		}
		heap.Pop(s.prices)
	}
	return 0, false
}

func (s *bookSide) levelAt(price int64) *priceLevel {
	lv := s.levels[price]
	if lv == nil {
		lv = &priceLevel{side: s.side, price: price}
		s.levels[price] = lv
		heap.Push(s.prices, price)
		s.compact()
	}
	return lv
}

// compact rebuilds the heap once stale entries outnumber live levels.
func (s *bookSide) compact() {
	if s.prices.Len() <= 2*len(s.levels)+64 {
		return
	}
	if s.side == Buy {
		h := make(maxPriceHeap, 0, len(s.levels))
		for p := range s.levels {
			h = append(h, p)
		}
		heap.Init(&h)
		s.prices = &h
		return
	}
	h := make(minPriceHeap, 0, len(s.levels))
	for p := range s.levels {
		h = append(h, p)
	}
	heap.Init(&h)
	s.prices = &h
}

// marketable reports whether an incoming order at price crosses a resting level at best.
func (s *bookSide) marketable(price, best int64) bool {
	if s.side == Sell {
		// resting asks, incoming buy
		return price >= best
	}
	return price <= best
}

type Option func(*OrderBook)

// WithEmitter routes book changes to e.
func WithEmitter(e Emitter) Option {
	return func(b *OrderBook) {
		if e != nil {
			b.emit = e
		}
	}
}

// WithClock sets the clock used to stamp arrival time.
func WithClock(now func() time.Time) Option {
	return func(b *OrderBook) {
		if now != nil {
			b.now = now
		}
	}
}

// OrderBook is a single-instrument limit order book with price-time priority.
// It is not safe for concurrent use: exactly one goroutine may call it.
type OrderBook struct {
	bids   *bookSide
	asks   *bookSide
	byID   map[uint64]*lvNode
	nextID uint64
	emit   Emitter
	now    func() time.Time
}

func NewOrderBook(opts ...Option) *OrderBook {
	b := &OrderBook{
		bids: newBookSide(Buy),
		asks: newBookSide(Sell),
		byID: make(map[uint64]*lvNode, 1024),
		emit: nopEmitter{},
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *OrderBook) sideOf(s Side) *bookSide {
	if s == Buy {
		return b.bids
	}
	return b.asks
}

// Insert assigns a new id, matches against the opposite side and rests any
// remainder. The returned order carries the remaining quantity; zero means it
// was fully filled and is not in the book.
func (b *OrderBook) Insert(side Side, price, qty int64) (Order, error) {
	if err := validate(side, price, qty); err != nil {
		return Order{}, err
	}
	b.nextID++
	taker := Order{ID: b.nextID, Side: side, Price: price, Qty: qty, Time: b.now().UnixNano()}

	b.match(&taker)
	if taker.Qty > 0 {
		b.rest(taker)
	}
	return taker, nil
}

func (b *OrderBook) match(taker *Order) {
	opp := b.sideOf(taker.Side.Opposite())
	for taker.Qty > 0 {
		best, ok := opp.best()
		if !ok || !opp.marketable(taker.Price, best) {
			return
		}
		lv := opp.levels[best]
		maker := lv.head

		exec := min(taker.Qty, maker.order.Qty)
		taker.Qty -= exec
		maker.order.Qty -= exec
		b.emit.Traded(Trade{
			TakerID: taker.ID,
			MakerID: maker.order.ID,
			Side:    taker.Side,
			Price:   best,
			Qty:     exec,
		})

		if maker.order.Qty == 0 {
			lv.remove(maker)
			delete(b.byID, maker.order.ID)
		}
		// one message per fill, listing what is left at this price
		b.emit.LevelChanged(best, lv.orders())
		if lv.empty() {
			delete(opp.levels, best)
		}
	}
}

func (b *OrderBook) rest(o Order) {
	lv := b.sideOf(o.Side).levelAt(o.Price)
	n := &lvNode{order: o}
	lv.pushBack(n)
	b.byID[o.ID] = n
	b.emit.LevelChanged(o.Price, lv.orders())
}

// Delete removes a resting order. Unknown ids return ErrOrderNotFound and
// change nothing.
func (b *OrderBook) Delete(id uint64) error {
	n := b.byID[id]
	if n == nil {
		return ErrOrderNotFound
	}
	b.unlink(n)
	b.emit.LevelChanged(n.lv.price, n.lv.orders())
	return nil
}

func (b *OrderBook) unlink(n *lvNode) {
	lv := n.lv
	lv.remove(n)
	delete(b.byID, n.order.ID)
	if lv.empty() {
		delete(b.sideOf(lv.side).levels, lv.price)
	}
}

// Update changes price and/or quantity of a resting order. Side is kept.
//
// Same price: a smaller or equal quantity is applied in place and keeps queue
// position; a larger one moves the order to the back of its level. A new price
// is a cancel-replace: the old id is retired and the returned order carries a
// fresh id, possibly already (partially) filled.
func (b *OrderBook) Update(id uint64, price, qty int64) (Order, error) {
	if price <= 0 {
		return Order{}, ErrInvalidPrice
	}
	if qty <= 0 {
		return Order{}, ErrInvalidQuantity
	}
	n := b.byID[id]
	if n == nil {
		return Order{}, ErrOrderNotFound
	}
	if price != n.order.Price {
		side := n.order.Side
		b.unlink(n)
		b.emit.LevelChanged(n.lv.price, n.lv.orders())
		return b.Insert(side, price, qty)
	}

	lv := n.lv
	if qty > n.order.Qty {
		lv.remove(n)
		n.order.Qty = qty
		n.order.Time = b.now().UnixNano()
		lv.pushBack(n)
	} else {
		n.order.Qty = qty
	}
	b.emit.LevelChanged(price, lv.orders())
	return n.order, nil
}

// Find looks an order up by id through the index.
func (b *OrderBook) Find(id uint64) (Order, bool) {
	n := b.byID[id]
	if n == nil {
		return Order{}, false
	}
	return n.order, true
}

func (b *OrderBook) BestBid() (int64, bool) { return b.bids.best() }
func (b *OrderBook) BestAsk() (int64, bool) { return b.asks.best() }

// Len is the number of resting orders.
func (b *OrderBook) Len() int { return len(b.byID) }

// LastID is the most recently assigned order id.
func (b *OrderBook) LastID() uint64 { return b.nextID }

// Orders returns the orders resting at price, on whichever side holds it.
func (b *OrderBook) Orders(price int64) (Level, bool) {
	if lv := b.bids.levels[price]; lv != nil {
		return lv.snapshot(), true
	}
	if lv := b.asks.levels[price]; lv != nil {
		return lv.snapshot(), true
	}
	return Level{}, false
}

// Side returns one side's levels in priority order (bids high to low, asks low to high).
func (b *OrderBook) Side(s Side) []Level {
	bs := b.sideOf(s)
	out := make([]Level, 0, len(bs.levels))
	for _, lv := range bs.levels {
		out = append(out, lv.snapshot())
	}
	slices.SortFunc(out, func(x, y Level) int {
		if s == Buy {
			return cmp.Compare(y.Price, x.Price)
		}
		return cmp.Compare(x.Price, y.Price)
	})
	return out
}

// Levels returns every level of both sides ordered by ascending price.
func (b *OrderBook) Levels() []Level {
	out := make([]Level, 0, len(b.bids.levels)+len(b.asks.levels))
	for _, lv := range b.bids.levels {
		out = append(out, lv.snapshot())
	}
	for _, lv := range b.asks.levels {
		out = append(out, lv.snapshot())
	}
	slices.SortFunc(out, func(x, y Level) int { return cmp.Compare(x.Price, y.Price) })
	return out
}

func validate(side Side, price, qty int64) error {
	if !side.Valid() {
		return ErrInvalidSide
	}
	if price <= 0 {
		return ErrInvalidPrice
	}
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	return nil
}
