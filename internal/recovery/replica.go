package recovery

import (
	"slices"
	"time"

	"matchfeed.com/internal/feed"
	"matchfeed.com/internal/matching"
)

// FoldResult tells the caller what folding one message did besides updating the book.
type FoldResult struct {
	Reset bool   // message came from a new engine session; replica was cleared first
	Gap   bool   // seq was not last+1
	Stale bool   // seq at or below the last applied one; ignored
	Want  uint64 // expected seq when Gap
}

// Replica rebuilds the book from incremental messages alone. Each message
// replaces the whole level at its price; an empty order list removes the
// price from both sides, since a price lives on one side at a time.
type Replica struct {
	bids    map[int64][]feed.OrderRecord
	asks    map[int64][]feed.OrderRecord
	session string
	lastSeq uint64
	gaps    uint64
}

func NewReplica() *Replica {
	return &Replica{
		bids: make(map[int64][]feed.OrderRecord),
		asks: make(map[int64][]feed.OrderRecord),
	}
}

func (r *Replica) Fold(m feed.IncrementalMessage) FoldResult {
	var res FoldResult
	if m.Session != r.session {
		if r.session != "" {
			res.Reset = true
			r.reset()
		}
		r.session = m.Session
	}
	if r.lastSeq != 0 && m.Seq <= r.lastSeq {
		res.Stale = true
		return res
	}
	if m.Seq != r.lastSeq+1 {
		res.Gap = true
		res.Want = r.lastSeq + 1
		r.gaps++
	}

	r.foldLevel(m)
	r.lastSeq = m.Seq
	return res
}

func (r *Replica) foldLevel(m feed.IncrementalMessage) {
	side, ok := m.Side()
	switch {
	case !ok:
		delete(r.bids, m.Price)
		delete(r.asks, m.Price)
	case side == matching.Buy:
		r.bids[m.Price] = m.Orders
		delete(r.asks, m.Price)
	default:
		r.asks[m.Price] = m.Orders
		delete(r.bids, m.Price)
	}
}

// Restore replaces the replica with the content of a snapshot, as a
// late-joining consumer does before folding messages after s.LastSeq.
func (r *Replica) Restore(s feed.RecoverySnapshot) {
	r.reset()
	for _, m := range s.Messages() {
		r.foldLevel(m)
	}
	r.session = s.Session
	r.lastSeq = s.LastSeq
	r.gaps = s.Gaps
}

func (r *Replica) reset() {
	clear(r.bids)
	clear(r.asks)
	r.lastSeq = 0
	r.gaps = 0
}

func (r *Replica) LastSeq() uint64 { return r.lastSeq }
func (r *Replica) Gaps() uint64    { return r.gaps }
func (r *Replica) Session() string { return r.session }
func (r *Replica) LevelCount() int { return len(r.bids) + len(r.asks) }

func (r *Replica) prices() []int64 {
	ps := make([]int64, 0, len(r.bids)+len(r.asks))
	for p := range r.bids {
		ps = append(ps, p)
	}
	for p := range r.asks {
		ps = append(ps, p)
	}
	slices.Sort(ps)
	return ps
}

func (r *Replica) level(p int64) []feed.OrderRecord {
	if lv, ok := r.bids[p]; ok {
		return lv
	}
	return r.asks[p]
}

// Snapshot assembles every level, sorted by numeric price.
func (r *Replica) Snapshot(now time.Time) feed.RecoverySnapshot {
	ps := r.prices()
	levels := make([][]feed.OrderRecord, 0, len(ps))
	for _, p := range ps {
		levels = append(levels, slices.Clone(r.level(p)))
	}
	return feed.RecoverySnapshot{
		Type:      feed.TypeRecovery,
		Session:   r.session,
		LastSeq:   r.lastSeq,
		Gaps:      r.gaps,
		CreatedAt: now,
		Levels:    levels,
	}
}

// Levels returns the replica in the engine's Levels shape, for comparison.
func (r *Replica) Levels() []matching.Level {
	ps := r.prices()
	out := make([]matching.Level, 0, len(ps))
	for _, p := range ps {
		recs := r.level(p)
		lv := matching.Level{Price: p, Orders: make([]matching.Order, len(recs))}
		for i, rec := range recs {
			lv.Orders[i] = rec.Order()
		}
		if len(recs) > 0 {
			lv.Side = recs[0].Side
		}
		out = append(out, lv)
	}
	return out
}
