package matching

type priceLevel struct {
	side  Side
	price int64
	head  *lvNode
	tail  *lvNode
	size  int
}

// doubly linked FIFO node; byID points straight at it so cancel is O(1)
type lvNode struct {
	prev  *lvNode
	next  *lvNode
	order Order
	lv    *priceLevel
}

// pushBack appends at the tail: arrival order is priority order within a level.
func (l *priceLevel) pushBack(n *lvNode) {
	n.prev, n.next = l.tail, nil
	n.lv = l
	if l.tail != nil {
		l.tail.next = n
	} else {
		l.head = n
	}
	l.tail = n
	l.size++
}

func (l *priceLevel) remove(n *lvNode) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		l.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		l.tail = n.prev
	}
	n.prev, n.next = nil, nil
	l.size--
}

func (l *priceLevel) empty() bool { return l.size == 0 }

// orders copies the level in priority order. Never nil, so an emptied level
// still encodes as an empty list.
func (l *priceLevel) orders() []Order {
	out := make([]Order, 0, l.size)
	for n := l.head; n != nil; n = n.next {
		out = append(out, n.order)
	}
	return out
}

func (l *priceLevel) snapshot() Level {
	return Level{Side: l.side, Price: l.price, Orders: l.orders()}
}
