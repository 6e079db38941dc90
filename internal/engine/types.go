package engine

import (
	"errors"

	"matchfeed.com/internal/matching"
	"matchfeed.com/pkg/xerr"
)

// 命令类型
type CmdType uint8

const (
	CmdInsert CmdType = iota + 1
	CmdUpdate
	CmdDelete
	CmdFind
)

func (t CmdType) String() string {
	switch t {
	case CmdInsert:
		return "insert"
	case CmdUpdate:
		return "update"
	case CmdDelete:
		return "delete"
	case CmdFind:
		return "find"
	}
	return "unknown"
}

// mutating 的命令才写 journal
func (t CmdType) mutating() bool { return t == CmdInsert || t == CmdUpdate || t == CmdDelete }

type Command struct {
	Type    CmdType
	ReqID   uint64 // 上游追踪用，只进日志
	OrderID uint64 // update/delete/find
	Side    matching.Side
	Price   int64
	Qty     int64

	// TS is the arrival time stamped by the actor, unix nanos. Replay reuses it
	// so a rebuilt book carries the same order times.
	TS int64
}

// Result of one command. Order is the order as it stands after the command:
// for insert/update its remaining quantity (0 = fully filled), for find the
// resting order.
type Result struct {
	Order matching.Order
	Found bool
	Seq   uint64 // engine sequence after the command
}

var (
	ErrEngineBusy = xerr.New(xerr.Busy, "engine busy: mailbox full")
	ErrStopped    = errors.New("engine stopped")
	ErrBadCommand = xerr.New(xerr.InvalidArgument, "bad command")
)
