package engine

import (
	"encoding/binary"
	"errors"

	"matchfeed.com/internal/matching"
)

// journal record layout, little endian, fixed length
const (
	cmdWalVersion = 1
	cmdRecordLen  = 43

	offVer     = 0
	offType    = 1
	offReqID   = 2  // uint64
	offTS      = 10 // int64 as uint64
	offOrderID = 18 // uint64
	offSide    = 26 // uint8
	offPrice   = 27 // int64 as uint64
	offQty     = 35 // int64 as uint64
)

var (
	ErrBadCmdRecordLen = errors.New("wal cmd: bad record length")
	ErrBadCmdVersion   = errors.New("wal cmd: bad version")
	ErrBadCmdType      = errors.New("wal cmd: bad cmd type")
)

// BinaryCmdCodec encodes mutating commands for the journal.
type BinaryCmdCodec struct{}

func (BinaryCmdCodec) Encode(dst []byte, cmd Command) ([]byte, error) {
	if !cmd.Type.mutating() {
		return nil, ErrBadCmdType
	}
	if cap(dst) < cmdRecordLen {
		dst = make([]byte, cmdRecordLen)
	} else {
		dst = dst[:cmdRecordLen]
	}
	dst[offVer] = cmdWalVersion
	dst[offType] = byte(cmd.Type)
	binary.LittleEndian.PutUint64(dst[offReqID:], cmd.ReqID)
	binary.LittleEndian.PutUint64(dst[offTS:], uint64(cmd.TS))
	binary.LittleEndian.PutUint64(dst[offOrderID:], cmd.OrderID)
	dst[offSide] = byte(cmd.Side)
	binary.LittleEndian.PutUint64(dst[offPrice:], uint64(cmd.Price))
	binary.LittleEndian.PutUint64(dst[offQty:], uint64(cmd.Qty))
	return dst, nil
}

func (BinaryCmdCodec) Decode(payload []byte) (Command, error) {
	if len(payload) != cmdRecordLen {
		return Command{}, ErrBadCmdRecordLen
	}
	if payload[offVer] != cmdWalVersion {
		return Command{}, ErrBadCmdVersion
	}
	ct := CmdType(payload[offType])
	if !ct.mutating() {
		return Command{}, ErrBadCmdType
	}
	return Command{
		Type:    ct,
		ReqID:   binary.LittleEndian.Uint64(payload[offReqID:]),
		TS:      int64(binary.LittleEndian.Uint64(payload[offTS:])),
		OrderID: binary.LittleEndian.Uint64(payload[offOrderID:]),
		Side:    matching.Side(payload[offSide]),
		Price:   int64(binary.LittleEndian.Uint64(payload[offPrice:])),
		Qty:     int64(binary.LittleEndian.Uint64(payload[offQty:])),
	}, nil
}
