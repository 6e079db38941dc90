package engine

import (
	"fmt"

	"go.uber.org/zap"

	"matchfeed.com/pkg/wal"
)

// Journal persists commands before they are applied. *wal.Writer satisfies it.
type Journal interface {
	Append(payload []byte) error
	Flush() error
	Close() error
}

// ReplayJournal re-applies every command recorded at path to e, in order and
// at its recorded time. A half-written last record from a crash is cut off so
// the file can be appended to again. Rejected commands are replayed too; they
// were rejected the first time as well and change nothing.
func ReplayJournal(path string, e *Engine) (int, error) {
	var codec BinaryCmdCodec
	st, err := wal.Replay(path, wal.ReplayOptions{AllowTruncatedTail: true}, func(payload []byte) error {
		cmd, err := codec.Decode(payload)
		if err != nil {
			return err
		}
		_, _ = e.apply(cmd)
		return nil
	})
	if err != nil {
		return st.Records, fmt.Errorf("replay %s: %w", path, err)
	}
	if st.TruncatedTail {
		e.log.Warn("journal has a truncated tail, cutting it off",
			zap.String("path", path), zap.Int64("offset", st.LastGoodOffset))
		if err := wal.TruncateTo(path, st.LastGoodOffset); err != nil {
			return st.Records, err
		}
	}
	e.log.Info("journal replayed",
		zap.String("path", path),
		zap.Int("records", st.Records),
		zap.Uint64("seq", e.Sequence()),
		zap.Int("resting", e.Resting()))
	return st.Records, nil
}
