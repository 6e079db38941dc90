package feed

const (
	incPrefix = "md:inc:"
	recPrefix = "md:rec:"
)

// IncrementalTopic is where per-mutation messages for instrument are published.
func IncrementalTopic(instrument string) string { return incPrefix + instrument }

// RecoveryTopic carries the periodic snapshots.
func RecoveryTopic(instrument string) string { return recPrefix + instrument }
