package ws

const (
	OpSub   = "sub"
	OpUnsub = "unsub"
)

type ClientMsg struct {
	Type   string   `json:"type"`   // "sub" | "unsub"
	Topics []string `json:"topics"` // e.g. md:inc:BTC-USD, md:rec:BTC-USD
}
