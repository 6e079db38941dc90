package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WSConns = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ws_conns",
		Help: "Active websocket connections",
	})
	WSConnOpenTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ws_conn_open_total",
		Help: "Total websocket connections opened",
	})
	WSConnCloseTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_conn_close_total",
		Help: "Total websocket connections closed, partitioned by close code and reason",
	}, []string{"code", "reason"})
	WSSubOpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_sub_ops_total",
		Help: "Total subscription operations",
	}, []string{"op"}) // sub/unsub
	WSReplayTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ws_replay_total",
		Help: "Last payloads replayed to new subscribers",
	})
	WSMsgsOutTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ws_msgs_out_total",
		Help: "Total websocket messages sent out",
	})
	WSBytesOutTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ws_bytes_out_total",
		Help: "Total websocket bytes sent out",
	})
	WSWriteErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ws_write_errors_total",
		Help: "Total websocket write errors",
	})
	WSDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_dropped_total",
		Help: "Total dropped messages",
	}, []string{"why"})
)

func WSOnOpen() {
	WSConns.Inc()
	WSConnOpenTotal.Inc()
}

func WSOnClose(code int, reason string) {
	WSConns.Dec()
	WSConnCloseTotal.WithLabelValues(strconv.Itoa(code), reason).Inc()
}

func WSObserveWrite(n int, bytes int, err error) {
	if n > 0 {
		WSMsgsOutTotal.Add(float64(n))
	}
	if bytes > 0 {
		WSBytesOutTotal.Add(float64(bytes))
	}
	if err != nil {
		WSWriteErrorsTotal.Inc()
	}
}
