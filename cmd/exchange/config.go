package main

import (
	"time"

	"matchfeed.com/internal/feed"
	"matchfeed.com/internal/marketdata/gateway"
	"matchfeed.com/internal/marketdata/storage/influxsink"
	"matchfeed.com/pkg/xredis"
)

const serviceName = "exchange"

type Cfg struct {
	Name       string `mapstructure:"name"`
	Instrument string `mapstructure:"instrument"`
	TickSize   string `mapstructure:"tick_size"`
	Console    bool   `mapstructure:"console"`

	Log struct {
		Level string `mapstructure:"level"`
		File  string `mapstructure:"file"`
	} `mapstructure:"log"`

	HTTP struct {
		Addr  string  `mapstructure:"addr"`
		Rate  float64 `mapstructure:"rate"` // 每个 IP+路径 每秒请求数，0 不限
		Burst int     `mapstructure:"burst"`
	} `mapstructure:"http"`

	Engine struct {
		MailboxSize int `mapstructure:"mailbox_size"`
		BatchMax    int `mapstructure:"batch_max"`
		Journal     struct {
			Path    string `mapstructure:"path"` // 为空不写 journal
			BufSize int    `mapstructure:"buf_size"`
		} `mapstructure:"journal"`
	} `mapstructure:"engine"`

	Feed struct {
		Broker         string              `mapstructure:"broker"` // mem | nats | kafka
		NatsURL        string              `mapstructure:"nats_url"`
		Kafka          gateway.KafkaConfig `mapstructure:"kafka"`
		PublishTimeout time.Duration       `mapstructure:"publish_timeout"`
		QueueCapacity  int                 `mapstructure:"queue_capacity"`
		Breaker        feed.BreakerConfig  `mapstructure:"breaker"`
	} `mapstructure:"feed"`

	Recovery struct {
		Period        time.Duration `mapstructure:"period"`
		QueueCapacity int           `mapstructure:"queue_capacity"`
	} `mapstructure:"recovery"`

	Redis struct {
		Enabled       bool          `mapstructure:"enabled"`
		xredis.Config `mapstructure:",squash"`
		Prefix        string        `mapstructure:"prefix"`
		TTL           time.Duration `mapstructure:"ttl"`
		LeaseKey      string        `mapstructure:"lease_key"`
		LeaseTTL      time.Duration `mapstructure:"lease_ttl"`
	} `mapstructure:"redis"`

	Trades struct {
		Influx struct {
			Enabled           bool `mapstructure:"enabled"`
			influxsink.Config `mapstructure:",squash"`
		} `mapstructure:"influx"`
	} `mapstructure:"trades"`

	WS struct {
		SendBuf int `mapstructure:"send_buf"`
		// 每秒握手数（按 IP）和每秒订阅消息数（按连接），0 不限
		ConnRate  float64 `mapstructure:"conn_rate"`
		ConnBurst int     `mapstructure:"conn_burst"`
		MsgRate   float64 `mapstructure:"msg_rate"`
		MsgBurst  int     `mapstructure:"msg_burst"`
	} `mapstructure:"ws"`
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"name":                              serviceName,
		"instrument":                        "BTC-USD",
		"tick_size":                         "0.01",
		"console":                           false,
		"log.level":                         "info",
		"log.file":                          "logs/exchange.log",
		"http.addr":                         ":8080",
		"http.rate":                         50,
		"http.burst":                        100,
		"engine.mailbox_size":               4096,
		"engine.batch_max":                  256,
		"engine.journal.path":               "",
		"engine.journal.buf_size":           64 << 10,
		"feed.broker":                       "mem",
		"feed.nats_url":                     "nats://127.0.0.1:4222",
		"feed.publish_timeout":              "1s",
		"feed.queue_capacity":               0,
		"feed.breaker.max_requests":         1,
		"feed.breaker.interval":             "10s",
		"feed.breaker.timeout":              "3s",
		"feed.breaker.consecutive_failures": 10,
		"recovery.period":                   "5s",
		"recovery.queue_capacity":           0,
		"redis.enabled":                     false,
		"redis.addr":                        "127.0.0.1:6379",
		"redis.prefix":                      "md:snapshot:",
		"redis.ttl":                         "1m",
		"redis.lease_key":                   "md:leader:",
		"redis.lease_ttl":                   "15s",
		"trades.influx.enabled":             false,
		"ws.send_buf":                       1024,
		"ws.conn_rate":                      5,
		"ws.conn_burst":                     20,
		"ws.msg_rate":                       10,
		"ws.msg_burst":                      50,
	}
}
