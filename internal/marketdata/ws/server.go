package ws

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/segmentio/encoding/json"
	"go.uber.org/zap"

	"matchfeed.com/pkg/logger"
	"matchfeed.com/pkg/metrics"
	"matchfeed.com/pkg/ratelimit"
)

const maxFlush = 256 // 单次最多写多少条，防止订阅 topic 极多时一次写爆

var newline = []byte("\n")

type Server struct {
	Hub      *Hub
	Upgrader websocket.Upgrader
	ctx      context.Context
	log      *zap.Logger
	SendBuf  int // per-conn stream queue size
	// 超时参数
	PongWait   time.Duration
	PingPeriod time.Duration
	PingJitter time.Duration
	WriteWait  time.Duration
	ReadLimit  int64
	// 限流，nil 不限：ConnLimit 按远端 IP 限握手，MsgLimit 按连接限 sub/unsub
	ConnLimit *ratelimit.Store
	MsgLimit  *ratelimit.Store
}

func NewServer(ctx context.Context, h *Hub) *Server {
	return &Server{
		Hub: h,
		ctx: ctx,
		log: logger.Named("ws"),
		Upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		SendBuf:    defaultSendBuf,
		PongWait:   60 * time.Second,
		PingPeriod: 30 * time.Second,
		PingJitter: 100 * time.Millisecond,
		WriteWait:  5 * time.Second,
		ReadLimit:  1 << 10,
	}
}

func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	if s.ConnLimit != nil && !s.ConnLimit.Allow(remoteHost(r)) {
		metrics.WSDroppedTotal.WithLabelValues("conn_rate").Inc()
		http.Error(w, "too many connections", http.StatusTooManyRequests)
		return
	}
	wsConn, err := s.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("upgrade failed", zap.String("remote", r.RemoteAddr), zap.Error(err))
		return
	}
	c := NewConn(s.Hub, wsConn, s.SendBuf)
	metrics.WSOnOpen()
	s.log.Debug("conn open", zap.String("conn", c.id), zap.String("remote", r.RemoteAddr))
	go s.writePump(c)
	go s.readPump(c)
}

func (s *Server) readPump(c *Conn) {
	code, reason := websocket.CloseAbnormalClosure, "error"
	defer func() {
		c.hub.RemoveConn(c)
		c.close()
		_ = c.ws.Close()
		if s.MsgLimit != nil {
			s.MsgLimit.Forget(c.id)
		}
		metrics.WSOnClose(code, reason)
		s.log.Debug("conn closed", zap.String("conn", c.id), zap.Int("code", code), zap.String("reason", reason))
	}()

	c.ws.SetReadLimit(s.ReadLimit)
	_ = c.ws.SetReadDeadline(time.Now().Add(s.PongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(s.PongWait))
	})

	for {
		_, b, err := c.ws.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			var ne net.Error
			switch {
			case errors.As(err, &ce):
				code, reason = ce.Code, "client"
			case errors.As(err, &ne) && ne.Timeout():
				reason = "timeout"
			case s.ctx.Err() != nil:
				code, reason = websocket.CloseGoingAway, "shutdown"
			}
			return
		}
		if s.MsgLimit != nil && !s.MsgLimit.Allow(c.id) {
			metrics.WSDroppedTotal.WithLabelValues("msg_rate").Inc()
			continue
		}
		var msg ClientMsg
		if json.Unmarshal(b, &msg) != nil {
			metrics.WSDroppedTotal.WithLabelValues("bad_client_msg").Inc()
			continue
		}
		switch msg.Type {
		case OpSub:
			c.hub.Subscribe(c, msg.Topics)
		case OpUnsub:
			c.hub.Unsubscribe(c, msg.Topics)
		}
	}
}

func (s *Server) writePump(c *Conn) {
	// 随机错开 ping，避免大量连接同一时刻发 ping
	if s.PingJitter > 0 {
		t := time.NewTimer(time.Duration(rand.Int63n(int64(s.PingJitter))))
		select {
		case <-t.C:
		case <-c.done:
			t.Stop()
			return
		case <-s.ctx.Done():
			t.Stop()
			_ = c.ws.Close()
			return
		}
	}

	ticker := time.NewTicker(s.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case <-c.notify:
			batch := c.flush(maxFlush)
			if len(batch) == 0 {
				continue
			}
			n, err := s.writeBatch(c, batch)
			metrics.WSObserveWrite(len(batch), n, err)
			if err != nil {
				s.log.Debug("write failed", zap.String("conn", c.id), zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(s.WriteWait)); err != nil {
				return
			}
		case <-c.done:
			return
		case <-s.ctx.Done():
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutdown"),
				time.Now().Add(s.WriteWait))
			return
		}
	}
}

// writeBatch 批量写：一次 NextWriter 写完本批，多条 JSON 用换行分隔。
func (s *Server) writeBatch(c *Conn, batch [][]byte) (int, error) {
	_ = c.ws.SetWriteDeadline(time.Now().Add(s.WriteWait))
	w, err := c.ws.NextWriter(websocket.TextMessage)
	if err != nil {
		return 0, err
	}
	total := 0
	for i, payload := range batch {
		if i > 0 {
			if _, err := w.Write(newline); err != nil {
				_ = w.Close()
				return total, err
			}
			total++
		}
		n, err := w.Write(payload)
		total += n
		if err != nil {
			_ = w.Close()
			return total, err
		}
	}
	return total, w.Close()
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
