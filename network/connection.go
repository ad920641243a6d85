package network

import (
	"bufio"
	"context"
	"crypto/tls"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/lixenwraith/buildrun/logging"
)

// conn is one framed TCP connection with its own reader and writer goroutines
type conn struct {
	id       string
	addr     string
	lastSeen atomic.Int64 // UnixNano

	nc     net.Conn
	reader *bufio.Reader
	writer *bufio.Writer

	sendCh chan Frame

	closeCh   chan struct{}
	closeOnce sync.Once

	cfg    *Config
	logger *zap.Logger
}

func newConn(nc net.Conn, cfg *Config, logger *zap.Logger) *conn {
	c := &conn{
		addr:    nc.RemoteAddr().String(),
		nc:      nc,
		reader:  bufio.NewReaderSize(nc, 16*1024),
		writer:  bufio.NewWriterSize(nc, 16*1024),
		sendCh:  make(chan Frame, cfg.SendQueueSize),
		closeCh: make(chan struct{}),
		cfg:     cfg,
		logger:  logger,
	}
	c.lastSeen.Store(time.Now().UnixNano())
	return c
}

// handshakeRead reads one frame synchronously before the loops start
func (c *conn) handshakeRead() (Frame, error) {
	if err := c.nc.SetReadDeadline(time.Now().Add(c.cfg.ConnectTimeout)); err != nil {
		return Frame{}, err
	}
	f, err := DecodeFrame(c.reader)
	if err != nil {
		return Frame{}, err
	}
	return f, c.nc.SetReadDeadline(time.Time{})
}

// handshakeWrite writes one frame synchronously before the loops start
func (c *conn) handshakeWrite(f Frame) error {
	if err := c.nc.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout)); err != nil {
		return err
	}
	if err := f.Encode(c.writer); err != nil {
		return err
	}
	return c.writer.Flush()
}

// start launches the I/O loops; onClose runs once after the connection drops
func (c *conn) start(handler func(*conn, Frame), onClose func(*conn)) {
	logging.Go(c.logger, "conn-read", func() { c.readLoop(handler) })
	logging.Go(c.logger, "conn-write", c.writeLoop)
	logging.Go(c.logger, "conn-monitor", func() {
		<-c.closeCh
		onClose(c)
	})
}

// send queues a frame; false if closed or the queue is full
func (c *conn) send(f Frame) bool {
	select {
	case <-c.closeCh:
		return false
	default:
	}
	select {
	case c.sendCh <- f:
		return true
	default:
		return false
	}
}

func (c *conn) close() {
	c.closeOnce.Do(func() {
		close(c.closeCh)
		c.nc.Close()
	})
}

func (c *conn) readLoop(handler func(*conn, Frame)) {
	defer c.close()

	for {
		if c.cfg.DisconnectTimeout > 0 {
			_ = c.nc.SetReadDeadline(time.Now().Add(c.cfg.DisconnectTimeout))
		}
		f, err := DecodeFrame(c.reader)
		if err != nil {
			select {
			case <-c.closeCh:
			default:
				c.logger.Debug("connection read ended", zap.String("addr", c.addr), zap.Error(err))
			}
			return
		}
		c.lastSeen.Store(time.Now().UnixNano())
		if f.Type == FrameHeartbeat {
			continue
		}
		handler(c, f)
	}
}

func (c *conn) writeLoop() {
	defer c.close()

	var heartbeat <-chan time.Time
	if c.cfg.HeartbeatInterval > 0 {
		ticker := time.NewTicker(c.cfg.HeartbeatInterval)
		defer ticker.Stop()
		heartbeat = ticker.C
	}

	write := func(f Frame) bool {
		_ = c.nc.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
		if err := f.Encode(c.writer); err != nil {
			return false
		}
		return c.writer.Flush() == nil
	}

	for {
		select {
		case <-c.closeCh:
			return
		case f := <-c.sendCh:
			if !write(f) {
				return
			}
		case <-heartbeat:
			if !write(Frame{Type: FrameHeartbeat}) {
				return
			}
		}
	}
}

// dial establishes a connection with optional TLS
func dial(ctx context.Context, cfg *Config) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: cfg.ConnectTimeout}
	if cfg.TLS != nil {
		td := &tls.Dialer{NetDialer: dialer, Config: cfg.TLS}
		return td.DialContext(ctx, "tcp", cfg.Address)
	}
	return dialer.DialContext(ctx, "tcp", cfg.Address)
}
