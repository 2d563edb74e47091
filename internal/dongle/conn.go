package dongle

import (
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/d21d3q/wmbusd/internal/metrics"
)

const deliveryQueueSize = 256

// Conn runs a Receiver against a transport. One goroutine reads frames and a
// second delivers listener callbacks in order.
type Conn struct {
	name     string
	rx       Receiver
	tr       Transport
	src      *streamSource
	listener Listener
	log      logrus.FieldLogger

	queue     chan func()
	recvDone  chan struct{}
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error

	// deliverMu is held while a callback is checked and run.
	deliverMu  sync.Mutex
	inCallback atomic.Bool
}

// Open initializes the dongle and starts receiving. The transport is owned
// by the returned Conn.
func Open(name string, tr Transport, rx Receiver, l Listener, log logrus.FieldLogger) (*Conn, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if name == "" {
		name = rx.Name()
	}
	if err := rx.Init(tr); err != nil {
		_ = tr.Close()
		return nil, err
	}
	c := &Conn{
		name:     name,
		rx:       rx,
		tr:       tr,
		src:      newStreamSource(tr),
		listener: l,
		log:      log.WithFields(logrus.Fields{"dongle": name, "receiver": rx.Name()}),
		queue:    make(chan func(), deliveryQueueSize),
		recvDone: make(chan struct{}),
	}
	go c.deliver()
	go c.receive()
	c.log.Info("dongle connection opened")
	return c, nil
}

func (c *Conn) Name() string { return c.name }

// Done is closed when the receive loop has ended.
func (c *Conn) Done() <-chan struct{} { return c.recvDone }

// Close stops receiving and closes the transport. It is safe to call more
// than once and from a listener callback. A callback running when Close is
// called may finish; no callback starts after Close returns.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		if c.inCallback.Load() {
			c.closed.Store(true)
		} else {
			c.deliverMu.Lock()
			c.closed.Store(true)
			c.deliverMu.Unlock()
		}
		c.src.close()
		c.closeErr = c.tr.Close()
		<-c.recvDone
		c.log.Info("dongle connection closed")
	})
	return c.closeErr
}

func (c *Conn) receive() {
	defer close(c.recvDone)
	defer close(c.queue)
	var pending []byte
	consecutive := 0
	for {
		res, err := c.rx.ReadFrame(c.src)
		if n := len(res.Discarded); n > 0 {
			pending = append(pending, res.Discarded...)
			metrics.OctetsDiscarded.WithLabelValues(c.name).Add(float64(n))
			if res.Frame == nil {
				consecutive++
				if t := c.rx.ResetThreshold(); t > 0 && consecutive >= t {
					c.reset(consecutive)
					consecutive = 0
				}
			}
		}
		if res.Frame != nil {
			consecutive = 0
			pending = c.flush(pending)
			metrics.FramesReceived.WithLabelValues(c.name).Inc()
			f := *res.Frame
			c.enqueue(func() { c.listener.NewFrame(f) })
		} else if len(pending) >= maxDiscardBatch || c.src.Buffered() == 0 {
			pending = c.flush(pending)
		}
		if err != nil {
			c.flush(pending)
			if !c.closed.Load() {
				c.log.WithError(err).Warn("dongle stream closed")
			}
			cause := err
			c.enqueue(func() { c.listener.StreamClosed(cause) })
			return
		}
	}
}

func (c *Conn) reset(attempts int) {
	metrics.DongleResets.WithLabelValues(c.name).Inc()
	c.log.WithField("attempts", attempts).Warn("resetting dongle after consecutive discards")
	if err := c.rx.Reset(c.tr); err != nil {
		c.log.WithError(err).Error("dongle reset failed")
	}
}

func (c *Conn) flush(pending []byte) []byte {
	if len(pending) == 0 {
		return pending
	}
	batch := pending
	c.enqueue(func() { c.listener.Discarded(batch) })
	return nil
}

func (c *Conn) enqueue(fn func()) {
	select {
	case c.queue <- fn:
	case <-c.src.stop:
	}
}

func (c *Conn) deliver() {
	for fn := range c.queue {
		c.deliverMu.Lock()
		if !c.closed.Load() {
			c.inCallback.Store(true)
			c.safeCall(fn)
			c.inCallback.Store(false)
		}
		c.deliverMu.Unlock()
	}
}

func (c *Conn) safeCall(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			metrics.ListenerPanics.WithLabelValues(c.name).Inc()
			c.log.WithField("panic", r).Error("listener panicked")
		}
	}()
	fn()
}
