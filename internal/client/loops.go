package client

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"hydrogen-gateway/internal/message"
)

func (c *Client) startMessageProcessing() {
	if !atomic.CompareAndSwapInt32(&c.procActive, 0, 1) {
		return
	}
	c.wg.Add(1)
	go c.messageProcessingLoop()
	c.logger.Debug("client: message processing started")
}

func (c *Client) stopMessageProcessing() {
	atomic.StoreInt32(&c.procActive, 0)
}

// IsMessageProcessingActive reports whether the receive loop is running.
func (c *Client) IsMessageProcessingActive() bool {
	return atomic.LoadInt32(&c.procActive) == 1
}

// messageProcessingLoop is the single receive task: for a given connection,
// messages are handled strictly in arrival order.
func (c *Client) messageProcessingLoop() {
	defer c.wg.Done()
	for atomic.LoadInt32(&c.procActive) == 1 && atomic.LoadInt32(&c.shutdown) == 0 {
		if !c.IsConnected() {
			time.Sleep(100 * time.Millisecond)
			continue
		}

		data, err := c.transport.Receive()
		if err != nil {
			if atomic.LoadInt32(&c.shutdown) == 1 {
				return
			}
			c.logger.Debug("client: receive error", zap.Error(err))
			time.Sleep(10 * time.Millisecond)
			continue
		}

		msg, err := message.Parse(data)
		if err != nil {
			c.logger.Error("client: failed to parse incoming message", zap.Error(err))
			c.recordError()
			continue
		}
		c.handleIncomingMessage(msg)
		c.recordReceived()
	}
	c.logger.Debug("client: message processing loop stopped")
}

func (c *Client) heartbeatLoop() {
	defer c.wg.Done()
	for {
		select {
		case <-c.stopCh:
			c.logger.Debug("client: heartbeat loop stopped")
			return
		case <-time.After(c.cfg.HeartbeatInterval):
		}
		if atomic.LoadInt32(&c.shutdown) == 1 {
			return
		}
		if !c.IsConnected() {
			continue
		}

		hb := message.New(message.TypeHeartbeat, "", map[string]interface{}{
			"timestamp": time.Now().UTC().UnixMilli(),
		})
		payload, err := hb.Serialize()
		if err != nil {
			c.logger.Warn("client: failed to encode heartbeat", zap.Error(err))
			continue
		}
		if err := c.transport.Send(payload); err != nil {
			c.logger.Warn("client: failed to send heartbeat", zap.Error(err))
		}
	}
}

func (c *Client) reconnectionLoop() {
	defer c.wg.Done()
	for {
		select {
		case <-c.stopCh:
			c.logger.Debug("client: reconnection loop stopped")
			return
		case <-time.After(time.Second):
		}
		if atomic.LoadInt32(&c.shutdown) == 1 {
			return
		}
		if c.IsConnected() || atomic.LoadInt32(&c.connecting) == 1 {
			continue
		}
		c.attemptReconnection()
	}
}

func (c *Client) attemptReconnection() bool {
	if !c.cfg.EnableAutoReconnect {
		return false
	}

	attempts := atomic.LoadInt32(&c.reconnectAttempts)
	if c.cfg.MaxReconnectAttempts > 0 && int(attempts) >= c.cfg.MaxReconnectAttempts {
		c.logger.Error("client: maximum reconnection attempts exceeded", zap.Int("max", c.cfg.MaxReconnectAttempts))
		return false
	}
	if time.Since(c.lastReconnectAt) < c.cfg.ReconnectInterval {
		return false
	}

	c.lastReconnectAt = time.Now()
	atomic.AddInt32(&c.reconnectAttempts, 1)
	c.statsMu.Lock()
	c.stats.ReconnectionAttempts++
	c.statsMu.Unlock()

	c.logger.Info("client: attempting reconnection", zap.Int32("attempt", attempts+1))

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ConnectTimeout)
	defer cancel()
	ok, err := c.Connect(ctx)
	if err != nil {
		c.logger.Warn("client: reconnection attempt failed", zap.Error(err))
	}
	return ok
}
