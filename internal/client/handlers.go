package client

import (
	"go.uber.org/zap"

	"hydrogen-gateway/internal/message"
)

// handleIncomingMessage dispatches an inbound Message by Type. Heartbeat
// acknowledgements require no action; anything that isn't a recognized
// control type reaches the generic message callback.
func (c *Client) handleIncomingMessage(msg *message.Message) {
	switch msg.Type {
	case message.TypeResponse:
		c.handleResponse(msg)
	case message.TypeEvent:
		c.handleEvent(msg)
	case message.TypeError:
		c.handleError(msg)
	case message.TypePropertyChange:
		c.handlePropertyChange(msg)
	case message.TypeHeartbeat:
		c.logger.Debug("client: heartbeat acknowledged")
	default:
		c.cbMu.RLock()
		cb := c.messageCB
		c.cbMu.RUnlock()
		if cb != nil {
			cb(msg)
		}
	}
}

// handleResponse completes whichever waiter or async callback is registered
// under msg's correlation id. A response for an unknown id is logged at
// debug and dropped; responses without a correlation id are logged and
// dropped since they can't be matched to a request.
func (c *Client) handleResponse(msg *message.Message) {
	id := msg.CorrelationID
	if id == "" {
		id = msg.OriginalMessageID
	}
	if id == "" {
		c.logger.Warn("client: received response without a correlation id")
		return
	}

	c.respMu.Lock()
	if w, ok := c.waiters[id]; ok {
		c.pending[id] = msg
		c.respMu.Unlock()
		select {
		case w.ch <- msg:
		default:
		}
		return
	}
	if cb, ok := c.asyncCBs[id]; ok {
		delete(c.asyncCBs, id)
		c.respMu.Unlock()
		cb(msg, nil)
		return
	}
	c.respMu.Unlock()
	c.logger.Debug("client: received response for unknown message", zap.String("messageId", id))
}

func (c *Client) handleEvent(msg *message.Message) {
	c.cbMu.RLock()
	cb := c.eventCB
	c.cbMu.RUnlock()
	if cb == nil {
		return
	}

	deviceID, eventType, data := "", "", interface{}(nil)
	if payload, ok := msg.Payload.(map[string]interface{}); ok {
		if v, ok := payload["deviceId"].(string); ok {
			deviceID = v
		}
		if v, ok := payload["eventType"].(string); ok {
			eventType = v
		}
		data = payload["data"]
	}
	cb(deviceID, eventType, data)
}

func (c *Client) handleError(msg *message.Message) {
	errMsg := "unknown error"
	if payload, ok := msg.Payload.(map[string]interface{}); ok {
		if v, ok := payload["message"].(string); ok {
			errMsg = v
		}
	}

	c.statsMu.Lock()
	c.stats.Errors++
	c.stats.LastError = errMsg
	c.statsMu.Unlock()

	c.logger.Error("client: server error", zap.String("error", errMsg))
	c.notifyError(errMsg)
}

func (c *Client) handlePropertyChange(msg *message.Message) {
	c.cbMu.RLock()
	cb := c.propertyCB
	c.cbMu.RUnlock()
	if cb == nil {
		return
	}

	deviceID, property := "", ""
	var value interface{}
	if payload, ok := msg.Payload.(map[string]interface{}); ok {
		if v, ok := payload["deviceId"].(string); ok {
			deviceID = v
		}
		if v, ok := payload["property"].(string); ok {
			property = v
		}
		value = payload["value"]
	}
	cb(deviceID, property, value)
}
