package client

import (
	"go.uber.org/zap"

	"hydrogen-gateway/internal/message"
)

func (c *Client) sendSubscriptionCommand(command, deviceID, key, payloadKey string) bool {
	params := map[string]interface{}{"deviceId": deviceID}
	if key != "" {
		params[payloadKey] = key
	}
	msg := message.New(message.TypeCommand, "devices/"+deviceID+"/commands", map[string]interface{}{
		"command":    command,
		"parameters": params,
	})

	resp, err := c.SendMessage(msg, c.cfg.MessageTimeout)
	if err != nil {
		c.logger.Error("client: subscription command failed", zap.String("command", command), zap.Error(err))
		return false
	}
	if payload, ok := resp.Payload.(map[string]interface{}); ok {
		if success, ok := payload["success"].(bool); ok {
			return success
		}
	}
	return false
}

// SubscribeToProperty records the subscription locally and asks the server
// to start pushing PROPERTY_CHANGE messages for deviceId/property.
func (c *Client) SubscribeToProperty(deviceID, property string) bool {
	c.subMu.Lock()
	if c.propertySub[deviceID] == nil {
		c.propertySub[deviceID] = map[string]bool{}
	}
	c.propertySub[deviceID][property] = true
	c.subMu.Unlock()

	return c.sendSubscriptionCommand("subscribe_property", deviceID, property, "property")
}

// UnsubscribeFromProperty is the symmetric inverse of SubscribeToProperty.
func (c *Client) UnsubscribeFromProperty(deviceID, property string) bool {
	c.subMu.Lock()
	delete(c.propertySub[deviceID], property)
	c.subMu.Unlock()

	return c.sendSubscriptionCommand("unsubscribe_property", deviceID, property, "property")
}

// SubscribeToEvents subscribes to eventType for deviceId, or every event
// type when eventType is empty.
func (c *Client) SubscribeToEvents(deviceID, eventType string) bool {
	c.subMu.Lock()
	if c.eventSub[deviceID] == nil {
		c.eventSub[deviceID] = map[string]bool{}
	}
	c.eventSub[deviceID][eventType] = true
	c.subMu.Unlock()

	return c.sendSubscriptionCommand("subscribe_events", deviceID, eventType, "eventType")
}

// UnsubscribeFromEvents is the symmetric inverse of SubscribeToEvents.
func (c *Client) UnsubscribeFromEvents(deviceID, eventType string) bool {
	c.subMu.Lock()
	delete(c.eventSub[deviceID], eventType)
	c.subMu.Unlock()

	return c.sendSubscriptionCommand("unsubscribe_events", deviceID, eventType, "eventType")
}

// replaySubscriptions re-sends every cached subscription to the server after
// a (re)connect, since the server's own subscription state does not survive
// a dropped connection.
func (c *Client) replaySubscriptions() {
	c.subMu.Lock()
	propertySub := make(map[string][]string, len(c.propertySub))
	for deviceID, props := range c.propertySub {
		for p := range props {
			propertySub[deviceID] = append(propertySub[deviceID], p)
		}
	}
	eventSub := make(map[string][]string, len(c.eventSub))
	for deviceID, events := range c.eventSub {
		for e := range events {
			eventSub[deviceID] = append(eventSub[deviceID], e)
		}
	}
	c.subMu.Unlock()

	for deviceID, props := range propertySub {
		for _, p := range props {
			c.sendSubscriptionCommand("subscribe_property", deviceID, p, "property")
		}
	}
	for deviceID, events := range eventSub {
		for _, e := range events {
			c.sendSubscriptionCommand("subscribe_events", deviceID, e, "eventType")
		}
	}
}
