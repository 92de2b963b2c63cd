package client

import (
	"fmt"
	"time"

	"hydrogen-gateway/internal/message"
)

// DiscoverDevices asks the server for devices, optionally filtered by type,
// and refreshes the local device cache from the response.
func (c *Client) DiscoverDevices(deviceTypes []string) (*message.Message, error) {
	if !c.IsConnected() {
		return nil, fmt.Errorf("client: not connected to server")
	}

	payload := map[string]interface{}{}
	if len(deviceTypes) > 0 {
		payload["deviceTypes"] = deviceTypes
	}
	msg := message.New(message.TypeDiscoveryRequest, "devices/discover", payload)

	resp, err := c.SendMessage(msg, c.cfg.MessageTimeout)
	if err != nil {
		return nil, err
	}

	if respPayload, ok := resp.Payload.(map[string]interface{}); ok {
		if rawDevices, ok := respPayload["devices"].([]interface{}); ok {
			devices := make([]map[string]interface{}, 0, len(rawDevices))
			for _, d := range rawDevices {
				if dm, ok := d.(map[string]interface{}); ok {
					devices = append(devices, dm)
				}
			}
			c.deviceCacheMu.Lock()
			c.deviceCache = devices
			c.deviceCacheUpdated = time.Now().UTC()
			c.deviceCacheMu.Unlock()
		}
	}
	return resp, nil
}

// GetDevices returns the last discovered device list without contacting
// the server.
func (c *Client) GetDevices() []map[string]interface{} {
	c.deviceCacheMu.Lock()
	defer c.deviceCacheMu.Unlock()
	out := make([]map[string]interface{}, len(c.deviceCache))
	copy(out, c.deviceCache)
	return out
}

// GetDeviceInfo looks up deviceId in the cached device list.
func (c *Client) GetDeviceInfo(deviceID string) (map[string]interface{}, bool) {
	c.deviceCacheMu.Lock()
	defer c.deviceCacheMu.Unlock()
	for _, d := range c.deviceCache {
		if id, _ := d["deviceId"].(string); id == deviceID {
			return d, true
		}
	}
	return nil, false
}

// GetDeviceProperties requests a device's current property values, or a
// named subset when properties is non-empty.
func (c *Client) GetDeviceProperties(deviceID string, properties []string) (*message.Message, error) {
	if !c.IsConnected() {
		return nil, fmt.Errorf("client: not connected to server")
	}
	params := map[string]interface{}{"deviceId": deviceID}
	if len(properties) > 0 {
		params["properties"] = properties
	}
	msg := message.New(message.TypeCommand, "devices/"+deviceID+"/commands", map[string]interface{}{
		"command":    "get_properties",
		"parameters": params,
	})
	return c.SendMessage(msg, c.cfg.MessageTimeout)
}

// SetDeviceProperties writes one or more properties on a device.
func (c *Client) SetDeviceProperties(deviceID string, properties map[string]interface{}) (*message.Message, error) {
	if !c.IsConnected() {
		return nil, fmt.Errorf("client: not connected to server")
	}
	params := map[string]interface{}{"deviceId": deviceID, "properties": properties}
	msg := message.New(message.TypeCommand, "devices/"+deviceID+"/commands", map[string]interface{}{
		"command":    "set_properties",
		"parameters": params,
	})
	return c.SendMessage(msg, c.cfg.MessageTimeout)
}

// ExecuteCommand sends command with parameters to deviceId and blocks for
// the result.
func (c *Client) ExecuteCommand(deviceID, command string, parameters map[string]interface{}) (*message.Message, error) {
	if !c.IsConnected() {
		return nil, fmt.Errorf("client: not connected to server")
	}
	if parameters == nil {
		parameters = map[string]interface{}{}
	}
	parameters["deviceId"] = deviceID
	msg := message.New(message.TypeCommand, "devices/"+deviceID+"/commands", map[string]interface{}{
		"command":    command,
		"parameters": parameters,
	})
	return c.SendMessage(msg, c.cfg.MessageTimeout)
}

// ExecuteCommandAsync is the non-blocking counterpart to ExecuteCommand.
func (c *Client) ExecuteCommandAsync(deviceID, command string, parameters map[string]interface{}, cb func(*message.Message, error)) {
	if !c.IsConnected() {
		if cb != nil {
			cb(nil, fmt.Errorf("client: not connected to server"))
		}
		return
	}
	if parameters == nil {
		parameters = map[string]interface{}{}
	}
	parameters["deviceId"] = deviceID
	msg := message.New(message.TypeCommand, "devices/"+deviceID+"/commands", map[string]interface{}{
		"command":    command,
		"parameters": parameters,
	})
	c.SendMessageAsync(msg, cb)
}

// BatchCommand is one entry of an ExecuteBatchCommands call.
type BatchCommand struct {
	Command    string
	Parameters map[string]interface{}
}

// ExecuteBatchCommands sends a batch_execute command wrapping commands, with
// the timeout scaled by the batch size the way the original client does.
func (c *Client) ExecuteBatchCommands(deviceID string, commands []BatchCommand, sequential bool) (*message.Message, error) {
	if !c.IsConnected() {
		return nil, fmt.Errorf("client: not connected to server")
	}

	commandList := make([]map[string]interface{}, 0, len(commands))
	for _, bc := range commands {
		commandList = append(commandList, map[string]interface{}{
			"command":    bc.Command,
			"parameters": bc.Parameters,
		})
	}
	params := map[string]interface{}{
		"deviceId":   deviceID,
		"sequential": sequential,
		"commands":   commandList,
	}
	msg := message.New(message.TypeCommand, "devices/"+deviceID+"/commands", map[string]interface{}{
		"command":    "batch_execute",
		"parameters": params,
	})

	timeout := c.cfg.MessageTimeout * time.Duration(len(commands))
	if timeout <= 0 {
		timeout = c.cfg.MessageTimeout
	}
	if c.cfg.MaxBatchTimeout > 0 && timeout > c.cfg.MaxBatchTimeout {
		timeout = c.cfg.MaxBatchTimeout
	}
	return c.SendMessage(msg, timeout)
}
