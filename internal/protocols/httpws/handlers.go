package httpws

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"hydrogen-gateway/internal/auth"
	"hydrogen-gateway/internal/devices"
	"hydrogen-gateway/internal/message"
	"hydrogen-gateway/internal/protocols"
)

// deviceWire is the wire shape for a device in REST responses: camelCase
// fields, connectionStatus/healthStatus as their ordinal level rather than
// the internal descriptive string.
type deviceWire struct {
	DeviceID         string            `json:"deviceId"`
	DeviceName       string            `json:"deviceName"`
	DeviceType       string            `json:"deviceType"`
	Manufacturer     string            `json:"manufacturer"`
	Model            string            `json:"model"`
	ConnectionStatus int               `json:"connectionStatus"`
	HealthStatus     int               `json:"healthStatus"`
	Properties       map[string]string `json:"properties,omitempty"`
}

// newDeviceWire builds the list-endpoint shape (no properties).
func newDeviceWire(info devices.Info) deviceWire {
	return deviceWire{
		DeviceID:         info.DeviceID,
		DeviceName:       info.DeviceName,
		DeviceType:       info.DeviceType,
		Manufacturer:     info.Manufacturer,
		Model:            info.Model,
		ConnectionStatus: info.ConnectionStatus.Level(),
		HealthStatus:     info.HealthStatus.Level(),
	}
}

// newDeviceWireWithProperties builds the single-device shape, which also
// carries the device's properties map.
func newDeviceWireWithProperties(info devices.Info) deviceWire {
	w := newDeviceWire(info)
	w.Properties = info.Properties
	return w
}

func connInfoFrom(wc *wsConn, r *http.Request) protocols.ConnectionInfo {
	return protocols.ConnectionInfo{
		ConnectionID:  wc.id,
		RemoteAddress: r.RemoteAddr,
		ConnectedAt:   wc.connectedAt,
		LastActivity:  wc.lastActivity,
	}
}

// handleListDevices returns a bare JSON array, per spec.md §6 — no
// success envelope wrapper.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	if s.devices == nil {
		writeJSON(w, http.StatusOK, []deviceWire{})
		return
	}
	all := s.devices.GetAllDevices()
	out := make([]deviceWire, len(all))
	for i, info := range all {
		out[i] = newDeviceWire(info)
	}
	writeJSON(w, http.StatusOK, out)
}

// handleGetDevice returns a bare device object (including properties), per
// spec.md §6 — no success envelope wrapper.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if s.devices == nil {
		writeJSON(w, http.StatusNotFound, errorEnvelope("device not found", http.StatusNotFound))
		return
	}
	info, ok := s.devices.GetDeviceInfo(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorEnvelope("device not found", http.StatusNotFound))
		return
	}
	writeJSON(w, http.StatusOK, newDeviceWireWithProperties(info))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if s.authSvc == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorEnvelope("authentication not configured", http.StatusServiceUnavailable))
		return
	}

	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorEnvelope("invalid request body", http.StatusBadRequest))
		return
	}

	result := s.authSvc.Authenticate(auth.Request{
		Username:      body.Username,
		Password:      body.Password,
		RemoteAddress: r.RemoteAddr,
		Method:        auth.MethodBasic,
		Timestamp:     time.Now().UTC(),
	})
	if !result.Success {
		writeJSON(w, http.StatusUnauthorized, errorEnvelope(result.ErrorMessage, http.StatusUnauthorized))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"token":     result.Token.Token,
		"expiresAt": result.Token.ExpiresAt.Unix(),
		"user": map[string]interface{}{
			"userId":   result.Token.UserID,
			"username": result.Token.Username,
			"role":     result.Token.Role.Level(),
		},
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if s.authSvc == nil {
		writeJSON(w, http.StatusOK, successEnvelope(nil))
		return
	}
	if token, ok := bearerToken(r); ok {
		s.authSvc.RevokeToken(token)
	}
	writeJSON(w, http.StatusOK, successEnvelope(nil))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.statsMu.Lock()
	requests, errs := s.requests, s.errors
	s.statsMu.Unlock()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "running",
		"uptime":      int64(time.Since(s.startedAt).Seconds()),
		"connections": s.GetConnectionCount(),
		"requests":    requests,
		"errors":      errs,
	})
}

func (s *Server) handleHealthEndpoint(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"healthy":   s.IsHealthy(),
		"status":    s.GetHealthStatus(),
		"timestamp": time.Now().UTC().Unix(),
	})
}

// handleWebSocket upgrades the connection, assigns a "ws_"+16hex id, and
// pumps inbound frames into the message callback until the client closes.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", zap.Error(err))
		return
	}

	id := newWSConnectionID()
	now := time.Now().UTC()
	wc := &wsConn{id: id, conn: conn, connectedAt: now, lastActivity: now}

	s.wsMu.Lock()
	s.wsConns[id] = wc
	s.wsMu.Unlock()

	s.TrackConnect(connInfoFrom(wc, r))

	defer func() {
		s.wsMu.Lock()
		delete(s.wsConns, id)
		s.wsMu.Unlock()
		conn.Close()
		s.TrackDisconnect(id)
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		s.wsMu.Lock()
		wc.lastActivity = time.Now().UTC()
		s.wsMu.Unlock()
		s.TouchActivity(id)

		msg, err := message.Parse(data)
		if err != nil {
			s.logger.Debug("dropping malformed websocket frame", zap.String("connectionId", id), zap.Error(err))
			continue
		}
		s.DispatchMessage(id, msg)
	}
}
