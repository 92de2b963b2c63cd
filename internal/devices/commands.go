package devices

import (
	"time"

	"go.uber.org/zap"
)

// ExecuteCommand assigns a fresh commandId, records the command as
// pending, and dispatches it asynchronously. It returns immediately with
// the commandId; the result is retrieved later via GetCommandResult.
func (s *Service) ExecuteCommand(cmd Command) (string, error) {
	s.regMu.Lock()
	_, known := s.devices[cmd.DeviceID]
	s.regMu.Unlock()

	cmd.CommandID = newCommandID()
	cmd.Timestamp = time.Now().UTC()
	if cmd.Timeout == 0 {
		cmd.Timeout = s.cfg.DefaultCommandTimeout
	}

	if !known {
		s.recordResult(CommandResult{
			CommandID:    cmd.CommandID,
			DeviceID:     cmd.DeviceID,
			Success:      false,
			ErrorMessage: "device not found",
			CompletedAt:  time.Now().UTC(),
		})
		return cmd.CommandID, nil
	}

	s.cmdMu.Lock()
	s.pending[cmd.CommandID] = &cmd
	s.cmdMu.Unlock()

	go s.runCommand(cmd)
	return cmd.CommandID, nil
}

func (s *Service) runCommand(cmd Command) {
	start := time.Now().UTC()

	done := make(chan struct {
		out interface{}
		err error
	}, 1)
	go func() {
		out, err := s.executor(cmd.DeviceID, cmd.Command, cmd.Parameters)
		done <- struct {
			out interface{}
			err error
		}{out, err}
	}()

	var result CommandResult
	select {
	case r := <-done:
		completed := time.Now().UTC()
		result = CommandResult{
			CommandID:     cmd.CommandID,
			DeviceID:      cmd.DeviceID,
			Success:       r.err == nil,
			Result:        r.out,
			CompletedAt:   completed,
			ExecutionTime: completed.Sub(start),
		}
		if r.err != nil {
			result.ErrorMessage = r.err.Error()
		}
	case <-time.After(cmd.Timeout):
		result = CommandResult{
			CommandID:    cmd.CommandID,
			DeviceID:     cmd.DeviceID,
			Success:      false,
			ErrorMessage: "timeout",
			CompletedAt:  time.Now().UTC(),
		}
	}

	s.cmdMu.Lock()
	delete(s.pending, cmd.CommandID)
	s.cmdMu.Unlock()

	s.recordResult(result)
}

func (s *Service) recordResult(result CommandResult) {
	s.cmdMu.Lock()
	s.history[result.DeviceID] = append(s.history[result.DeviceID], result)
	s.cmdMu.Unlock()

	s.metrics.commandsExecuted.Inc()
	if !result.Success {
		s.metrics.commandFailures.Inc()
	}
	if s.commandCB != nil {
		s.commandCB(result)
	}
	s.logger.Debug("device command completed",
		zap.String("commandId", result.CommandID),
		zap.String("deviceId", result.DeviceID),
		zap.Bool("success", result.Success),
	)
}

// GetCommandResult searches every device's history for commandId.
func (s *Service) GetCommandResult(commandID string) (CommandResult, bool) {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()
	for _, results := range s.history {
		for _, r := range results {
			if r.CommandID == commandID {
				return r, true
			}
		}
	}
	return CommandResult{}, false
}

// CancelCommand removes a pending command. Idempotent: canceling an
// already-completed or unknown commandId is not an error.
func (s *Service) CancelCommand(commandID string) bool {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()
	if _, ok := s.pending[commandID]; !ok {
		return false
	}
	delete(s.pending, commandID)
	return true
}

// GetPendingCommands lists pending commands, optionally filtered to one
// device.
func (s *Service) GetPendingCommands(deviceID string) []Command {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()
	var out []Command
	for _, cmd := range s.pending {
		if deviceID == "" || cmd.DeviceID == deviceID {
			out = append(out, *cmd)
		}
	}
	return out
}

// GetCommandHistory returns up to limit results, optionally filtered to one
// device. For one device these are its most recent results, oldest first;
// with no filter, the per-device histories are concatenated in no defined
// device order and the last limit entries of that list are returned.
func (s *Service) GetCommandHistory(deviceID string, limit int) []CommandResult {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()

	var all []CommandResult
	if deviceID != "" {
		all = append(all, s.history[deviceID]...)
	} else {
		for _, results := range s.history {
			all = append(all, results...)
		}
	}

	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all
}

// ExecuteBulkCommand dispatches the same command to every device in
// deviceIDs, preserving input order in the returned commandId list.
func (s *Service) ExecuteBulkCommand(deviceIDs []string, command string, params map[string]interface{}) []string {
	timeout := s.batchTimeout(len(deviceIDs), s.cfg.DefaultCommandTimeout)

	ids := make([]string, 0, len(deviceIDs))
	for _, deviceID := range deviceIDs {
		commandID, err := s.ExecuteCommand(Command{DeviceID: deviceID, Command: command, Parameters: params, Timeout: timeout})
		if err != nil {
			ids = append(ids, "")
			continue
		}
		ids = append(ids, commandID)
	}
	return ids
}

// batchTimeout caps a per-item timeout multiplied across n items at
// MaxBatchTimeout, so a large batch can't push the effective deadline
// arbitrarily high.
func (s *Service) batchTimeout(n int, perItem time.Duration) time.Duration {
	total := perItem * time.Duration(n)
	if total > s.cfg.MaxBatchTimeout {
		return s.cfg.MaxBatchTimeout
	}
	return total
}
