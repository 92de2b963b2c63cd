package devices

import (
	"fmt"
	"time"
)

// CreateDeviceGroup registers a new group. group.DeviceIDs is
// de-duplicated while preserving order.
func (s *Service) CreateDeviceGroup(group Group) error {
	if group.GroupID == "" {
		return fmt.Errorf("devices: groupId is required")
	}

	s.regMu.Lock()
	defer s.regMu.Unlock()
	if _, exists := s.groups[group.GroupID]; exists {
		return fmt.Errorf("devices: group %q already exists", group.GroupID)
	}

	now := time.Now().UTC()
	group.DeviceIDs = uniqueOrdered(group.DeviceIDs)
	group.CreatedAt = now
	group.ModifiedAt = now
	s.groups[group.GroupID] = &group
	return nil
}

func (s *Service) DeleteDeviceGroup(groupID string) error {
	s.regMu.Lock()
	defer s.regMu.Unlock()
	if _, ok := s.groups[groupID]; !ok {
		return fmt.Errorf("devices: unknown group %q", groupID)
	}
	delete(s.groups, groupID)
	return nil
}

func (s *Service) GetDeviceGroup(groupID string) (Group, bool) {
	s.regMu.Lock()
	defer s.regMu.Unlock()
	g, ok := s.groups[groupID]
	if !ok {
		return Group{}, false
	}
	return *g, true
}

func (s *Service) GetAllDeviceGroups() []Group {
	s.regMu.Lock()
	defer s.regMu.Unlock()
	out := make([]Group, 0, len(s.groups))
	for _, g := range s.groups {
		out = append(out, *g)
	}
	return out
}

// AddDeviceToGroup appends deviceID if not already a member.
func (s *Service) AddDeviceToGroup(groupID, deviceID string) error {
	s.regMu.Lock()
	defer s.regMu.Unlock()
	g, ok := s.groups[groupID]
	if !ok {
		return fmt.Errorf("devices: unknown group %q", groupID)
	}
	for _, id := range g.DeviceIDs {
		if id == deviceID {
			return nil
		}
	}
	g.DeviceIDs = append(g.DeviceIDs, deviceID)
	g.ModifiedAt = time.Now().UTC()
	return nil
}

// RemoveDeviceFromGroup drops deviceID from a group's membership.
func (s *Service) RemoveDeviceFromGroup(groupID, deviceID string) error {
	s.regMu.Lock()
	defer s.regMu.Unlock()
	g, ok := s.groups[groupID]
	if !ok {
		return fmt.Errorf("devices: unknown group %q", groupID)
	}
	g.DeviceIDs = removeString(g.DeviceIDs, deviceID)
	g.ModifiedAt = time.Now().UTC()
	return nil
}

// GetDeviceGroups lists every group deviceID currently belongs to.
func (s *Service) GetDeviceGroups(deviceID string) []string {
	s.regMu.Lock()
	defer s.regMu.Unlock()
	var out []string
	for id, g := range s.groups {
		for _, member := range g.DeviceIDs {
			if member == deviceID {
				out = append(out, id)
				break
			}
		}
	}
	return out
}

func uniqueOrdered(ids []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
