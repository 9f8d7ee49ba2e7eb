package xserver

import "github.com/BurntSushi/xgb/xproto"

type selection struct {
	owner  *Window
	client *Client
	time   xproto.Timestamp
}

// SelectionManager records the owner of each selection atom.
type SelectionManager struct {
	selections map[xproto.Atom]*selection
}

func newSelectionManager(windows *WindowManager) *SelectionManager {
	m := &SelectionManager{selections: make(map[xproto.Atom]*selection)}
	windows.AddResourceListener(m)
	return m
}

// SetOwner makes owner (nil clears it) the owner of atom. When a
// different client takes over, the previous owner gets SelectionClear.
func (m *SelectionManager) SetOwner(atom xproto.Atom, owner *Window, c *Client, t xproto.Timestamp) {
	if t == xproto.TimeCurrentTime {
		t = currentTime()
	}
	s := m.selections[atom]
	if s == nil {
		s = &selection{}
		m.selections[atom] = s
	}
	if s.client != nil && (owner == nil || s.client != c) {
		s.client.SendEvent(xproto.SelectionClearEvent{
			Time:      t,
			Owner:     xproto.Window(s.owner.id),
			Selection: atom,
		})
	}
	s.owner = owner
	s.client = c
	if owner == nil {
		s.client = nil
	}
	s.time = t
}

// Owner returns the owner window of atom, or nil.
func (m *SelectionManager) Owner(atom xproto.Atom) *Window {
	if s := m.selections[atom]; s != nil {
		return s.owner
	}
	return nil
}

func (m *SelectionManager) OnCreateResource(Resource) {}

func (m *SelectionManager) OnFreeResource(r Resource) {
	w, ok := r.(*Window)
	if !ok {
		return
	}
	for _, s := range m.selections {
		if s.owner == w {
			s.owner = nil
			s.client = nil
		}
	}
}

// releaseClient drops every selection a disconnecting client owns.
func (m *SelectionManager) releaseClient(c *Client) {
	for _, s := range m.selections {
		if s.client == c {
			s.owner = nil
			s.client = nil
		}
	}
}
