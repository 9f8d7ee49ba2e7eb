package xserver

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/xgb/xproto"
)

// xcursorResources are published in RESOURCE_MANAGER on the root so
// toolkits pick a readable cursor theme.
var xcursorResources = [][2]string{
	{"size", "20"},
	{"theme", "dmz"},
	{"theme_core", "true"},
}

// desktopHelper plays the part of a minimal window manager: newly
// mapped application windows take the focus, and so does the window
// under a button press.
type desktopHelper struct {
	NopWindowListener
	s *Server
}

func attachDesktopHelper(s *Server) {
	setupXResources(s)
	s.Windows.AddWindowListener(&desktopHelper{s: s})
}

func setupXResources(s *Server) {
	var sb strings.Builder
	for _, kv := range xcursorResources {
		fmt.Fprintf(&sb, "Xcursor.%s:\t%s\n", kv[0], kv[1])
	}
	s.Windows.ModifyProperty(s.Windows.Root,
		s.Atoms.Intern("RESOURCE_MANAGER"), s.Atoms.Intern("STRING"),
		8, xproto.PropModeAppend, []byte(sb.String()))
}

func (h *desktopHelper) OnMapWindow(w *Window) {
	h.s.focusApplicationWindow(w)
}

func (s *Server) focusApplicationWindow(w *Window) {
	if !w.IsApplicationWindow() {
		return
	}
	revertTo := byte(xproto.InputFocusParent)
	if w.Parent() == s.Windows.Root {
		revertTo = xproto.InputFocusPointerRoot
	}
	s.Windows.SetFocus(w, revertTo)
}

// updateFocusOnPress moves the focus to the top-level window under the
// pointer, or to the root when the pointer is over the background.
// Callers hold LockWindowManager and LockInputDevice.
func (s *Server) updateFocusOnPress() {
	focused := s.Windows.Focused()
	child := s.Windows.FindPointWindow(s.Input.Pointer.X, s.Input.Pointer.Y)
	switch {
	case child == nil && focused != s.Windows.Root:
		s.Windows.SetFocus(s.Windows.Root, xproto.InputFocusNone)
	case child != nil && child != focused:
		s.focusApplicationWindow(child)
	}
}
