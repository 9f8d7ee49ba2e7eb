package xserver

import (
	"sort"
	"time"

	"github.com/BurntSushi/xgb/xproto"
)

const (
	presentCompleteMask = 1 << presentEventComplete
	presentIdleMask     = 1 << presentEventIdle

	presentKindPixmap = 0
	presentModeCopy   = 0

	// presentFrameInterval is the fake refresh period used to derive
	// the media stream counter.
	presentFrameInterval = int64(time.Second/time.Microsecond) / 60
)

// presentSelection is one PresentSelectInput registration.
type presentSelection struct {
	id     uint32
	window *Window
	client *Client
	mask   Bitmask
}

// presentExtension keeps event selections by event id. It is guarded by
// LockWindowManager.
type presentExtension struct {
	selections map[uint32]*presentSelection
}

func newPresentExtension() *presentExtension {
	return &presentExtension{selections: make(map[uint32]*presentSelection)}
}

func (p *presentExtension) selectInput(id uint32, w *Window, c *Client, mask Bitmask) error {
	sel := p.selections[id]
	if sel != nil {
		if sel.window != w || sel.client != c {
			return BadMatch()
		}
		if mask.IsEmpty() {
			delete(p.selections, id)
		} else {
			sel.mask = mask
		}
		return nil
	}
	if mask.IsEmpty() {
		return nil
	}
	p.selections[id] = &presentSelection{id: id, window: w, client: c, mask: mask}
	return nil
}

// selectionsOn lists the selections on w by event id.
func (p *presentExtension) selectionsOn(w *Window) []*presentSelection {
	var out []*presentSelection
	for _, sel := range p.selections {
		if sel.window == w {
			out = append(out, sel)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

func (p *presentExtension) releaseClient(c *Client) {
	for id, sel := range p.selections {
		if sel.client == c {
			delete(p.selections, id)
		}
	}
}

func (p *presentExtension) OnCreateResource(Resource) {}

// OnFreeResource drops selections on a destroyed window.
func (p *presentExtension) OnFreeResource(r Resource) {
	w, ok := r.(*Window)
	if !ok {
		return
	}
	for id, sel := range p.selections {
		if sel.window == w {
			delete(p.selections, id)
		}
	}
}

func presentExt() *extension {
	return &extension{
		name:  "Present",
		major: presentMajorOpcode,
		requests: map[byte]requestHandler{
			0: {"PresentQueryVersion", nil, (*Server).presentQueryVersion},
			1: {"PresentPixmap", locks(LockWindowManager, LockPixmapManager), (*Server).presentPixmap},
			3: {"PresentSelectInput", locks(LockWindowManager), (*Server).presentSelectInput},
		},
	}
}

func (s *Server) presentQueryVersion(r *request) error {
	r.body.Skip(8)
	r.beginReply(0)
	r.reply.Uint32(1)
	r.reply.Uint32(0)
	r.endReply()
	return nil
}

// presentPixmap copies the pixmap into the window at once and reports
// the pixmap idle and the presentation complete in the same step.
func (s *Server) presentPixmap(r *request) error {
	windowID := r.body.Uint32()
	pixmapID := r.body.Uint32()
	serial := r.body.Uint32()
	r.body.Skip(8)
	xOff, yOff := r.body.Int16(), r.body.Int16()
	r.body.Skip(8)
	idleFence := r.body.Uint32()
	r.body.SkipRest()
	if r.body.Err() != nil {
		return BadLength()
	}

	w, err := s.window(windowID)
	if err != nil {
		return err
	}
	p := s.Pixmaps.Get(pixmapID)
	if p == nil {
		return BadPixmap(pixmapID)
	}
	content := w.Content()
	if content == nil || content.Depth() != p.Drawable.Depth() {
		return BadMatch()
	}

	ust := time.Now().UnixMicro()
	msc := ust / presentFrameInterval
	src := p.Drawable
	content.CopyArea(src, 0, 0, xOff, yOff, src.Width(), src.Height(), xproto.GxCopy)

	if idleFence != 0 {
		s.fences.trigger(idleFence)
	}
	sels := s.present.selectionsOn(w)
	for _, sel := range sels {
		if sel.mask.IsSet(presentIdleMask) {
			sel.client.SendEvent(presentIdleNotify{
				EventID:   sel.id,
				Window:    w.id,
				Serial:    serial,
				Pixmap:    pixmapID,
				IdleFence: idleFence,
			})
		}
	}
	for _, sel := range sels {
		if sel.mask.IsSet(presentCompleteMask) {
			sel.client.SendEvent(presentCompleteNotify{
				EventID: sel.id,
				Window:  w.id,
				Serial:  serial,
				Kind:    presentKindPixmap,
				Mode:    presentModeCopy,
				UST:     uint64(ust),
				MSC:     uint64(msc),
			})
		}
	}
	return nil
}

func (s *Server) presentSelectInput(r *request) error {
	id := r.body.Uint32()
	w, err := s.window(r.body.Uint32())
	if err != nil {
		return err
	}
	mask := Bitmask(r.body.Uint32())
	if r.body.Err() != nil {
		return BadLength()
	}
	return s.present.selectInput(id, w, r.c, mask)
}
