package xserver

import (
	"context"
	"sync"
	"time"
)

// fenceAwaitInterval is how often AwaitFence rechecks its fences.
const fenceAwaitInterval = time.Millisecond

// fenceTable holds SYNC fences. It has its own mutex so a blocked
// AwaitFence never holds a category lock while another client triggers
// the fence.
type fenceTable struct {
	mu     sync.Mutex
	fences map[uint32]bool
}

func newFenceTable() *fenceTable {
	return &fenceTable{fences: make(map[uint32]bool)}
}

func (t *fenceTable) create(id uint32, triggered bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.fences[id]; ok {
		return BadIDChoice(id)
	}
	t.fences[id] = triggered
	return nil
}

func (t *fenceTable) trigger(id uint32) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.fences[id]; !ok {
		return BadFence(id)
	}
	t.fences[id] = true
	return nil
}

func (t *fenceTable) reset(id uint32) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	triggered, ok := t.fences[id]
	if !ok {
		return BadFence(id)
	}
	if !triggered {
		return BadMatch()
	}
	t.fences[id] = false
	return nil
}

func (t *fenceTable) destroy(id uint32) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.fences[id]; !ok {
		return BadFence(id)
	}
	delete(t.fences, id)
	return nil
}

func (t *fenceTable) triggered(id uint32) (bool, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.fences[id]
	return v, ok
}

// anyTriggered checks ids in order. The first unknown id is an error.
func (t *fenceTable) anyTriggered(ids []uint32) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, id := range ids {
		v, ok := t.fences[id]
		if !ok {
			return false, BadFence(id)
		}
		if v {
			return true, nil
		}
	}
	return false, nil
}

// await polls until one of ids is triggered or ctx is done.
func (t *fenceTable) await(ctx context.Context, ids []uint32) error {
	if len(ids) == 0 {
		return nil
	}
	ticker := time.NewTicker(fenceAwaitInterval)
	defer ticker.Stop()
	for {
		done, err := t.anyTriggered(ids)
		if err != nil || done {
			return err
		}
		select {
		case <-ctx.Done():
			return ErrClientGone
		case <-ticker.C:
		}
	}
}

func syncExtension() *extension {
	return &extension{
		name:       "SYNC",
		major:      syncMajorOpcode,
		firstError: syncFirstError,
		requests: map[byte]requestHandler{
			14: {"SyncCreateFence", nil, (*Server).syncCreateFence},
			15: {"SyncTriggerFence", nil, (*Server).syncTriggerFence},
			16: {"SyncResetFence", nil, (*Server).syncResetFence},
			17: {"SyncDestroyFence", nil, (*Server).syncDestroyFence},
			19: {"SyncAwaitFence", nil, (*Server).syncAwaitFence},
		},
	}
}

func (s *Server) syncCreateFence(r *request) error {
	r.body.Skip(4)
	id := r.body.Uint32()
	triggered := r.body.Bool()
	if r.body.Err() != nil {
		return BadLength()
	}
	return s.fences.create(id, triggered)
}

func (s *Server) syncTriggerFence(r *request) error {
	return s.fences.trigger(r.body.Uint32())
}

func (s *Server) syncResetFence(r *request) error {
	return s.fences.reset(r.body.Uint32())
}

func (s *Server) syncDestroyFence(r *request) error {
	return s.fences.destroy(r.body.Uint32())
}

func (s *Server) syncAwaitFence(r *request) error {
	ids := make([]uint32, 0, r.body.Remaining()/4)
	for r.body.Remaining() >= 4 {
		ids = append(ids, r.body.Uint32())
	}
	return s.fences.await(r.c.ctx, ids)
}
