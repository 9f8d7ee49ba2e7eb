package xserver

// Resource is any client-created object addressed by an id.
type Resource interface {
	ID() uint32
}

// ResourceListener observes resources being created and freed.
type ResourceListener interface {
	OnCreateResource(r Resource)
	OnFreeResource(r Resource)
}

// resourceObservers is embedded by the managers that announce their
// resource lifecycle.
type resourceObservers struct {
	listeners []ResourceListener
}

func (o *resourceObservers) AddResourceListener(l ResourceListener) {
	o.listeners = append(o.listeners, l)
}

func (o *resourceObservers) RemoveResourceListener(l ResourceListener) {
	for i, cand := range o.listeners {
		if cand == l {
			o.listeners = append(o.listeners[:i], o.listeners[i+1:]...)
			return
		}
	}
}

func (o *resourceObservers) notifyCreate(r Resource) {
	ls := append([]ResourceListener(nil), o.listeners...)
	for i := len(ls) - 1; i >= 0; i-- {
		ls[i].OnCreateResource(r)
	}
}

func (o *resourceObservers) notifyFree(r Resource) {
	ls := append([]ResourceListener(nil), o.listeners...)
	for i := len(ls) - 1; i >= 0; i-- {
		ls[i].OnFreeResource(r)
	}
}
