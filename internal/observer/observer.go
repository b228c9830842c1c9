// Package observer implements the observer/notification contract: every mutation on a
// model produces a before/after notification pair, and containers relay
// their children's notifications upward so an aggregate consumer (the
// out-of-scope editor, a dirty-flag tracker, the optional Redis fan-out in
// pubsub.go) can subscribe at any level of the tree.
package observer

// Event describes one notification. Name is the mutation's operation name
// ("add_state", "rename", "state_change", ...); Args carries the operation's
// parameters; StatePath names the state the mutation occurred on, filled in
// as the event is relayed upward through ancestors.
type Event struct {
	Name      string
	Args      map[string]any
	StatePath []string
}

// Observer receives before/after notifications. OnBefore fires synchronously
// before the mutation is applied (an observer cannot veto); OnAfter fires
// after, carrying the mutation's result (nil on failure).
type Observer interface {
	OnBefore(Event)
	OnAfter(ev Event, result any)
}

// ObserverFunc adapts a pair of plain functions to the Observer interface.
type ObserverFunc struct {
	Before func(Event)
	After  func(ev Event, result any)
}

func (f ObserverFunc) OnBefore(ev Event)             { if f.Before != nil { f.Before(ev) } }
func (f ObserverFunc) OnAfter(ev Event, result any)  { if f.After != nil { f.After(ev, result) } }

// Dispatcher is a small per-state notification hub. Each state owns one;
// containers Relay their children's dispatcher into their own at
// construction/add-time so a subscriber anywhere in the tree sees every
// descendant's mutations bubble up.
//
// Dispatcher deliberately holds no reference back to the state it belongs
// to, and relaying is done by forwarding function closures rather than by
// holding the child Dispatcher pointer strongly beyond the lifetime of the
// Unsubscribe call returned from Relay, avoiding the "hold strong
// references to observers" pitfall.
type Dispatcher struct {
	observers map[int]Observer
	nextID    int
}

// NewDispatcher returns an empty notification hub.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{observers: map[int]Observer{}}
}

// Subscribe registers an observer and returns an unsubscribe function.
func (d *Dispatcher) Subscribe(o Observer) (unsubscribe func()) {
	if d == nil || o == nil {
		return func() {}
	}
	id := d.nextID
	d.nextID++
	d.observers[id] = o
	return func() { delete(d.observers, id) }
}

// Before fires OnBefore on every current subscriber.
func (d *Dispatcher) Before(ev Event) {
	if d == nil {
		return
	}
	for _, o := range d.observers {
		o.OnBefore(ev)
	}
}

// After fires OnAfter on every current subscriber.
func (d *Dispatcher) After(ev Event, result any) {
	if d == nil {
		return
	}
	for _, o := range d.observers {
		o.OnAfter(ev, result)
	}
}

// Relay subscribes child's notifications into parent, prefixing StatePath
// with childName as they're forwarded, so parent's own subscribers see
// descendant mutations annotated with where they happened. Returns the
// unsubscribe function a container should call from RemoveState.
func Relay(parent, child *Dispatcher, childName string) (unsubscribe func()) {
	if parent == nil || child == nil {
		return func() {}
	}
	relay := ObserverFunc{
		Before: func(ev Event) { parent.Before(prefixed(ev, childName)) },
		After:  func(ev Event, result any) { parent.After(prefixed(ev, childName), result) },
	}
	return child.Subscribe(relay)
}

func prefixed(ev Event, name string) Event {
	out := ev
	out.StatePath = append([]string{name}, ev.StatePath...)
	return out
}
