// Package events implements the document-level event pump: Send, Update,
// and Change, with the batching rule that collapses any number of remote
// deliveries inside one batchRemoteUpdates call into a single Change.
package events

// UpdateKind distinguishes what produced an Update event.
type UpdateKind int

const (
	// KindMessage marks an Update produced by a transaction: a local
	// transaction's Send or a remote transaction's delivery.
	KindMessage UpdateKind = iota
	// KindSavedState marks an Update produced by a Load.
	KindSavedState
)

// Update carries the caller-supplied tag alongside the kind, so providers
// can distinguish their own writes from ones they need to relay.
type Update struct {
	Kind   UpdateKind
	Caller interface{}
}

// Send carries one transaction's wire bytes, ready to broadcast.
type Send struct {
	Bytes []byte
}

// Pump fans Send/Update/Change out to subscribers and implements Change
// coalescing across nested batches.
type Pump struct {
	sendSubs   []func(Send)
	updateSubs []func(Update)
	changeSubs []func()

	batchDepth    int
	changePending bool
	emitting      bool
}

// New returns an empty pump.
func New() *Pump {
	return &Pump{}
}

// OnSend registers a Send subscriber.
func (p *Pump) OnSend(f func(Send)) { p.sendSubs = append(p.sendSubs, f) }

// OnUpdate registers an Update subscriber.
func (p *Pump) OnUpdate(f func(Update)) { p.updateSubs = append(p.updateSubs, f) }

// OnChange registers a Change subscriber.
func (p *Pump) OnChange(f func()) { p.changeSubs = append(p.changeSubs, f) }

// EmitSend fires a Send event immediately to every subscriber.
func (p *Pump) EmitSend(s Send) {
	p.guardedEmit(func() {
		for _, f := range p.sendSubs {
			f(s)
		}
	})
}

// EmitUpdate fires an Update event immediately to every subscriber. Updates
// are never coalesced: each delivery or each local transaction emits its
// own, even inside a batch.
func (p *Pump) EmitUpdate(u Update) {
	p.guardedEmit(func() {
		for _, f := range p.updateSubs {
			f(u)
		}
	})
}

// RequestChange marks that a Change should fire. Inside an active batch it
// is folded into the single Change the outermost batch emits when it
// closes; outside a batch it fires immediately.
func (p *Pump) RequestChange() {
	if p.batchDepth > 0 {
		p.changePending = true
		return
	}
	p.emitChange()
}

func (p *Pump) emitChange() {
	p.guardedEmit(func() {
		for _, f := range p.changeSubs {
			f()
		}
	})
}

// guardedEmit prevents a re-entrant handler from mutating the subscriber
// lists while a dispatch is in progress: handlers may call back into the
// runtime, including registering new subscribers, but that registration
// must not affect the dispatch already underway.
func (p *Pump) guardedEmit(dispatch func()) {
	wasEmitting := p.emitting
	p.emitting = true
	dispatch()
	p.emitting = wasEmitting
}

// BatchRemoteUpdates runs f with Change coalescing active: no matter how
// many times f calls RequestChange (directly, or indirectly through k≥0
// remote deliveries), exactly one Change fires, at the end of the
// outermost BatchRemoteUpdates call.
func (p *Pump) BatchRemoteUpdates(f func() error) error {
	p.batchDepth++
	err := f()
	p.batchDepth--

	if p.batchDepth == 0 {
		p.changePending = false
		p.emitChange()
	}
	return err
}
