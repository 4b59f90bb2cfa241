package broadcast

import (
	"food-delivery/tracking/models"
)

// Dispatcher fans messages out to a group. Publish only enqueues, so a slow
// subscriber never delays the publisher or other subscribers.
type Dispatcher struct {
	reg *Registry
}

func NewDispatcher(reg *Registry) *Dispatcher {
	return &Dispatcher{reg: reg}
}

func (d *Dispatcher) Registry() *Registry { return d.reg }

// Publish wraps payload in an event envelope and delivers it to groupID.
// It returns the number of subscribers the message was queued for.
func (d *Dispatcher) Publish(groupID, event string, payload interface{}) (int, error) {
	msg, err := models.NewEnvelope(event, payload)
	if err != nil {
		return 0, err
	}
	return d.PublishRaw(groupID, msg), nil
}

// PublishRaw delivers an already encoded frame. Closed subscribers found
// along the way are pruned.
func (d *Dispatcher) PublishRaw(groupID string, msg []byte) int {
	delivered := 0
	for _, sub := range d.reg.Members(groupID) {
		if sub.Closed() || !sub.Enqueue(msg) {
			d.reg.Remove(sub)
			// a Join racing with this prune can leave sub here without a memberOf entry
			d.reg.remove(groupID, sub.ID())
			continue
		}
		delivered++
	}
	return delivered
}
