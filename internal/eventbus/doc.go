// Package eventbus decouples the device reconciler and transport adapters
// from the capability managers.
//
// Connect and disconnect events fan out to any number of subscribers. Data
// events are keyed by device id and only reach that device's subscribers.
// Errors travel on a global channel carrying the originating device id so
// capability managers can tear down the matching adapter.
//
// Subscriber isolation is implemented once, here: a subscriber that panics
// is recovered and logged, and dispatch continues to the remaining
// subscribers. Every subscription returns a handle whose Unsubscribe
// method removes exactly that subscriber.
//
// One ordering rule matters to the rest of the system: after a disconnect
// event is dispatched for a device, that device's data subscribers are
// purged. Stale data can therefore never be routed to callbacks belonging
// to an adapter that was destroyed by the disconnect.
package eventbus
