// Package events fans engine state changes out to subscribers.
//
// Delivery is non-blocking: a subscriber whose buffer is full misses the
// event and the drop is counted. Subscriptions are keyed by UUID and are
// removed by the unsubscribe function returned from Subscribe.
package events
