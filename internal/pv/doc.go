// Package pv implements process variables: locally cached handles onto one
// key of the event bus, kept fresh either by polling or by subscription.
//
// # Refresh Modes
//
// A variable is constructed in exactly one mode and never changes it:
//
//   - Push (poll interval 0): the Scheduler subscribes to the key and every
//     delivered event refreshes the cache, in bus order.
//   - Poll (poll interval > 0): the Scheduler fetches the latest event on a
//     ticker. Polls never overlap; a slow fetch delays the next tick.
//
// # Local vs Remote Operations
//
// Get and Set touch only the cache and never block. Commit publishes the
// cached event; Fetch reads the latest event from the bus and refreshes the
// cache. Only Commit, Fetch and push construction wait on the bus.
//
// # Dependents
//
// OnRefresh registers callbacks that run after every refresh, in
// registration order, with the cache already updated. A failing or panicking
// callback is reported and never stops its siblings or the refresh loop.
//
// # Cancellation
//
// Cancel stops the refresh driver and waits for any refresh in progress, so
// no refresh runs after it returns. A dependent may cancel its own variable
// using the context it was handed.
package pv
