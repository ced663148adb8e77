// Package hierarchy is the in-memory store for users and the
// house → floor → room → device tree.
//
// Users and houses are root collections keyed by id. Every other entity is
// owned exclusively by its parent and lives in the parent's ordered child
// list, so deleting a parent removes all of its descendants with it.
//
// Every operation addresses its target through the chain of ancestor ids.
// Resolution walks root → target and fails at the first missing link with a
// *NotFoundError naming that link's kind; a failed resolution never mutates
// state. Root lookups are map lookups, nested lookups are linear scans of the
// parent's children.
//
// # Side channels
//
// Two collaborators hang off the store and are always invoked after the store
// lock has been released:
//   - a LatestWriter receives each device's data payload on creation and on
//     any update that provides data; failures are logged and absorbed.
//   - Observers receive a Change after every successful mutation (the audit
//     trail and the WebSocket feed are observers).
//
// # Thread Safety
//
// A single RWMutex serialises mutations. Reads share the lock and return deep
// copies, so callers never alias store-internal state.
package hierarchy
