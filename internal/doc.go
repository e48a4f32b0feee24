// Package internal contains helpers private to the authority module.
//
// # Sub-packages
//
//   - audit — async event dispatch (Dispatcher + Sink implementations)
//   - flows — pure-function flow orchestrators for issuance and rotation
//   - rate — Redis-backed refresh throttle
//   - security — configuration protection summaries
//
// Nothing here is part of the public API.
package internal
