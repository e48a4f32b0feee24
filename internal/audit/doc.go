// Package audit implements the in-process audit pipeline: a buffered
// asynchronous dispatcher and the sink implementations the root package
// re-exports. The durable admin audit log is separate and written through
// the token store.
package audit
