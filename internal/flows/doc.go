// Package flows contains the issuance and rotation state machines,
// expressed against injected dependencies so they stay free of root
// package imports and can be exercised in isolation.
package flows
