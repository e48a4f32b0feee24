// Package security derives deployment-safety summaries from engine
// configuration. It performs no I/O and holds no secrets.
package security
