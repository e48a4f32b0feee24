// Package prometheus renders engine metrics in Prometheus text exposition
// format. [NewExporter] accepts an [authority.Engine] and exposes an
// [Exporter.Handler] the caller mounts wherever it wants; nothing is
// registered in a global registry.
package prometheus
