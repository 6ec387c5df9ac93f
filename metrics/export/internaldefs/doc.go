// Package internaldefs exposes the stable metric name definitions shared by
// exporter implementations.
//
// Counter definitions live here so that the Prometheus and OTel exporters
// render identical metric names. Changes to definitions in this package
// affect all exporters simultaneously.
//
// # What this package must NOT do
//
//   - Perform I/O.
//   - Hold state beyond the definition tables.
package internaldefs
