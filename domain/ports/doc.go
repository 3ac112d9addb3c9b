// Package ports defines interfaces for infrastructure operations.
// These ports enable dependency inversion - the host bindings depend on
// abstractions, and infrastructure adapters implement these interfaces.
package ports
