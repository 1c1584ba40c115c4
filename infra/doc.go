// Package infra contains technical adapters: forecast sources, result
// stores, schedule publishers and metrics exporters. These packages depend
// only on the interfaces defined in the core packages.
package infra
