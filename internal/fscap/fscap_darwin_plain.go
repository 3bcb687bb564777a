//go:build darwin && !cgo

package fscap

// Without cgo the clonefile/fcopyfile bindings (github.com/go-darwin/apfs)
// are unavailable, so macOS builds without cgo fall back to the generic
// buffered implementation shared with other unix-like systems.

func newPlatform() Capability { return newGenericUnixCapability() }
