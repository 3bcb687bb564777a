//go:build !linux && !windows && !darwin

package fscap

func newPlatform() Capability { return newGenericUnixCapability() }
