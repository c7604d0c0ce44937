//go:build !windows
// +build !windows

package process

func System() Lister { return Gopsutil{} }
