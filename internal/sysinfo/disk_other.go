// ABOUTME: Disk usage stub for platforms without statfs support.

//go:build !linux

package sysinfo

import "errors"

func readDisk(path string) (Disk, error) {
	return Disk{}, errors.New("disk usage not supported on this platform")
}
