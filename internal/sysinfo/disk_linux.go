// ABOUTME: Root filesystem usage via statfs.

//go:build linux

package sysinfo

import "golang.org/x/sys/unix"

func readDisk(path string) (Disk, error) {
	var fs unix.Statfs_t
	if err := unix.Statfs(path, &fs); err != nil {
		return Disk{}, err
	}

	bsize := uint64(fs.Bsize)
	total := fs.Blocks * bsize
	free := fs.Bavail * bsize
	used := (fs.Blocks - fs.Bfree) * bsize

	d := Disk{Total: total, Used: used, Free: free}
	// Percent is used over the space available to unprivileged users,
	// matching the usual df output.
	if used+free > 0 {
		d.Percent = round1(float64(used) / float64(used+free) * 100)
	}
	return d, nil
}
