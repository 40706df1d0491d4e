//go:build windows

package report

import (
	"fmt"
	"os"
	"time"
)

// acquireFlock acquires an exclusive file lock using os.OpenFile on Windows.
// The open handle itself serves as the lock. Retries with 100ms interval,
// 1s total timeout.
func acquireFlock(path string) (int, error) {
	deadline := time.Now().Add(time.Second)
	for {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
		if err == nil {
			return int(f.Fd()), nil
		}
		if time.Now().After(deadline) {
			return -1, fmt.Errorf("flock timeout after 1s: %w", err)
		}
		time.Sleep(100 * time.Millisecond)
	}
}

// releaseFlock closes the file handle, releasing the lock on Windows.
func releaseFlock(fd int) {
	_ = os.NewFile(uintptr(fd), "").Close()
}
