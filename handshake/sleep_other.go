//go:build !linux

package handshake

import "time"

func sleepGap(d time.Duration) {
	time.Sleep(d)
}
