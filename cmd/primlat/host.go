package main

import (
	"runtime"

	"golang.org/x/sys/unix"

	"github.com/weiihann/primlat/report"
)

func currentHost() report.Host {
	h := report.Host{CPUs: runtime.NumCPU()}

	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return h
	}

	h.Hostname = unix.ByteSliceToString(uts.Nodename[:])
	h.Kernel = unix.ByteSliceToString(uts.Sysname[:]) + " " + unix.ByteSliceToString(uts.Release[:])
	h.Machine = unix.ByteSliceToString(uts.Machine[:])

	return h
}
