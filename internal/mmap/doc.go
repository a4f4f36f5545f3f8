// Package mmap provides read-only memory-mapped access to table files.
//
//	m, err := mmap.Open("table_run_3.bin")
//	if err != nil { ... }
//	defer m.Close()
//
//	m.Advise(mmap.AccessSequential)
//	data := m.Bytes()
//
// Unix builds use mmap(2) and madvise(2) through golang.org/x/sys/unix.
// Windows uses CreateFileMapping/MapViewOfFile; Advise is a no-op there.
//
// Bytes must not be used after Close returns.
package mmap
