// Package fs provides the file system abstraction used for plot table files.
//
//   - [FileSystem]: open, remove, rename, stat and mkdir
//   - [LocalFS]: production implementation using the os package
//   - [FaultyFS]: test utility that injects open, write, sync and rename failures
//   - [WriteReplace]: write-to-temp then rename, used whenever a phase replaces a table file
//
// Production code uses fs.Default. Tests inject FaultyFS:
//
//	ffs := fs.NewFaultyFS(nil)
//	ffs.AddRule("table_run_1", fs.Fault{FailAfterBytes: 100})
package fs
