// Package extsort sorts a table's intermediate stream by hash while keeping
// the bytes it buffers under a fixed ceiling.
//
// Sorting proceeds in two phases:
//
//  1. Spill: the stream is read in chunks that fit the budget. Each chunk is
//     stable-sorted in memory and written to TempDir as a run. A stream that
//     fits one chunk is written straight to the destination.
//  2. Merge: runs are k-way merged with a min-heap. When there are more runs
//     than the budget can buffer at once, intermediate passes merge groups of
//     runs until a single final pass fits.
//
// Every record gets Position = its ordinal in the stream and Offset = its
// ordinal in the sorted output. Heap ties are broken by run index, so records
// with equal hashes keep stream order.
//
// All buffers are reserved on a resource.Controller before they are allocated.
// With compression, run codecs use 64 KiB blocks or windows and each live
// encoder or decoder is reserved too, so compressed sorts need a larger
// budget than plain ones (see CheckMemory).
package extsort
