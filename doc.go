// Package plotgen builds a chain of hash tables that scales past memory.
//
// Table 0 holds the double BLAKE3-256 hashes of 2^k nonces. Every later table
// re-derives the hash of the same nonces and links back to its parent by
// position and offset. A run has four phases:
//
//  1. Forward: nonces are processed in batches sized so one batch of every
//     table fits the memory ceiling. Each batch is appended to per-table
//     intermediate streams and then dropped.
//  2. Sort: every stream is externally sorted by hash into its table file,
//     buffering at most the memory ceiling.
//  3. Backward: from the last table down to table 1, entries whose parent link
//     fails the locality predicate are pruned, and the survivors are rewritten
//     ordered by position.
//  4. Optional verify and publish passes.
//
// # Quick Start
//
//	p, err := plotgen.New(plotgen.Config{
//	    K:             20,
//	    MemoryCeiling: 256 << 20,
//	    RunName:       "demo",
//	    Dir:           "./plots",
//	}, plotgen.WithLogger(plotgen.NewTextLogger(slog.LevelInfo)))
//	if err != nil {
//	    return err
//	}
//	defer p.Close()
//
//	report, err := p.Run(ctx)
//	if err != nil {
//	    var pe *plotgen.PhaseError
//	    if errors.As(err, &pe) {
//	        log.Printf("phase %s failed on %s", pe.Phase, pe.Path)
//	    }
//	    return err
//	}
//	fmt.Println(report.Summary())
//
// # Files
//
// All files of a run live in Config.Dir and embed the run name, so runs with
// distinct names never collide:
//
//	hashes_<run>_<table>.bin  intermediate stream, 36-byte units (removed after sort)
//	table_<run>_<table>.bin   table file, 52-byte units
//
// Units are little-endian and share one field order: nonce, hash, position, offset.
//
// # Publishing
//
// WithPublisher uploads the finished table files to a blobstore.Publisher such
// as blobstore.LocalStore, minio.Store or s3.Store.
package plotgen
