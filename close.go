package plotgen

// Close releases the worker pool. Files written by Run are left in place.
// Close is idempotent.
func (p *Plotter) Close() error {
	if p == nil || !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	p.pool.Close()
	return nil
}
