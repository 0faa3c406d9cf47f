package ratel

// Close waits for running updates, releases the sequence and closes the
// database.
func (r *T) Close() (err error) {
	r.WG.Wait()
	if r.dataDir != "" {
		chk.E(r.DB.Sync())
		log.I.F("closing database %s", r.Path())
		if err = r.DB.Flatten(4); chk.E(err) {
			return
		}
		log.D.F("database flattened")
	}
	if err = r.seq.Release(); chk.E(err) {
		return
	}
	log.D.F("database released")
	if err = r.DB.Close(); chk.E(err) {
		return
	}
	log.I.F("database closed")
	return
}

// Sync flushes written data to disk.
func (r *T) Sync() (err error) {
	if r.dataDir == "" {
		return
	}
	return r.DB.Sync()
}
