package ratel

import (
	"arbor.lol/ratel/prefixes"
)

// Nuke deletes every record and index entry. The version stamp and the
// sequence survive, so keys are never reused.
func (r *T) Nuke() (err error) {
	log.W.F("nuking database at %s", r.dataDir)
	if err = r.DB.DropPrefix(append([][]byte{{prefixes.Record.B()}},
		prefixes.IndexPrefixes...)...); chk.E(err) {
		return
	}
	if r.dataDir == "" {
		return
	}
	// ErrNoRewrite just means there was nothing worth collecting
	_ = r.DB.RunValueLogGC(0.8)
	return
}
