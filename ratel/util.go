package ratel

import (
	"bytes"

	"arbor.lol/lol"
)

var (
	log, chk = lol.Main.Log, lol.Main.Check
	equals   = bytes.Equal
)
