package keys

import (
	"arbor.lol/lol"
)

var log, chk = lol.Main.Log, lol.Main.Check
