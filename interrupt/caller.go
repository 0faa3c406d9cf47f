package interrupt

import (
	"fmt"
	"runtime"
)

func caller() string {
	_, file, line, _ := runtime.Caller(2)
	return fmt.Sprintf("%s:%d", file, line)
}
