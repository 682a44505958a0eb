package common

import (
	"fmt"
	"os"
	"runtime"

	"github.com/ternarybob/arbor"
)

// SafeGo runs fn in a goroutine that recovers from panics. A panic is
// logged with its stack and the process keeps running; workers and
// provider fan-outs must never take the service down.
func SafeGo(logger arbor.ILogger, name string, fn func()) {
	go func() {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			buf := make([]byte, 8192)
			n := runtime.Stack(buf, false)
			if logger != nil {
				logger.Error().
					Str("goroutine", name).
					Str("panic", fmt.Sprintf("%v", r)).
					Str("stack", string(buf[:n])).
					Msg("Recovered from panic in goroutine")
				return
			}
			fmt.Fprintf(os.Stderr, "panic in goroutine %s: %v\n%s\n", name, r, buf[:n])
		}()
		fn()
	}()
}
