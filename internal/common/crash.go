package common

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// crashDir is where crash reports land. Set once at startup from the
// logging configuration; the default keeps reports next to the log files.
var crashDir = "./logs"

// InstallCrashHandler points crash reports at the given directory and
// makes sure it exists. Call before any deferred RecoverWithCrashFile.
func InstallCrashHandler(dir string) {
	if dir != "" {
		crashDir = dir
	}
	if err := os.MkdirAll(crashDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "failed to create crash report directory: %v\n", err)
	}
}

// RecoverWithCrashFile recovers a panic on the calling goroutine, writes a
// crash report and exits nonzero. Meant as the outermost defer in main.
func RecoverWithCrashFile() {
	r := recover()
	if r == nil {
		return
	}
	buf := make([]byte, 16384)
	n := runtime.Stack(buf, false)
	WriteCrashFile(r, string(buf[:n]))
	os.Exit(1)
}

// WriteCrashFile persists a post-mortem report for a fatal panic: the panic
// value, the panicking stack, every goroutine, and runtime counters. Returns
// the report path, or "" when even that write failed.
func WriteCrashFile(panicVal interface{}, stack string) string {
	path := filepath.Join(crashDir, fmt.Sprintf("crash-%s.log", time.Now().Format("2006-01-02T15-04-05")))

	var report bytes.Buffer
	fmt.Fprintf(&report, "percipio crash report\ntime: %s\nversion: %s\n\n", time.Now().Format(time.RFC3339), GetFullVersion())
	fmt.Fprintf(&report, "panic: %v\n\n%s\n", panicVal, stack)

	report.WriteString("\n--- all goroutines ---\n")
	report.WriteString(allGoroutineStacks())

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	fmt.Fprintf(&report, "\n--- runtime ---\ngoroutines: %d\nalloc_mb: %d\nsys_mb: %d\nnum_gc: %d\n",
		runtime.NumGoroutine(), mem.Alloc/1024/1024, mem.Sys/1024/1024, mem.NumGC)

	if err := os.WriteFile(path, report.Bytes(), 0644); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write crash report: %v\n%s", err, report.String())
		return ""
	}

	fmt.Fprintf(os.Stderr, "fatal panic, report written to %s\npanic: %v\n", path, panicVal)
	return path
}

// allGoroutineStacks dumps every goroutine, growing the buffer until the
// dump fits.
func allGoroutineStacks() string {
	buf := make([]byte, 64*1024)
	for {
		n := runtime.Stack(buf, true)
		if n < len(buf) {
			return string(buf[:n])
		}
		if len(buf) >= 16*1024*1024 {
			return string(buf[:n])
		}
		buf = make([]byte, len(buf)*2)
	}
}
