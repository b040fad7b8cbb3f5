package main

import (
	"fmt"
	"os"
	"runtime"

	"waterdetect/cmd"
	applog "waterdetect/internal/log"
	"waterdetect/pkg/build"
)

// main wires build information and hands over to the command tree. Live
// capture, offline detection and the one-off listings all live under cmd.
func main() {
	// Development builds run without ldflags.
	if err := build.Initialize(); err != nil {
		applog.Debugf("Build info: %v", err)
	}

	// One thread for the audio callback, one for transports and UI.
	runtime.GOMAXPROCS(2)

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
