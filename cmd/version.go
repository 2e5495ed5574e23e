package cmd

import (
	"fmt"
	"runtime"
)

// set via -ldflags "-X blog/cmd.version=..."
var version = "dev"

func Version() {
	fmt.Printf("blog %s (%s, %s/%s)\n", version, runtime.Version(),
		runtime.GOOS, runtime.GOARCH)
}
