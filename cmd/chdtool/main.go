// Command chdtool inspects and extracts MAME CHD disc images.
package main

import (
	"fmt"
	"os"

	"github.com/nmoshiri/go-chd/cmd/chdtool/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
