// Command cliptok encodes text into CLIP token ids, decodes ids back to text, and builds the fixed-length
// rows fed to CLIP text encoders.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := NewRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
