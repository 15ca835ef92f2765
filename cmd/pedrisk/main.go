// pedrisk serves and inspects fitted risk pipelines.
//
// Usage:
//
//	pedrisk serve --config pedrisk.yaml [--addr :8080]
//	pedrisk predict --variant injury --set cf1_clean="Unsafe Speed" --set hour=17 ...
//	pedrisk inspect --pipeline pipeline.bin --metadata metadata.json
//	pedrisk activate <root> <version>
//	pedrisk manifest <dir> [--sign-key-env PEDRISK_MANIFEST_SIGNING_KEY]
package main

import (
	"fmt"
	"os"

	"github.com/ayemaqu/pedrisk/internal/redact"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, redact.String(err.Error()))
		os.Exit(1)
	}
}
