// Command modelgate validates JSON and YAML data against declarative
// schemas, exports schema descriptions and serves the validation API.
package main

var (
	// Set via ldflags at build time
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	Execute()
}
