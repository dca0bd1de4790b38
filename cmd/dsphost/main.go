// Command dsphost runs a user-compiled DSP module against the system's
// audio devices.
//
//	dsphost run      -config dsphost.yaml   build, load, and run the module
//	dsphost devices                         list audio and MIDI devices
//	dsphost inspect  -config dsphost.yaml   discover and print module metadata
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

func main() {
	// .env is optional; flags and the config file are authoritative.
	godotenv.Load()

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var code int
	switch os.Args[1] {
	case "run":
		code = runCmd(os.Args[2:])
	case "devices":
		code = devicesCmd(os.Args[2:])
	case "inspect":
		code = inspectCmd(os.Args[2:])
	case "-h", "--help", "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", os.Args[1])
		usage()
		code = 2
	}
	os.Exit(code)
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: dsphost <run|devices|inspect> [flags]")
	fmt.Fprintln(os.Stderr, "  run      build, load, and run the configured module")
	fmt.Fprintln(os.Stderr, "  devices  list audio and MIDI devices")
	fmt.Fprintln(os.Stderr, "  inspect  discover and print the module's parameters and processors")
}

// configFlag registers the shared -config flag, honoring DSPHOST_CONFIG.
func configFlag(fs *flag.FlagSet) *string {
	def := os.Getenv("DSPHOST_CONFIG")
	if def == "" {
		def = "dsphost.yaml"
	}
	return fs.String("config", def, "path to the host config file")
}
