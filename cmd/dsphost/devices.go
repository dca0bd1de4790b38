package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/gordonklaus/portaudio"
	"github.com/rakyll/portmidi"

	"github.com/shaban/dsphost/control"
	"github.com/shaban/dsphost/devices"
)

func devicesCmd(args []string) int {
	fs := flag.NewFlagSet("devices", flag.ExitOnError)
	asJSON := fs.Bool("json", false, "print as JSON")
	fs.Parse(args)

	if err := portaudio.Initialize(); err != nil {
		fmt.Fprintf(os.Stderr, "audio backend failed to initialize: %v\n", err)
		return 1
	}
	defer portaudio.Terminate()

	audio, err := devices.GetAudio()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to enumerate audio devices: %v\n", err)
		return 1
	}

	var midi []control.MIDIDevice
	if err := portmidi.Initialize(); err == nil {
		midi = control.MIDIDevices()
		defer portmidi.Terminate()
	}

	if *asJSON {
		writeJSON(os.Stdout, struct {
			Audio devices.AudioDevices `json:"audio"`
			MIDI  []control.MIDIDevice `json:"midi"`
		}{audio, midi})
		return 0
	}

	header := color.New(color.FgCyan, color.Bold)
	def := color.New(color.FgGreen)

	header.Println("Audio devices")
	for _, d := range audio {
		marker := "  "
		line := fmt.Sprintf("%s  [%s]  in:%d out:%d  %.0f Hz",
			d.Name, d.HostAPI, d.MaxInputChannels, d.MaxOutputChannels, d.DefaultSampleRate)
		switch {
		case d.IsDefaultOutput:
			def.Printf("%s%s  (default output)\n", marker, line)
		case d.IsDefaultInput:
			def.Printf("%s%s  (default input)\n", marker, line)
		default:
			fmt.Printf("%s%s\n", marker, line)
		}
	}

	if len(midi) > 0 {
		fmt.Println()
		header.Println("MIDI devices")
		for _, d := range midi {
			dir := ""
			if d.Input {
				dir += " in"
			}
			if d.Output {
				dir += " out"
			}
			fmt.Printf("  %d: %s %s\n", d.ID, d.Name, dir)
		}
	}
	return 0
}

// writeJSON encodes v with indentation; shared by the CLI and status server.
func writeJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}
