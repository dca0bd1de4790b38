package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"os"

	"github.com/fatih/color"
	"go.uber.org/zap"

	"github.com/shaban/dsphost"
	"github.com/shaban/dsphost/analyze"
	"github.com/shaban/dsphost/contract"
	"github.com/shaban/dsphost/discovery"
)

func inspectCmd(args []string) int {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	configPath := configFlag(fs)
	asJSON := fs.Bool("json", false, "print as JSON")
	fresh := fs.Bool("fresh", false, "ignore the cache and rebuild")
	exercise := fs.Bool("exercise", false, "load the module and run a test signal through it")
	fs.Parse(args)

	cfg, err := dsphost.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	if *fresh {
		// Removing the sidecars forces the full build-and-extract path.
		os.Remove(cfg.Module.CacheDir + "/" + discovery.ParamsSidecar)
		os.Remove(cfg.Module.CacheDir + "/" + discovery.ProcessorsSidecar)
	}

	hostBinary, _ := os.Executable()
	disc := discovery.New(cfg.DiscoveryConfig(hostBinary), zap.NewNop())
	result, err := disc.Run(context.Background())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	if *asJSON {
		writeJSON(os.Stdout, result)
		return 0
	}

	header := color.New(color.FgCyan, color.Bold)
	dim := color.New(color.FgHiBlack)

	source := "built fresh"
	if result.FromCache {
		source = "from cache"
	}
	dim.Printf("metadata %s\n\n", source)

	header.Println("Parameters")
	if len(result.Params) == 0 {
		fmt.Println("  (none)")
	}
	for _, p := range result.Params {
		fmt.Printf("  %-16s %-24s %g..%g (default %g)\n", p.ID, p.Name, p.Min, p.Max, p.Default)
	}

	fmt.Println()
	header.Println("Processors")
	if len(result.Processors) == 0 {
		fmt.Println("  (none)")
	}
	for _, p := range result.Processors {
		fmt.Printf("  %-24s %d in, %d out\n", p.Name, p.Inputs, p.Outputs)
	}

	if *exercise {
		if err := exerciseModule(cfg.Module.Artifact, result); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
	}
	return 0
}

// exerciseModule loads the built artifact, runs a sine burst through it at
// the module's defaults, and prints level statistics, so a module can be
// sanity-checked without audio hardware.
func exerciseModule(artifact string, result *discovery.Result) error {
	adapter, err := contract.Load(artifact)
	if err != nil {
		return err
	}
	defer adapter.Close()

	channels := 2
	if len(result.Processors) > 0 && result.Processors[0].Outputs > 0 && result.Processors[0].Outputs < channels {
		channels = result.Processors[0].Outputs
	}

	const (
		sampleRate = 48000
		blockSize  = 512
		blocks     = 32
	)
	adapter.SetSampleRate(sampleRate)
	adapter.Reset()

	in := make([][]float32, channels)
	out := make([][]float32, channels)
	for ch := 0; ch < channels; ch++ {
		in[ch] = make([]float32, blockSize)
		out[ch] = make([]float32, blockSize)
	}

	inCap := analyze.NewCapture(channels)
	outCap := analyze.NewCapture(channels)
	phase := 0
	for b := 0; b < blocks; b++ {
		for i := 0; i < blockSize; i++ {
			s := float32(0.5 * math.Sin(2*math.Pi*440*float64(phase)/sampleRate))
			phase++
			for ch := 0; ch < channels; ch++ {
				in[ch][i] = s
			}
		}
		adapter.Process(in, out, blockSize)
		inCap.Append(in, blockSize)
		outCap.Append(out, blockSize)
	}

	res := outCap.Analyze(analyze.DefaultConfig())
	fmt.Println()
	color.New(color.FgCyan, color.Bold).Println("Signal check (440 Hz sine at -6 dBFS)")
	for ch, stats := range res.PerChannel {
		fmt.Printf("  ch %d  peak %.3f  rms %.3f\n", ch, stats.Peak, stats.RMS)
	}
	fmt.Printf("  gain change %+.1f dB", analyze.GainChange(inCap, outCap))
	switch {
	case res.Silent:
		fmt.Print("  (output silent)")
	case res.Clipped:
		fmt.Print("  (output clipping)")
	}
	fmt.Println()
	return nil
}
