// Command vecadd adds two arrays of five-component vectors in a compute shader and
// writes the sums to a text file.
package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/Carmen-Shannon/oxy-waves/common"
	"github.com/Carmen-Shannon/oxy-waves/engine/device"
	"github.com/Carmen-Shannon/oxy-waves/engine/device/soft"
	"github.com/Carmen-Shannon/oxy-waves/engine/device/webgpu"
)

func main() {
	backend := flag.String("backend", "wgpu", "compute backend: wgpu or soft")
	count := flag.Int("n", 32, "number of elements")
	out := flag.String("out", "", "output file (default results.txt)")
	flag.Parse()

	var (
		dev    device.Device
		texels texelIO
	)
	switch *backend {
	case "soft":
		sd := soft.NewDevice()
		dev, texels = sd, softTexels{dev: sd}
	case "wgpu":
		wd, err := webgpu.NewDevice(webgpu.WithSize(1, 1))
		if err != nil {
			log.Fatalf("[VecAdd] creating device: %v", err)
		}
		dev, texels = wd, wd
	default:
		log.Fatalf("[VecAdd] unknown backend %q", *backend)
	}
	defer dev.Release()

	a, b := inputs(*count)
	results, err := vectorAdd(context.Background(), dev, texels, a, b)
	if err != nil {
		log.Fatalf("[VecAdd] %v", err)
	}
	if err := checkResults(a, b, results); err != nil {
		log.Fatalf("[VecAdd] %v", err)
	}

	path := common.Coalesce(*out, "results.txt")
	f, err := os.Create(path)
	if err != nil {
		log.Fatalf("[VecAdd] %v", err)
	}
	defer f.Close()
	if err := writeResults(f, results); err != nil {
		log.Fatalf("[VecAdd] writing %s: %v", path, err)
	}
	log.Printf("[VecAdd] wrote %d elements to %s using %s", len(results), path, dev.Name())
}
