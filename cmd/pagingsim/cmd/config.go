package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/sarchlab/pagingsim/kernel"
	"github.com/sarchlab/pagingsim/mem/vm"
	"github.com/spf13/pflag"
)

// Config holds everything a run can be configured with.
type Config struct {
	Frames       int
	TLBLines     int
	Log2PageSize uint64
	StackPages   int
	Processors   int
	Processes    int
	TextPages    int
	DataPages    int
	Accesses     int
	Quantum      int
	Locality     float64
	Seed         int64
	SwapFile     string
	Eager        bool
}

// envFlags maps the flags that can be set from the environment, or from a
// .env file, to their variables.
var envFlags = map[string]string{
	"frames":         "PAGINGSIM_FRAMES",
	"tlb-size":       "PAGINGSIM_TLB_SIZE",
	"log2-page-size": "PAGINGSIM_LOG2_PAGE_SIZE",
	"stack-pages":    "PAGINGSIM_STACK_PAGES",
	"processors":     "PAGINGSIM_PROCESSORS",
	"swap-file":      "PAGINGSIM_SWAP_FILE",
	"seed":           "PAGINGSIM_SEED",
}

func addConfigFlags(flags *pflag.FlagSet) {
	flags.Int("frames", 16, "number of physical frames")
	flags.Int("tlb-size", 4, "number of lines of each TLB")
	flags.Uint64("log2-page-size", 10, "page size as a power of 2")
	flags.Int("stack-pages", 8, "number of stack pages of each process")
	flags.Int("processors", 1, "number of processors")
	flags.Int("processes", 4, "number of processes to run")
	flags.Int("text-pages", 4, "number of code pages of each process")
	flags.Int("data-pages", 4, "number of data pages of each process")
	flags.Int("accesses", 10000, "number of memory accesses of each process")
	flags.Int("quantum", 100, "number of accesses before a context switch")
	flags.Float64("locality", 0.8,
		"probability that an access stays on the previous page")
	flags.Int64("seed", 1, "seed of the access pattern")
	flags.String("swap-file", "pagingsim.swap", "path of the swap file")
	flags.Bool("eager", false, "load every page when a process starts")
}

// loadEnv reads the .env file, if any, and sets the flags that are not given
// on the command line from the environment.
func loadEnv(flags *pflag.FlagSet, envFile string) error {
	err := godotenv.Load(envFile)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("loading %s: %w", envFile, err)
	}

	for name, env := range envFlags {
		value, ok := os.LookupEnv(env)
		if !ok || flags.Changed(name) {
			continue
		}

		err := flags.Set(name, value)
		if err != nil {
			return fmt.Errorf("%s: %w", env, err)
		}
	}

	return nil
}

func configFromFlags(flags *pflag.FlagSet) (Config, error) {
	var c Config

	c.Frames, _ = flags.GetInt("frames")
	c.TLBLines, _ = flags.GetInt("tlb-size")
	c.Log2PageSize, _ = flags.GetUint64("log2-page-size")
	c.StackPages, _ = flags.GetInt("stack-pages")
	c.Processors, _ = flags.GetInt("processors")
	c.Processes, _ = flags.GetInt("processes")
	c.TextPages, _ = flags.GetInt("text-pages")
	c.DataPages, _ = flags.GetInt("data-pages")
	c.Accesses, _ = flags.GetInt("accesses")
	c.Quantum, _ = flags.GetInt("quantum")
	c.Locality, _ = flags.GetFloat64("locality")
	c.Seed, _ = flags.GetInt64("seed")
	c.SwapFile, _ = flags.GetString("swap-file")
	c.Eager, _ = flags.GetBool("eager")

	return c, c.validate()
}

func (c Config) validate() error {
	switch {
	case c.Frames <= 0:
		return fmt.Errorf("frames must be positive, got %d", c.Frames)
	case c.TLBLines <= 0:
		return fmt.Errorf("tlb-size must be positive, got %d", c.TLBLines)
	case c.Log2PageSize < 3 || c.Log2PageSize > 20:
		return fmt.Errorf("log2-page-size must be in [3, 20], got %d",
			c.Log2PageSize)
	case c.Processors <= 0:
		return fmt.Errorf("processors must be positive, got %d", c.Processors)
	case c.Processes < 0 || c.TextPages < 0 || c.DataPages < 0 ||
		c.StackPages < 0:
		return fmt.Errorf("process sizes must not be negative")
	case c.TextPages+c.DataPages+c.StackPages == 0:
		return fmt.Errorf("processes must have at least one page")
	case c.Quantum <= 0:
		return fmt.Errorf("quantum must be positive, got %d", c.Quantum)
	case c.Locality < 0 || c.Locality > 1:
		return fmt.Errorf("locality must be in [0, 1], got %f", c.Locality)
	}

	return nil
}

// PageSize returns the number of bytes of a page.
func (c Config) PageSize() int {
	return 1 << c.Log2PageSize
}

func (c Config) kernelBuilder() kernel.Builder {
	strategy := vm.DemandLoad
	if c.Eager {
		strategy = vm.EagerLoad
	}

	return kernel.MakeBuilder().
		WithNumFrames(c.Frames).
		WithNumTLBLines(c.TLBLines).
		WithLog2PageSize(c.Log2PageSize).
		WithNumStackPages(c.StackPages).
		WithNumProcessors(c.Processors).
		WithLoadStrategy(strategy).
		WithSwapFile(c.SwapFile)
}
