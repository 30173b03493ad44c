package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/pagingsim/datarecording"
	"github.com/sarchlab/pagingsim/memory"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func newFlags(args ...string) *pflag.FlagSet {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	addConfigFlags(flags)
	Expect(flags.Parse(args)).To(Succeed())

	return flags
}

func smallConfig() Config {
	return Config{
		Frames:       4,
		TLBLines:     2,
		Log2PageSize: 4,
		StackPages:   2,
		Processors:   2,
		Processes:    3,
		TextPages:    1,
		DataPages:    2,
		Accesses:     300,
		Quantum:      20,
		Locality:     0.5,
		Seed:         7,
	}
}

var _ = Describe("Config", func() {
	It("should take the flags given on the command line", func() {
		cfg, err := configFromFlags(newFlags("--frames", "32", "--eager"))

		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Frames).To(Equal(32))
		Expect(cfg.Eager).To(BeTrue())
		Expect(cfg.TLBLines).To(Equal(4))
		Expect(cfg.PageSize()).To(Equal(1024))
	})

	It("should reject invalid values", func() {
		_, err := configFromFlags(newFlags("--frames", "0"))
		Expect(err).To(HaveOccurred())

		_, err = configFromFlags(newFlags("--locality", "2"))
		Expect(err).To(HaveOccurred())
	})

	It("should read the environment, letting flags win", func() {
		envFile := filepath.Join(GinkgoT().TempDir(), ".env")
		Expect(os.WriteFile(envFile,
			[]byte("PAGINGSIM_FRAMES=7\nPAGINGSIM_TLB_SIZE=9\n"), 0o644)).
			To(Succeed())

		DeferCleanup(func() {
			os.Unsetenv("PAGINGSIM_FRAMES")
			os.Unsetenv("PAGINGSIM_TLB_SIZE")
		})

		flags := newFlags("--tlb-size", "3")
		Expect(loadEnv(flags, envFile)).To(Succeed())

		cfg, err := configFromFlags(flags)
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Frames).To(Equal(7))
		Expect(cfg.TLBLines).To(Equal(3))
	})

	It("should ignore a missing env file", func() {
		flags := newFlags()

		err := loadEnv(flags, filepath.Join(GinkgoT().TempDir(), "none"))

		Expect(err).NotTo(HaveOccurred())
	})
})

var _ = Describe("Workload", func() {
	It("should run every process to completion", func() {
		cfg := smallConfig()
		k, err := cfg.kernelBuilder().
			WithSwapMedium(memory.NewStorageWithUnitSize(0, 16)).
			Build("Kernel")
		Expect(err).NotTo(HaveOccurred())

		result, err := runWorkload(cfg, k, nil)

		Expect(err).NotTo(HaveOccurred())
		Expect(result.Errors).To(BeEmpty())
		Expect(result.Completed).To(Equal(3))
		Expect(k.Processes()).To(BeEmpty())
		Expect(k.IPT().NumFree()).To(Equal(4))
		Expect(k.Swap().NumUsed()).To(Equal(0))
		Expect(k.CheckInvariants()).To(Succeed())

		stats := k.Stats().Snapshot()
		Expect(stats.SwapOuts).To(BeNumerically(">", 0))
		Expect(stats.TLBFlushes).To(BeNumerically(">", 0))
	})

	It("should run nothing without processes", func() {
		cfg := smallConfig()
		cfg.Processes = 0
		k, err := cfg.kernelBuilder().
			WithSwapMedium(memory.NewStorageWithUnitSize(0, 16)).
			Build("Kernel")
		Expect(err).NotTo(HaveOccurred())

		result, err := runWorkload(cfg, k, nil)

		Expect(err).NotTo(HaveOccurred())
		Expect(result.Completed).To(Equal(0))
	})
})

var _ = Describe("Run", func() {
	It("should print the statistics and record the events", func() {
		dir := GinkgoT().TempDir()
		cfg := smallConfig()
		cfg.SwapFile = filepath.Join(dir, "test.swap")
		recordPath := filepath.Join(dir, "record")

		out := bytes.NewBuffer(nil)
		cmd := &cobra.Command{}
		cmd.SetOut(out)

		err := run(cmd, cfg, runOptions{record: true, recordPath: recordPath})

		Expect(err).NotTo(HaveOccurred())
		Expect(out.String()).To(ContainSubstring("3 completed, 0 killed"))
		Expect(out.String()).To(ContainSubstring("Paging: page faults"))
		Expect(cfg.SwapFile).NotTo(BeAnExistingFile())

		reader := datarecording.NewReader(recordPath + ".sqlite3")
		defer reader.Close()

		summary := bytes.NewBuffer(nil)
		err = report(context.Background(), summary, reader)

		Expect(err).NotTo(HaveOccurred())
		Expect(summary.String()).To(ContainSubstring("Frames: 4"))
		Expect(summary.String()).To(ContainSubstring("paging events"))
		Expect(summary.String()).To(ContainSubstring("PageFault"))
	})
})
