package monitoring

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/pagingsim/kernel"
	"github.com/sarchlab/pagingsim/memory"
)

func get(h http.Handler, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	return rec
}

func decode(rec *httptest.ResponseRecorder, v any) {
	Expect(rec.Code).To(Equal(http.StatusOK))
	Expect(json.Unmarshal(rec.Body.Bytes(), v)).To(Succeed())
}

var _ = Describe("Monitor", func() {
	var (
		k *kernel.Kernel
		p *kernel.Process
		m *Monitor
		h http.Handler
	)

	BeforeEach(func() {
		var err error

		k, err = kernel.MakeBuilder().
			WithLog2PageSize(4).
			WithNumFrames(2).
			WithNumStackPages(2).
			WithSwapMedium(memory.NewStorageWithUnitSize(0, 16)).
			Build("Kernel")
		Expect(err).NotTo(HaveOccurred())

		img := kernel.NewImage(16).AddSection(".text", true, []byte("abc"))
		p, err = k.Exec("prog", img, nil)
		Expect(err).NotTo(HaveOccurred())

		cpu := k.Processor(0)
		cpu.Switch(p)
		Expect(cpu.Store(16, 1)).To(Succeed())
		Expect(cpu.Store(32, 2)).To(Succeed())
		_, err = cpu.Load(0)
		Expect(err).NotTo(HaveOccurred())

		m = NewMonitor()
		m.RegisterKernel(k)
		h = m.Handler()
	})

	It("should list the components", func() {
		var names []string
		decode(get(h, "/api/list_components"), &names)

		Expect(names).To(Equal([]string{
			"Kernel",
			"Kernel.MMU",
			"Kernel.Processor[0].TLB",
		}))
	})

	It("should report 404 for an unknown component", func() {
		rec := get(h, "/api/component/Nothing")

		Expect(rec.Code).To(Equal(http.StatusNotFound))
	})

	It("should list the frames", func() {
		var frames []frameRsp
		decode(get(h, "/api/frames"), &frames)

		Expect(frames).To(HaveLen(2))
		for _, f := range frames {
			Expect(f.Owned).To(BeTrue())
			Expect(f.PID).To(Equal(p.PID()))
			Expect(f.PinCount).To(Equal(0))
		}
	})

	It("should list the processes", func() {
		var procs []processRsp
		decode(get(h, "/api/processes"), &procs)

		Expect(procs).To(HaveLen(1))
		Expect(procs[0].Name).To(Equal("prog"))
		Expect(procs[0].NumPages).To(Equal(4))
		Expect(procs[0].Resident).To(Equal(2))
		Expect(procs[0].Swapped).To(Equal(1))
	})

	It("should list the pages of a process", func() {
		rec := get(h, "/api/process/1")
		Expect(rec.Code).To(Equal(http.StatusOK))

		Expect(get(h, "/api/process/9").Code).To(Equal(http.StatusNotFound))
		Expect(get(h, "/api/process/x").Code).To(Equal(http.StatusBadRequest))
	})

	It("should list the TLB lines", func() {
		Expect(get(h, "/api/tlb/0").Code).To(Equal(http.StatusOK))
		Expect(get(h, "/api/tlb/1").Code).To(Equal(http.StatusNotFound))
	})

	It("should report the counters", func() {
		var stats kernel.StatsSnapshot
		decode(get(h, "/api/stats"), &stats)

		Expect(stats.PageFaults).To(Equal(uint64(3)))
		Expect(stats.ZeroFills).To(Equal(uint64(2)))
		Expect(stats.SwapOuts).To(Equal(uint64(1)))
	})

	It("should report the swap usage", func() {
		var s swapRsp
		decode(get(h, "/api/swap"), &s)

		Expect(s.SlotSize).To(Equal(16))
		Expect(s.NumUsed).To(Equal(1))
	})

	It("should list the progress bars", func() {
		bar := m.CreateProgressBar("prog", 10)
		bar.IncrementInProgress(3)
		bar.MoveInProgressToFinished(2)

		var bars []ProgressBar
		decode(get(h, "/api/progress"), &bars)

		Expect(bars).To(HaveLen(1))
		Expect(bars[0].Name).To(Equal("prog"))
		Expect(bars[0].Finished).To(Equal(uint64(2)))
		Expect(bars[0].InProgress).To(Equal(uint64(1)))

		m.CompleteProgressBar(bar)
		decode(get(h, "/api/progress"), &bars)
		Expect(bars).To(BeEmpty())
	})

	It("should serve the web page", func() {
		rec := get(h, "/")

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(HavePrefix("<!DOCTYPE html>"))
	})
})
