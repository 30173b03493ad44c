package cmd

import (
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/sarchlab/pagingsim/kernel"
	"github.com/sarchlab/pagingsim/monitoring"
)

// errCorrupted is returned when a load does not see the last value stored.
var errCorrupted = errors.New("memory content corrupted")

// A task is a process of the workload together with the expected content of
// its memory.
type task struct {
	proc     *kernel.Process
	rng      *rand.Rand
	text     []byte
	memory   map[uint64]byte
	numPages int
	lastVPN  int
	done     int
	bar      *monitoring.ProgressBar
}

// WorkloadResult tells how the processes of a workload ended.
type WorkloadResult struct {
	Completed int
	Killed    int
	Errors    []error
}

type workload struct {
	cfg     Config
	kernel  *kernel.Kernel
	monitor *monitoring.Monitor

	errLock sync.Mutex
	result  WorkloadResult
}

func newImage(cfg Config, seed int) (*kernel.Image, []byte) {
	pageSize := cfg.PageSize()

	text := make([]byte, cfg.TextPages*pageSize)
	for i := range text {
		text[i] = byte(i*7 + seed*31)
	}

	data := make([]byte, cfg.DataPages*pageSize)
	for i := range data {
		data[i] = byte(i*13 + seed)
	}

	img := kernel.NewImage(pageSize)
	if cfg.TextPages > 0 {
		img.AddSection(".text", true, text)
	}

	if cfg.DataPages > 0 {
		img.AddSection(".data", false, data)
	}

	return img, append(text, data...)
}

// runWorkload starts cfg.Processes processes and shares the processors among
// them in round-robin order until every process has performed its accesses.
func runWorkload(
	cfg Config,
	k *kernel.Kernel,
	monitor *monitoring.Monitor,
) (WorkloadResult, error) {
	w := &workload{cfg: cfg, kernel: k, monitor: monitor}

	tasks, err := w.start()
	if err != nil {
		return WorkloadResult{}, err
	}

	if len(tasks) == 0 {
		return w.result, nil
	}

	queue := make(chan *task, len(tasks))
	for _, t := range tasks {
		queue <- t
	}

	remaining := int64(len(tasks))

	var wg sync.WaitGroup

	for _, cpu := range k.Processors() {
		wg.Add(1)

		go func(cpu *kernel.Processor) {
			defer wg.Done()

			for t := range queue {
				if w.runQuantum(cpu, t) {
					queue <- t
					continue
				}

				if atomic.AddInt64(&remaining, -1) == 0 {
					close(queue)
				}
			}

			cpu.Switch(nil)
		}(cpu)
	}

	wg.Wait()

	return w.result, nil
}

func (w *workload) start() ([]*task, error) {
	var tasks []*task

	for i := 0; i < w.cfg.Processes; i++ {
		img, content := newImage(w.cfg, i)
		name := fmt.Sprintf("proc%d", i)
		seed := w.cfg.Seed + int64(i)

		p, err := w.kernel.Exec(name, img,
			[]string{name, strconv.FormatInt(seed, 10)})
		if err != nil {
			return nil, err
		}

		t := &task{
			proc:     p,
			rng:      rand.New(rand.NewSource(seed)),
			text:     content,
			memory:   make(map[uint64]byte),
			numPages: p.PageTable().NumPages() - 1,
		}

		if w.monitor != nil {
			t.bar = w.monitor.CreateProgressBar(name, uint64(w.cfg.Accesses))
		}

		tasks = append(tasks, t)
	}

	return tasks, nil
}

// runQuantum runs t on cpu for one time slice and tells if t has more
// accesses to perform.
func (w *workload) runQuantum(cpu *kernel.Processor, t *task) bool {
	cpu.Switch(t.proc)

	for i := 0; i < w.cfg.Quantum && t.done < w.cfg.Accesses; i++ {
		err := w.access(cpu, t)
		if err != nil {
			w.fail(t, err)
			return false
		}

		t.done++

		if t.bar != nil {
			t.bar.IncrementFinished(1)
		}
	}

	if t.done < w.cfg.Accesses {
		return true
	}

	t.proc.Exit(0)
	w.finish(t, nil)

	return false
}

func (w *workload) access(cpu *kernel.Processor, t *task) error {
	pageSize := w.cfg.PageSize()

	vpn := t.lastVPN
	if t.rng.Float64() >= w.cfg.Locality {
		vpn = t.rng.Intn(t.numPages)
	}

	t.lastVPN = vpn

	vaddr := uint64(vpn*pageSize + t.rng.Intn(pageSize))
	writable := vpn >= w.cfg.TextPages

	if writable && t.rng.Intn(2) == 0 {
		b := byte(t.rng.Intn(256))
		t.memory[vaddr] = b

		return cpu.Store(vaddr, b)
	}

	got, err := cpu.Load(vaddr)
	if err != nil {
		return err
	}

	want := t.expected(vaddr)
	if got != want {
		return fmt.Errorf("%w: process %d at 0x%x, got %d, want %d",
			errCorrupted, t.proc.PID(), vaddr, got, want)
	}

	return nil
}

func (t *task) expected(vaddr uint64) byte {
	if b, ok := t.memory[vaddr]; ok {
		return b
	}

	if vaddr < uint64(len(t.text)) {
		return t.text[vaddr]
	}

	return 0
}

func (w *workload) fail(t *task, err error) {
	if !t.proc.Exited() {
		t.proc.Kill(err)
	}

	w.finish(t, err)
}

func (w *workload) finish(t *task, err error) {
	if t.bar != nil {
		w.monitor.CompleteProgressBar(t.bar)
	}

	w.errLock.Lock()
	defer w.errLock.Unlock()

	if err == nil {
		w.result.Completed++
		return
	}

	w.result.Killed++
	w.result.Errors = append(w.result.Errors, err)
}
