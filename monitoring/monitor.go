// Package monitoring serves the state of a running kernel over HTTP.
package monitoring

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"strconv"
	"strings"
	"sync"
	"time"

	// Enable profiling
	_ "net/http/pprof"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/pkg/browser"
	"github.com/rs/xid"
	"github.com/sarchlab/pagingsim/kernel"
	"github.com/sarchlab/pagingsim/mem/vm"
	"github.com/sarchlab/pagingsim/monitoring/web"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"
)

// A NamedComponent is anything that can be inspected by name.
type NamedComponent interface {
	Name() string
}

// Monitor turns a kernel into a server that shows its frames, processes and
// counters.
type Monitor struct {
	kernel     *kernel.Kernel
	components []NamedComponent
	portNumber int

	progressBarsLock sync.Mutex
	progressBars     []*ProgressBar
}

// NewMonitor creates a new Monitor
func NewMonitor() *Monitor {
	return &Monitor{}
}

// WithPortNumber sets the port number of the monitor.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber < 1000 {
		fmt.Fprintf(os.Stderr,
			"Port number %d is assigned to the monitoring server, "+
				"which is not allowed. Using a random port instead.\n", portNumber)
		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// RegisterKernel registers the kernel to monitor, together with its MMU and
// TLBs as inspectable components.
func (m *Monitor) RegisterKernel(k *kernel.Kernel) {
	m.kernel = k

	m.RegisterComponent(k)
	m.RegisterComponent(k.MMU())

	for _, p := range k.Processors() {
		m.RegisterComponent(p.TLB())
	}
}

// RegisterComponent registers a component to be inspected.
func (m *Monitor) RegisterComponent(c NamedComponent) {
	m.components = append(m.components, c)
}

// CreateProgressBar creates a new progress bar.
func (m *Monitor) CreateProgressBar(name string, total uint64) *ProgressBar {
	bar := &ProgressBar{
		ID:        xid.New().String(),
		Name:      name,
		StartTime: time.Now(),
		Total:     total,
	}

	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	m.progressBars = append(m.progressBars, bar)

	return bar
}

// CompleteProgressBar removes a bar to be shown on the webpage.
func (m *Monitor) CompleteProgressBar(pb *ProgressBar) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	newBars := make([]*ProgressBar, 0, len(m.progressBars))
	for _, b := range m.progressBars {
		if b != pb {
			newBars = append(newBars, b)
		}
	}

	m.progressBars = newBars
}

// Handler returns the router serving the API and the web page.
func (m *Monitor) Handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/api/list_components", m.listComponents)
	r.HandleFunc("/api/component/{name}", m.listComponentDetails)
	r.HandleFunc("/api/field/{json}", m.listFieldValue)
	r.HandleFunc("/api/frames", m.listFrames)
	r.HandleFunc("/api/processes", m.listProcesses)
	r.HandleFunc("/api/process/{pid}", m.listPages)
	r.HandleFunc("/api/tlb/{id}", m.listTLBLines)
	r.HandleFunc("/api/stats", m.reportStats)
	r.HandleFunc("/api/swap", m.reportSwap)
	r.HandleFunc("/api/progress", m.listProgressBars)
	r.HandleFunc("/api/resource", m.listResources)
	r.HandleFunc("/api/profile", m.collectProfile)
	r.PathPrefix("/debug/pprof/").Handler(http.DefaultServeMux)
	r.PathPrefix("/").Handler(http.FileServer(web.GetAssets()))

	return r
}

// StartServer starts the monitor as a web server and returns its URL.
func (m *Monitor) StartServer() string {
	actualPort := ":0"
	if m.portNumber > 1000 {
		actualPort = ":" + strconv.Itoa(m.portNumber)
	}

	listener, err := net.Listen("tcp", actualPort)
	dieOnErr(err)

	url := fmt.Sprintf("http://localhost:%d",
		listener.Addr().(*net.TCPAddr).Port)

	fmt.Fprintf(os.Stderr, "Monitoring paging with %s\n", url)

	go func() {
		err := http.Serve(listener, m.Handler())
		dieOnErr(err)
	}()

	return url
}

// OpenBrowser shows the monitoring page in the default browser.
func (m *Monitor) OpenBrowser(url string) {
	err := browser.OpenURL(url)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Cannot open the browser: %v\n", err)
	}
}

func (m *Monitor) listComponents(w http.ResponseWriter, _ *http.Request) {
	names := make([]string, 0, len(m.components))
	for _, c := range m.components {
		names = append(names, c.Name())
	}

	writeJSON(w, names)
}

func (m *Monitor) listComponentDetails(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	component := m.findComponentOr404(w, name)
	if component == nil {
		return
	}

	serializer := goseth.NewSerializer()
	serializer.SetRoot(component)
	serializer.SetMaxDepth(1)
	err := serializer.Serialize(w)

	dieOnErr(err)
}

type fieldReq struct {
	CompName  string `json:"comp_name,omitempty"`
	FieldName string `json:"field_name,omitempty"`
}

func (m *Monitor) listFieldValue(w http.ResponseWriter, r *http.Request) {
	jsonString := mux.Vars(r)["json"]
	req := fieldReq{}

	err := json.Unmarshal([]byte(jsonString), &req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	component := m.findComponentOr404(w, req.CompName)
	if component == nil {
		return
	}

	serializer := goseth.NewSerializer()
	serializer.SetRoot(component)
	serializer.SetMaxDepth(1)

	err = serializer.SetEntryPoint(strings.Split(req.FieldName, "."))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = serializer.Serialize(w)
	dieOnErr(err)
}

func (m *Monitor) findComponentOr404(
	w http.ResponseWriter,
	name string,
) NamedComponent {
	for _, c := range m.components {
		if c.Name() == name {
			return c
		}
	}

	http.Error(w, "Component not found", http.StatusNotFound)

	return nil
}

type frameRsp struct {
	Frame    int    `json:"frame"`
	PID      vm.PID `json:"pid"`
	VPN      int    `json:"vpn"`
	Owned    bool   `json:"owned"`
	PinCount int    `json:"pin_count"`
	Used     bool   `json:"used"`
	Dirty    bool   `json:"dirty"`
}

func (m *Monitor) listFrames(w http.ResponseWriter, _ *http.Request) {
	entries := m.kernel.IPT().Snapshot()
	rsp := make([]frameRsp, 0, len(entries))

	for i, e := range entries {
		f := frameRsp{
			Frame:    i,
			VPN:      -1,
			PinCount: e.PinCount,
		}

		if e.Owner != nil {
			f.PID = e.Owner.PID()
			f.VPN = e.Page.VPN
			f.Owned = true
			f.Used = e.Page.Used
			f.Dirty = e.Page.Dirty
		}

		rsp = append(rsp, f)
	}

	writeJSON(w, rsp)
}

type processRsp struct {
	PID      vm.PID `json:"pid"`
	ID       string `json:"id"`
	Name     string `json:"name"`
	NumPages int    `json:"num_pages"`
	Resident int    `json:"resident"`
	Swapped  int    `json:"swapped"`
}

func (m *Monitor) listProcesses(w http.ResponseWriter, _ *http.Request) {
	procs := m.kernel.Processes()
	rsp := make([]processRsp, 0, len(procs))

	for _, p := range procs {
		pt := p.PageTable()
		info := processRsp{
			PID:      p.PID(),
			ID:       p.ID(),
			Name:     p.Name(),
			NumPages: pt.NumPages(),
		}

		for _, page := range pt.Pages() {
			if page.Valid {
				info.Resident++
			}
		}

		for vpn := 0; vpn < pt.NumPages(); vpn++ {
			if pt.SwapSlot(vpn) != vm.NoSlot {
				info.Swapped++
			}
		}

		rsp = append(rsp, info)
	}

	writeJSON(w, rsp)
}

func (m *Monitor) listPages(w http.ResponseWriter, r *http.Request) {
	pid, err := strconv.ParseUint(mux.Vars(r)["pid"], 10, 32)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	p, ok := m.kernel.Process(vm.PID(pid))
	if !ok {
		http.Error(w, "Process not found", http.StatusNotFound)
		return
	}

	writeJSON(w, p.PageTable().Pages())
}

func (m *Monitor) listTLBLines(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if id < 0 || id >= len(m.kernel.Processors()) {
		http.Error(w, "Processor not found", http.StatusNotFound)
		return
	}

	writeJSON(w, m.kernel.Processor(id).TLB().Lines())
}

func (m *Monitor) reportStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, m.kernel.Stats().Snapshot())
}

type swapRsp struct {
	SlotSize int `json:"slot_size"`
	NumSlots int `json:"num_slots"`
	NumUsed  int `json:"num_used"`
}

func (m *Monitor) reportSwap(w http.ResponseWriter, _ *http.Request) {
	s := m.kernel.Swap()

	writeJSON(w, swapRsp{
		SlotSize: s.SlotSize(),
		NumSlots: s.NumSlots(),
		NumUsed:  s.NumUsed(),
	})
}

func (m *Monitor) listProgressBars(w http.ResponseWriter, _ *http.Request) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	writeJSON(w, m.progressBars)
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	pid := os.Getpid()
	process, err := process.NewProcess(int32(pid))
	dieOnErr(err)

	cpuPercent, err := process.CPUPercent()
	dieOnErr(err)

	memorySize, err := process.MemoryInfo()
	dieOnErr(err)

	writeJSON(w, resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memorySize.RSS,
	})
}

func (m *Monitor) collectProfile(w http.ResponseWriter, _ *http.Request) {
	buf := bytes.NewBuffer(nil)

	err := pprof.StartCPUProfile(buf)
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	time.Sleep(time.Second)

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	dieOnErr(err)

	writeJSON(w, prof)
}

func writeJSON(w http.ResponseWriter, v any) {
	bytes, err := json.Marshal(v)
	dieOnErr(err)

	w.Header().Set("Content-Type", "application/json")

	_, err = w.Write(bytes)
	dieOnErr(err)
}

func dieOnErr(err error) {
	if err != nil {
		log.Panic(err)
	}
}
