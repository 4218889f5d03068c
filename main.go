package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/jroimartin/gocui"

	"vmsim/config"
	"vmsim/console"
	"vmsim/filesys"
	"vmsim/logger"
	"vmsim/system"
)

var (
	configPath = flag.String("config", "", "JSON configuration file (defaults when empty)")
	simpleMode = flag.Bool("simple", false, "plain terminal output, step with the space bar")
	procCount  = flag.Int("procs", 4, "number of demo processes")
	lifetime   = flag.Int("accesses", 40, "memory accesses per process before it exits")
	delay      = flag.Duration("delay", 200*time.Millisecond, "pause between accesses in the gui")
)

func main() {
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			log.Fatalln(err)
		}
	}
	// the gui owns the terminal, logs go to a file
	if !*simpleMode && cfg.LogPath == "" {
		cfg.LogPath = "vmsim.log"
	}
	l, err := logger.New(cfg.LogPath, cfg.LogLevel)
	if err != nil {
		log.Fatalln(err)
	}
	slog.SetDefault(l)

	fs, err := filesys.NewStub(cfg.FSRoot)
	if err != nil {
		log.Fatalln(err)
	}
	sys, err := system.New(cfg, fs, l)
	if err != nil {
		log.Fatalln(err)
	}

	rnd := rand.New(rand.NewSource(cfg.RandomSeed))
	names, err := installPrograms(fs, *procCount, cfg.PageSize, rnd)
	if err != nil {
		log.Fatalln(err)
	}
	w, err := newWorkload(sys, names, *lifetime, rnd)
	if err != nil {
		log.Fatalln(err)
	}

	if *simpleMode {
		runSimple(sys, w)
		return
	}
	runGui(sys, w)
}

// report pushes the current machine state to c.
func report(c console.Console, sys *system.System) {
	c.ShowFrames(console.FrameTable(sys.Pool().Snapshot(), 0))
	c.ShowRegisters(sys.Machine.DumpRegisters())
}

func summary(sys *system.System) string {
	st := sys.Stats()
	return fmt.Sprintf("faults %d, evictions %d, write backs %d, failures %d, %v",
		st.Faults, st.Evictions, st.WriteBacks, st.Failures, sys.Pool())
}

func runSimple(sys *system.System, w *workload) {
	c := console.NewSimple()
	if err := c.OpenKeys(); err != nil {
		c.WriteConsole(fmt.Sprintf("no terminal (%v), running to the end", err))
	} else {
		c.WriteConsole("space: step, r: run to the end, q: quit")
	}
	defer c.Close()

	run := false
	for !w.Done() {
		if !run {
			k, err := c.NextKey()
			if err != nil {
				log.Println(err)
				return
			}
			switch k {
			case console.KeyQuit:
				return
			case console.KeyRun:
				run = true
			case console.KeyStep:
			default:
				continue
			}
		}

		msg, err := w.Step()
		if err != nil {
			c.WriteConsole(err.Error())
			return
		}
		c.WriteConsole(msg)
		if !run {
			report(c, sys)
		}
	}
	report(c, sys)
	c.WriteConsole(summary(sys))
}

func runGui(sys *system.System, w *workload) {
	g, err := gocui.NewGui(gocui.OutputNormal)
	if err != nil {
		log.Panicln("Couldn't create gui!")
	}
	defer g.Close()

	g.SetManagerFunc(console.Layout)

	c := console.NewGui(g)
	defer c.Close()

	quit := func(g *gocui.Gui, v *gocui.View) error {
		c.Close()
		return gocui.ErrQuit
	}
	if err := g.SetKeybinding("", gocui.KeyCtrlC, gocui.ModNone, quit); err != nil {
		log.Panicln(err)
	}
	var paused atomic.Bool
	togglePause := func(g *gocui.Gui, v *gocui.View) error {
		paused.Store(!paused.Load())
		return nil
	}
	if err := g.SetKeybinding("", gocui.KeySpace, gocui.ModNone, togglePause); err != nil {
		log.Panicln(err)
	}

	go drive(c, sys, w, &paused)

	if err := g.MainLoop(); err != nil && err != gocui.ErrQuit {
		log.Panicln(err)
	}
}

// drive runs the workload on a ticker until it ends or the gui is closed;
// gocui views are only updated through the console.
func drive(c *console.Gui, sys *system.System, w *workload, paused *atomic.Bool) {
	c.WriteConsole("Starting workload, space pauses, ctrl-c quits")
	ticker := time.NewTicker(*delay)
	defer ticker.Stop()

	for {
		select {
		case <-c.Done():
			return
		case <-ticker.C:
		}
		if paused.Load() {
			continue
		}
		msg, err := w.Step()
		if err != nil {
			c.WriteConsole(err.Error())
			return
		}
		c.WriteConsole(msg)
		report(c, sys)
		if w.Done() {
			c.WriteConsole(summary(sys))
			return
		}
	}
}
