// Package engine owns the light-show worker lifecycle: translating
// analysis frames (or the pattern-only fallback) into lamp commands
// under a chosen visual mode, per spec section 4.D.
package engine

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Drewsername/localweb/internal/analysis"
	"github.com/Drewsername/localweb/internal/pcmsource"
	"github.com/Drewsername/localweb/internal/showmode"
)

const (
	workerHz         = 30
	workerPeriod     = time.Second / workerHz
	stopJoinTimeout  = 2 * time.Second
	resetColorR      = 255
	resetColorG      = 180
	resetColorB      = 100
	resetBrightness  = 50
	minIntensity     = 1
	maxIntensity     = 10
	minLatencyMs     = -500
	maxLatencyMs     = 500
)

// LampController is the subset of *lamp.Transport the engine needs.
// Defining it here lets the engine be tested with a fake transport.
type LampController interface {
	GetIP(ctx context.Context, deviceID string) (string, bool)
	Turn(ip string, on bool)
	SetBrightness(ip string, percent int)
	SetColor(ip string, r, g, b uint8)
}

// Status is a snapshot returned by Engine.Status.
type Status struct {
	Active          bool
	Mode            string
	LatencyMs       int
	Intensity       int
	LightsConnected int
	PipeExists      bool
	Level           float64
}

// Engine owns the show worker. The worker goroutine is the sole mutator
// of huePhase and beatCount; mode/latencyOffsetMs/intensity are set by
// the supervisor under mu and read by the worker under mu — so neither
// side ever observes a torn compound update. running and pipeExists are
// atomics and are read and written without mu.
type Engine struct {
	transport LampController
	fifoPath  string

	mu              sync.Mutex // protects the fields below
	mode            showmode.Mode
	lampIPs         []string
	latencyOffsetMs int
	intensity       int
	huePhase        float64
	beatCount       uint64
	smoothedLevel   float64

	running    atomic.Bool
	pipeExists atomic.Bool
	stopCh     chan struct{}
	wg         sync.WaitGroup
}

// New returns an Idle engine bound to transport for lamp control and
// fifoPath for the audio source.
func New(transport LampController, fifoPath string) *Engine {
	return &Engine{transport: transport, fifoPath: fifoPath}
}

// Start resolves every device id through the transport concurrently
// (errgroup, mirroring the discovery pipeline the show-engine design is
// grounded on), issues turn(on=true) to every resolved lamp, and spawns
// the worker if one is not already running. A repeat Start call while
// running is a configuration update, not a restart.
func (e *Engine) Start(ctx context.Context, mode string, deviceIDs []string, latencyMs, intensity int) error {
	if !showmode.Valid(mode) {
		return &BadModeError{Mode: mode}
	}
	if latencyMs < minLatencyMs || latencyMs > maxLatencyMs {
		return &ConfigOutOfRangeError{Field: "latency_ms", Value: latencyMs}
	}
	intensity = clampInt(intensity, minIntensity, maxIntensity)

	ips := make([]string, len(deviceIDs))
	g, gctx := errgroup.WithContext(ctx)
	for i, id := range deviceIDs {
		i, id := i, id
		g.Go(func() error {
			ip, ok := e.transport.GetIP(gctx, id)
			if ok {
				ips[i] = ip
			}
			return nil
		})
	}
	_ = g.Wait() // resolution failures are represented as "" entries, not errors

	resolved := make([]string, 0, len(ips))
	for _, ip := range ips {
		if ip != "" {
			resolved = append(resolved, ip)
		}
	}
	if len(resolved) == 0 {
		return &NoLampsError{DeviceIDs: deviceIDs}
	}

	for _, ip := range resolved {
		e.transport.Turn(ip, true)
	}

	e.mu.Lock()
	e.mode = showmode.Mode(mode)
	e.lampIPs = resolved
	e.latencyOffsetMs = latencyMs
	e.intensity = intensity
	alreadyRunning := e.running.Load()
	e.mu.Unlock()

	if alreadyRunning {
		return nil
	}

	e.stopCh = make(chan struct{})
	e.running.Store(true)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.runWorker()
	}()
	return nil
}

// Stop signals the worker, joins it within stopJoinTimeout, and emits a
// warm-white reset command to every lamp. Reset bypasses the throttle
// and swallows send failures (fire-and-forget).
func (e *Engine) Stop() {
	if !e.running.CompareAndSwap(true, false) {
		return
	}
	close(e.stopCh)

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(stopJoinTimeout):
		log.Println("[engine] worker did not join within the stop deadline")
	}

	e.mu.Lock()
	ips := append([]string(nil), e.lampIPs...)
	e.mu.Unlock()

	for _, ip := range ips {
		e.transport.SetColor(ip, resetColorR, resetColorG, resetColorB)
		e.transport.SetBrightness(ip, resetBrightness)
	}
}

// SetMode updates the active mode. mode="off" stops the worker exactly
// like Stop, except the worker is not necessarily joined synchronously.
func (e *Engine) SetMode(mode string) error {
	if mode == string(showmode.ModeOff) {
		go e.Stop()
		return nil
	}
	if !showmode.Valid(mode) {
		return &BadModeError{Mode: mode}
	}
	e.mu.Lock()
	e.mode = showmode.Mode(mode)
	e.mu.Unlock()
	return nil
}

// SetLatency updates the latency offset. Negative values are accepted
// and stored but only a positive offset causes the worker to sleep
// (spec section 9's open question, preserved literally).
func (e *Engine) SetLatency(ms int) error {
	if ms < minLatencyMs || ms > maxLatencyMs {
		return &ConfigOutOfRangeError{Field: "latency_ms", Value: ms}
	}
	e.mu.Lock()
	e.latencyOffsetMs = ms
	e.mu.Unlock()
	return nil
}

// SetIntensity updates the intensity scale, clamping out-of-range input.
func (e *Engine) SetIntensity(v int) {
	v = clampInt(v, minIntensity, maxIntensity)
	e.mu.Lock()
	e.intensity = v
	e.mu.Unlock()
}

// Status returns a snapshot of the engine's externally visible state.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Status{
		Active:          e.running.Load() && e.mode != showmode.ModeOff && e.mode != "",
		Mode:            string(e.mode),
		LatencyMs:       e.latencyOffsetMs,
		Intensity:       e.intensity,
		LightsConnected: len(e.lampIPs),
		PipeExists:      e.pipeExists.Load(),
		Level:           e.smoothedLevel,
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// runWorker is the single supervised worker goroutine. It never touches
// e.mu across a network send or a sleep — only to read/write the
// compound state the supervisor can also mutate.
func (e *Engine) runWorker() {
	// A panic here must not take the process down with it: the engine
	// has to come back up Idle and joinable so the next Start succeeds.
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[engine] worker panic: %v", r)
			e.running.Store(false)
		}
	}()

	analyzer := analysis.NewAnalyzer()
	leveler := analysis.NewLeveler()

	var source *pcmsource.Source
	if s, err := pcmsource.Open(e.fifoPath); err != nil {
		e.pipeExists.Store(false)
	} else {
		source = s
		e.pipeExists.Store(true)
		defer source.Close()
	}

	e.mu.Lock()
	numLamps := len(e.lampIPs)
	e.mu.Unlock()
	throttle := showmode.NewThrottle(numLamps)

	start := time.Now()

	for {
		select {
		case <-e.stopCh:
			return
		default:
		}

		tStart := time.Now()

		e.mu.Lock()
		mode := e.mode
		lampIPs := append([]string(nil), e.lampIPs...)
		latencyMs := e.latencyOffsetMs
		intensity := e.intensity
		huePhase := e.huePhase
		beatCount := e.beatCount
		smoothedLevel := e.smoothedLevel
		e.mu.Unlock()

		if mode == showmode.ModeOff {
			return
		}

		patternOnly := source == nil
		var frame analysis.Frame
		if !patternOnly {
			status, samples := source.ReadWindow()
			switch status {
			case pcmsource.StatusClosed:
				return
			case pcmsource.StatusSilent:
				patternOnly = true
			case pcmsource.StatusWindow:
				frame = analyzer.Analyze(samples)
				smoothedLevel = leveler.Update(frame.RMS)
			}
		}

		var newHuePhase float64
		var cmds [2]showmode.LampCommand

		if patternOnly {
			t := time.Since(start).Seconds()
			newHuePhase, cmds[0], cmds[1] = showmode.Pattern(mode, huePhase, t)
		} else {
			if latencyMs > 0 {
				time.Sleep(time.Duration(latencyMs) * time.Millisecond)
			}
			if frame.Beat {
				beatCount++
			}
			switch mode {
			case showmode.ModePulse:
				var cmd showmode.LampCommand
				newHuePhase, cmd = showmode.Pulse(huePhase, intensity, frame.RMS, frame.Beat)
				cmds[0], cmds[1] = cmd, cmd
			case showmode.ModeAmbient:
				newHuePhase, cmds[0], cmds[1] = showmode.Ambient(huePhase, intensity, frame.RMS)
			case showmode.ModeParty:
				newHuePhase, cmds[0], cmds[1] = showmode.Party(huePhase, intensity, frame.RMS, frame.Beat, beatCount)
			}
		}

		for idx, ip := range lampIPs {
			if idx > 1 {
				break
			}
			if !throttle.Allow(idx) {
				continue
			}
			c := cmds[idx]
			e.transport.SetColor(ip, c.Color.R, c.Color.G, c.Color.B)
			e.transport.SetBrightness(ip, c.Brightness)
		}

		e.mu.Lock()
		e.huePhase = newHuePhase
		e.beatCount = beatCount
		e.smoothedLevel = smoothedLevel
		e.mu.Unlock()

		elapsed := time.Since(tStart)
		if sleep := workerPeriod - elapsed; sleep > 0 {
			time.Sleep(sleep)
		}
	}
}
