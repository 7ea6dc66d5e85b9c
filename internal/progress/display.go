package progress

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ariel-frischer/proctest/internal/coordinator"
	"github.com/briandowns/spinner"
	"github.com/fatih/color"
)

// spinnerInterval is the spinner frame period.
const spinnerInterval = 100 * time.Millisecond

// Display reports group verification progress. It satisfies
// orchestrator.Observer. On a terminal a spinner runs while a verification
// process is alive; otherwise one line is printed per event.
type Display struct {
	mu      sync.Mutex
	w       io.Writer
	caps    TerminalCapabilities
	symbols ProgressSymbols
	spin    *spinner.Spinner
}

// NewDisplay creates a display writing to w.
func NewDisplay(w io.Writer, caps TerminalCapabilities) *Display {
	return &Display{w: w, caps: caps, symbols: SelectSymbols(caps)}
}

// GroupStarted starts the spinner for group.
func (d *Display) GroupStarted(group string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	msg := fmt.Sprintf(" verifying group %s", group)
	if !d.caps.IsTTY {
		fmt.Fprintf(d.w, "verifying group %s...\n", group)
		return
	}
	d.spin = spinner.New(spinner.CharSets[d.symbols.SpinnerSet], spinnerInterval, spinner.WithWriter(d.w))
	d.spin.Suffix = msg
	d.spin.Start()
}

// GroupFinished stops the spinner and prints the process outcome.
func (d *Display) GroupFinished(group string, res coordinator.ProcessResult) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.spin != nil {
		d.spin.Stop()
		d.spin = nil
	}
	fmt.Fprintln(d.w, d.outcomeLine(group, res))
}

// GroupFailed stops the spinner and prints why the process did not run to
// exit.
func (d *Display) GroupFailed(group string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.spin != nil {
		d.spin.Stop()
		d.spin = nil
	}
	sym := d.symbols.Failure
	if d.caps.SupportsColor {
		sym = color.New(color.FgRed).Sprint(sym)
	}
	fmt.Fprintf(d.w, "%s group %s: %v\n", sym, group, err)
}

func (d *Display) outcomeLine(group string, res coordinator.ProcessResult) string {
	elapsed := res.Duration.Round(10 * time.Millisecond)
	sym, detail := d.symbols.Checkmark, "process exited cleanly"
	ok := true
	switch {
	case res.Killed:
		sym, detail, ok = d.symbols.Failure, "killed by the watchdog", false
	case res.ExitCode != 0:
		sym, detail, ok = d.symbols.Failure, fmt.Sprintf("exited with code %d", res.ExitCode), false
	case res.Salvaged:
		sym, detail, ok = d.symbols.Failure, "exited without results", false
	}
	if res.Salvaged && (res.Killed || res.ExitCode != 0) {
		detail += "; outcomes salvaged"
	}

	if d.caps.SupportsColor {
		if ok {
			sym = color.New(color.FgGreen).Sprint(sym)
		} else {
			sym = color.New(color.FgRed).Sprint(sym)
		}
	}
	return fmt.Sprintf("%s group %s: %s (%s)", sym, group, detail, elapsed)
}
