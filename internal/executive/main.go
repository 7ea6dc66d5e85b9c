package executive

import (
	"fmt"
	"os"

	"github.com/ariel-frischer/proctest/internal/controller"
	"github.com/ariel-frischer/proctest/internal/logging"
	"github.com/ariel-frischer/proctest/internal/node"
	"github.com/ariel-frischer/proctest/internal/registry"
	"github.com/ariel-frischer/proctest/internal/snapshot"
	"github.com/ariel-frischer/proctest/internal/status"
	"github.com/ariel-frischer/proctest/internal/watchdog"
	"go.uber.org/zap"
)

// Main runs the verification pass described by the descriptor at path: it
// replays the group's configuration snapshot with a fresh root unit,
// records outcomes in the group's status store and writes the results
// snapshot. Results are written even when units raised configuration errors;
// those are returned afterwards.
func Main(path string, units *registry.Registry) error {
	d, err := ReadDescriptor(path)
	if err != nil {
		return err
	}

	log, closeLog, err := logging.New(d.Logging, nil)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer closeLog()
	log = log.Named("executive").With(zap.String("group", d.Group), zap.Int("pid", os.Getpid()))

	for k, v := range d.Environment {
		os.Setenv(k, v)
	}

	hb := watchdog.NewHeartbeat(d.HeartbeatInterval, log)
	if err := hb.Start(d.HeartbeatDir, d.HeartbeatName); err != nil {
		return err
	}
	defer hb.Stop()

	ctor, ok := units.Unit(d.EntryPoint)
	if !ok {
		return fmt.Errorf("group %q: entry point %q is not registered", d.Group, d.EntryPoint)
	}

	tree, _, err := snapshot.Load(d.Configuration, d.Branch, snapshot.KindConfiguration)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	store, err := openStores(d, log)
	if err != nil {
		return err
	}
	defer store.Close()

	log.Info("verification started",
		zap.String("entry_point", d.EntryPoint),
		zap.Int("nodes", tree.Size()),
		zap.Int("threads", d.Threads),
		zap.Stringer("selection", d.Flag))

	run := controller.NewRun(controller.Options{
		Workers: d.Threads,
		Flag:    d.Flag,
		Store:   store,
		Params:  d.Parameters,
		Logger:  log,
	})
	verifyErr := run.Verify(tree, ctor())

	hdr := snapshot.Header{Branch: d.Branch, Kind: snapshot.KindResults, Group: d.Group}
	if err := snapshot.Save(d.Results, hdr, tree); err != nil {
		return fmt.Errorf("writing results: %w", err)
	}

	log.Info("verification complete",
		zap.Stringer("state", tree.State),
		zap.Int("executed", run.Executed()),
		zap.Int("failed", countState(tree, node.CompleteFailed)))
	return verifyErr
}

// openStores opens the group's own store and, read-only, the stores of
// earlier groups. An unreadable earlier store is skipped: prerequisites in
// it then count as not satisfied.
func openStores(d *Descriptor, log *zap.Logger) (*status.Set, error) {
	own, err := status.Open(d.Status)
	if err != nil {
		return nil, err
	}
	var others []*status.File
	for _, p := range d.ReadStores {
		f, err := status.OpenReadOnly(p)
		if err != nil {
			log.Warn("skipping status store", zap.String("path", p), zap.Error(err))
			continue
		}
		others = append(others, f)
	}
	return status.NewSet(syncOnClose{own}, others...), nil
}

// syncOnClose flushes the owned store before closing it.
type syncOnClose struct {
	*status.File
}

func (s syncOnClose) Close() error {
	if err := s.File.Sync(); err != nil {
		s.File.Close()
		return err
	}
	return s.File.Close()
}

func countState(root *node.Node, state node.State) int {
	count := 0
	root.Walk(func(n *node.Node) bool {
		if n.State == state {
			count++
		}
		return true
	})
	return count
}
