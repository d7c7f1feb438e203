package main

import (
	"os"

	"github.com/google/pprof/profile"

	"polaris/fatfs"
	"polaris/proc"
)

// writeStatsProfile exports the kernel's always-on event counters
// (internal/stats — scheduler context switches, inode cache hits/misses)
// as a pprof profile, so a post-mortem can be inspected with the same
// `go tool pprof` tooling used on a Go program's own CPU/heap profiles,
// instead of a one-off text dump.
func writeStatsProfile(path string, procs *proc.ProcTable, fs *fatfs.FileSystem) error {
	p := &profile.Profile{
		SampleType: []*profile.ValueType{
			{Type: "count", Unit: "count"},
		},
		PeriodType: &profile.ValueType{Type: "event", Unit: "count"},
		Period:     1,
	}

	record := func(name string, n int64) {
		fn := &profile.Function{ID: uint64(len(p.Function) + 1), Name: name}
		loc := &profile.Location{
			ID:   uint64(len(p.Location) + 1),
			Line: []profile.Line{{Function: fn}},
		}
		p.Function = append(p.Function, fn)
		p.Location = append(p.Location, loc)
		p.Sample = append(p.Sample, &profile.Sample{
			Location: []*profile.Location{loc},
			Value:    []int64{n},
		})
	}

	record("context_switches", procs.ContextSwitches.Value())
	record("inode_cache_hits", fs.Inodes.Hits.Value())
	record("inode_cache_misses", fs.Inodes.Misses.Value())

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return p.Write(f)
}
