package kernel

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
)

// TaskInfo is a snapshot of one task table entry.
type TaskInfo struct {
	PID      int
	Name     string
	State    TaskState
	Kernel   bool
	Parent   int
	ExitCode uint64
	Files    int
	Pipe     int
	Stack    uint64
}

// Tasks returns a snapshot of the task table.
func (k *Kernel) Tasks() []TaskInfo {
	tm := k.tm
	tm.mu.Lock()
	defer tm.mu.Unlock()
	out := make([]TaskInfo, 0, len(tm.tasks))
	for _, t := range tm.tasks {
		ti := TaskInfo{
			PID:      t.pid,
			Name:     t.name,
			State:    t.state,
			Kernel:   t.isKernel,
			Parent:   t.ppid,
			ExitCode: t.exitCode,
			Files:    len(t.files),
			Pipe:     t.pipeLen(),
		}
		if t.haveStack {
			ti.Stack = uint64(t.stack.Size)
		}
		out = append(out, ti)
	}
	return out
}

// DumpTasks writes the task table in columns.
func (k *Kernel) DumpTasks(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PID\tPPID\tNAME\tSTATE\tEL\tFILES\tPIPE\tSTACK")
	for _, ti := range k.Tasks() {
		el := "EL0"
		if ti.Kernel {
			el = "EL1"
		}
		ppid := "-"
		if ti.Parent != noParent {
			ppid = fmt.Sprint(ti.Parent)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%v\t%s\t%d\t%s\t%s\n",
			ti.PID, ppid, ti.Name, ti.State, el, ti.Files,
			humanize.IBytes(uint64(ti.Pipe)), humanize.IBytes(ti.Stack))
	}
	return tw.Flush()
}
