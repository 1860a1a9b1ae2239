package kernel

import (
	"ember/emberos/arch"
	"ember/emberos/ringbuf"
	"ember/emberos/trap"
)

// gate is the trap.Gate handed to a task's entry point. Exceptions are
// taken at the level the trampoline left the task in.
type gate struct {
	k     *Kernel
	t     *TaskContext
	level arch.Level
}

func (g *gate) SVC(imm uint16, f *trap.Frame) {
	f.ESR = trap.ESR(trap.ClassSVC64, uint32(imm))
	g.Trap(trap.Sync, f)
}

func (g *gate) Trap(kind trap.Kind, f *trap.Frame) {
	f.SPSR = g.level.SPSR()
	g.k.vec.Enter(kind, f)
}

func (g *gate) Rings() (sq, cq *ringbuf.Buffer) { return g.t.sq, g.t.cq }

func (g *gate) Link(name string, entry trap.Entry) uint64 {
	return g.k.syms.Link(name, entry)
}
