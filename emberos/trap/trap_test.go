package trap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ember/emberos/arch"
	"ember/emberos/proto"
)

type recorder struct {
	calls []string
	ticks uint32
}

func (r *recorder) NewTask(f *Frame) { r.calls = append(r.calls, "newtask") }
func (r *recorder) Syscall(f *Frame) { r.calls = append(r.calls, "syscall:"+f.Syscall().String()) }
func (r *recorder) Timer(n uint32) {
	r.calls = append(r.calls, "timer")
	r.ticks += n
}
func (r *recorder) Fault(k Kind, f *Frame) { r.calls = append(r.calls, "fault:"+k.String()) }

func svc(imm uint16) *Frame {
	return &Frame{ESR: ESR(ClassSVC64, uint32(imm)), SPSR: arch.EL0.SPSR()}
}

func TestFrameDecode(t *testing.T) {
	f := svc(SVCNewTask)
	assert.Equal(t, ClassSVC64, f.Class())
	assert.Equal(t, SVCNewTask, f.Imm())
	assert.Equal(t, arch.EL0, f.EL())

	f.SPSR = arch.EL1.SPSR()
	assert.Equal(t, arch.EL1, f.EL())

	f.X[8] = uint64(proto.SysPrint)
	assert.Equal(t, proto.SysPrint, f.Syscall())
	f.Ret(7)
	assert.Equal(t, uint64(7), f.X[0])
}

func TestVectorDispatch(t *testing.T) {
	r := &recorder{}
	v := NewVector(r)

	f := svc(SVCSyscall)
	f.X[8] = uint64(proto.SysPrint)
	v.Handle(Sync, f)
	v.Handle(Sync, svc(SVCNewTask))
	v.Handle(Sync, svc(SVCCheckpoint))
	v.Handle(Sync, svc(9))
	v.Handle(Sync, &Frame{ESR: ESR(ClassDataAbortLower, 0)})
	v.Handle(SError, &Frame{})

	want := []string{
		"syscall:" + proto.SysPrint.String(),
		"newtask",
		"fault:sync",
		"fault:sync",
		"fault:serror",
	}
	assert.Equal(t, want, r.calls)
}

func TestVectorLatchesInterrupts(t *testing.T) {
	r := &recorder{}
	v := NewVector(r)

	v.Raise()
	v.Raise()
	v.Raise()
	require.Equal(t, uint32(3), v.Pending())
	assert.Empty(t, r.calls)

	v.Enter(Sync, svc(SVCCheckpoint))
	assert.Equal(t, []string{"timer"}, r.calls)
	assert.Equal(t, uint32(3), r.ticks)
	assert.Equal(t, uint32(0), v.Pending())

	// Nothing latched: no timer call.
	v.Enter(Sync, svc(SVCCheckpoint))
	assert.Len(t, r.calls, 1)

	v.Raise()
	v.Handle(IRQ, &Frame{})
	assert.Equal(t, uint32(4), r.ticks)
}

func TestSymbols(t *testing.T) {
	s := NewSymbols()
	hello := func(Gate) uint64 { return 1 }

	a := s.Link("hello", hello)
	b := s.Link("hello", hello)
	assert.Equal(t, a, b, "named entries link once")

	c := s.Link("", hello)
	d := s.Link("", hello)
	assert.NotEqual(t, c, d)
	assert.NotEqual(t, a, c)

	e, name, ok := s.Lookup(a)
	require.True(t, ok)
	assert.Equal(t, "hello", name)
	assert.Equal(t, uint64(1), e(nil))

	addr, ok := s.Resolve("hello")
	require.True(t, ok)
	assert.Equal(t, a, addr)

	_, _, ok = s.Lookup(0)
	assert.False(t, ok)
	_, ok = s.Resolve("missing")
	assert.False(t, ok)
}

func TestSymbolsReleaseReusesAnonymous(t *testing.T) {
	s := NewSymbols()
	entry := func(Gate) uint64 { return 0 }
	named := s.Link("named", entry)

	s.Release(named)
	_, _, ok := s.Lookup(named)
	assert.True(t, ok, "named entries stay linked")

	first := s.Link("", entry)
	for i := 0; i < 100; i++ {
		addr := s.Link("", entry)
		s.Release(addr)
	}
	assert.Equal(t, 2, s.Len())

	s.Release(first)
	_, _, ok = s.Lookup(first)
	assert.False(t, ok)
	assert.Equal(t, first, s.Link("", entry))
}
