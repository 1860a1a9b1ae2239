package usys

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ember/emberos/proto"
	"ember/emberos/ringbuf"
	"ember/emberos/trap"
	"ember/emberos/vfs"
)

// fakeGate answers every SVC with a fixed x0 and records the frames.
type fakeGate struct {
	sq, cq *ringbuf.Buffer
	ret    uint64
	frames []trap.Frame
	imms   []uint16
	yield  func()
}

func newFakeGate() *fakeGate {
	return &fakeGate{sq: ringbuf.New(256), cq: ringbuf.New(256)}
}

func (g *fakeGate) SVC(imm uint16, f *trap.Frame) {
	g.imms = append(g.imms, imm)
	g.frames = append(g.frames, *f)
	if imm == trap.SVCSyscall && f.Syscall() == proto.SysYield && g.yield != nil {
		g.yield()
	}
	f.Ret(g.ret)
}

func (g *fakeGate) Trap(trap.Kind, *trap.Frame)          {}
func (g *fakeGate) Rings() (sq, cq *ringbuf.Buffer)      { return g.sq, g.cq }
func (g *fakeGate) Link(name string, e trap.Entry) uint64 { return 0x80000 }

func TestWordError(t *testing.T) {
	tests := []struct {
		w    uint64
		want error
	}{
		{0, nil},
		{42, nil},
		{proto.ErrorWord(uint64(vfs.FileDoesNotExist)), vfs.FileDoesNotExist},
		{proto.ErrorWord(uint64(vfs.CannotCloseSpecialFile)), vfs.CannotCloseSpecialFile},
		{proto.ErrorWord(proto.CodeQueueFull), ErrQueueFull},
		{proto.ErrorWord(proto.CodeBadSyscall), ErrBadSyscall},
	}
	for _, tt := range tests {
		if got := WordError(tt.w); !errors.Is(got, tt.want) && got != tt.want {
			t.Fatalf("WordError(%#x) = %v, want %v", tt.w, got, tt.want)
		}
	}
	if err := WordError(proto.ErrorWord(0x40)); !errors.Is(err, ErrUnknownCode) {
		t.Fatalf("WordError(0x40) = %v, want ErrUnknownCode", err)
	}
}

func TestSyscallFrames(t *testing.T) {
	g := newFakeGate()
	s := New(g)

	g.ret = 5
	fd, err := s.Open("f", true)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), fd)
	f := g.frames[0]
	assert.Equal(t, proto.SysOpenFile, f.Syscall())
	assert.Equal(t, uint64(1), f.X[0])
	assert.Equal(t, []byte("f"), f.Buf)

	_, err = s.Seek(fd, -3, vfs.SeekEnd)
	require.NoError(t, err)
	f = g.frames[1]
	assert.Equal(t, proto.SysSeekFile, f.Syscall())
	assert.Equal(t, []uint64{5, uint64(vfs.SeekEnd), uint64(0xFFFFFFFFFFFFFFFD)}, f.X[:3])

	g.ret = proto.ErrorWord(uint64(vfs.ReadOnClosedFile))
	_, err = s.Read(9, make([]byte, 4))
	assert.ErrorIs(t, err, vfs.ReadOnClosedFile)

	g.ret = proto.NoTask
	_, err = s.Spawn("x", func(trap.Gate) uint64 { return 0 })
	assert.ErrorIs(t, err, ErrNoTask)
	assert.Equal(t, trap.SVCNewTask, g.imms[len(g.imms)-1])
	assert.Equal(t, uint64(0x80000), g.frames[len(g.frames)-1].X[0])

	s.Checkpoint()
	assert.Equal(t, trap.SVCCheckpoint, g.imms[len(g.imms)-1])
}

func TestAsyncTrapEncoding(t *testing.T) {
	g := newFakeGate()
	s := New(g)

	require.NoError(t, s.AsyncTrap(proto.Request{
		ID: 3, Kind: proto.AsyncSeekFile, File: proto.AsyncRef(1), Whence: uint8(vfs.SeekCurrent), Offset: 4,
	}))
	f := g.frames[0]
	assert.Equal(t, proto.SysAsyncSeekFile, f.Syscall())
	assert.Equal(t, []uint64{3, uint64(proto.RefAsync), 1, uint64(vfs.SeekCurrent), 4}, f.X[:5])

	g.ret = proto.ErrorWord(proto.CodeQueueFull)
	err := s.AsyncTrap(proto.Request{ID: 4, Kind: proto.AsyncOpenFile, Name: "a", Write: true})
	assert.ErrorIs(t, err, ErrQueueFull)
	f = g.frames[1]
	assert.Equal(t, uint64(1), f.X[1])
	assert.Equal(t, []byte("a"), f.Buf)
}

func TestAsyncAutoIDsAndWait(t *testing.T) {
	g := newFakeGate()
	s := New(g)
	a := NewAsync(g)

	id1, err := a.Open("file1", false)
	require.NoError(t, err)
	id2, err := a.Read(proto.AsyncRef(id1), 8)
	require.NoError(t, err)
	assert.Equal(t, AutoIDBase, id1)
	assert.Equal(t, AutoIDBase+1, id2)

	// Play the kernel: answer both requests on the first yield.
	g.yield = func() {
		for {
			b, err := g.sq.Pop()
			if err != nil {
				return
			}
			req, ok := proto.DecodeRequest(b)
			require.True(t, ok)
			res := proto.Result{ID: req.ID, Kind: req.Kind, Word: 4}
			buf := make([]byte, res.Size())
			res.Encode(buf)
			require.NoError(t, g.cq.Write(buf))
		}
	}

	r := a.Wait(s, id2)
	assert.Equal(t, id2, r.ID)
	assert.Equal(t, proto.AsyncReadFile, r.Kind)

	r, ok := a.Poll()
	require.True(t, ok, "earlier result is stashed")
	assert.Equal(t, id1, r.ID)

	_, ok = a.Poll()
	assert.False(t, ok)
}

func TestAsyncSubmitFull(t *testing.T) {
	g := newFakeGate()
	a := NewAsync(g)
	big := make([]byte, 300)
	_, err := a.Write(proto.Descriptor(4), big)
	assert.ErrorIs(t, err, ringbuf.ErrSizeTooBig)

	id, err := a.Print("ok")
	require.NoError(t, err)
	assert.Equal(t, AutoIDBase, id, "failed submissions do not consume ids")
}
