package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ember/emberos/proto"
	"ember/emberos/trap"
	"ember/emberos/usys"
	"ember/emberos/vfs"
)

func TestSyncFileSyscalls(t *testing.T) {
	k, con := newTestKernel(t, Config{})

	var got string
	var errs []error
	spawn(t, k, "t", false, func(g trap.Gate) uint64 {
		s := usys.New(g)
		assert.NoError(t, s.Create("notes"))
		errs = append(errs, s.Create("notes"))

		fd, err := s.Open("notes", true)
		assert.NoError(t, err)
		_, err = s.Write(fd, []byte("world"))
		assert.NoError(t, err)
		_, err = s.Write(fd, []byte("hello "))
		assert.NoError(t, err)
		_, err = s.Open("notes", false)
		errs = append(errs, err)
		assert.NoError(t, s.Close(fd))
		errs = append(errs, s.Close(fd))

		fd, err = s.Open("notes", false)
		assert.NoError(t, err)
		pos, err := s.Seek(fd, -5, vfs.SeekEnd)
		assert.NoError(t, err)
		assert.Equal(t, 6, pos)
		buf := make([]byte, 64)
		n, err := s.Read(fd, buf)
		assert.NoError(t, err)
		got = string(buf[:n])

		_, err = s.Write(fd, []byte("x"))
		errs = append(errs, err)
		_, err = s.Seek(proto.FDStdout, 0, vfs.SeekStart)
		errs = append(errs, err)
		errs = append(errs, s.Close(proto.FDStdin))
		_, err = s.Read(99, buf)
		errs = append(errs, err)
		_, err = s.Read(proto.FDStdout, buf)
		errs = append(errs, err)
		_, err = s.Write(proto.FDStdin, buf)
		errs = append(errs, err)
		errs = append(errs, s.Delete("notes"))
		assert.NoError(t, s.Close(fd))
		assert.NoError(t, s.Delete("notes"))

		s.Print("done")
		return 0
	})

	require.NoError(t, runKernel(t, k))
	assert.Equal(t, "world", got, "write inserts at the cursor and leaves it in place")
	want := []error{
		vfs.FileNameAlreadyExists,
		vfs.FileAlreadyOpenedForWrite,
		vfs.AttemptToCloseClosedFile,
		vfs.ModifyingWithoutWritePermission,
		vfs.CannotSeekSpecialFile,
		vfs.CannotCloseSpecialFile,
		vfs.ReadOnClosedFile,
		vfs.CannotReadWriteOnlyFile,
		vfs.ModifyingWithoutWritePermission,
		vfs.CannotDeleteOpenedFile,
	}
	assert.Equal(t, want, errs)
	assert.Equal(t, "done", con.String())
	_, ok := k.FS().Stat("notes")
	assert.False(t, ok)
}

func TestStdinIsNonBlocking(t *testing.T) {
	k, con := newTestKernel(t, Config{})
	con.in = []byte("ls\n")

	var first, second string
	spawn(t, k, "sh", false, func(g trap.Gate) uint64 {
		s := usys.New(g)
		buf := make([]byte, 16)
		n, err := s.Read(proto.FDStdin, buf)
		assert.NoError(t, err)
		first = string(buf[:n])
		n, err = s.Read(proto.FDStdin, buf)
		assert.NoError(t, err)
		second = string(buf[:n])
		return 0
	})

	require.NoError(t, runKernel(t, k))
	assert.Equal(t, "ls\n", first)
	assert.Equal(t, "", second)
}

func TestExitClosesFiles(t *testing.T) {
	k, _ := newTestKernel(t, Config{})
	require.NoError(t, k.FS().Create("f", []byte("x")))

	spawn(t, k, "t", false, func(g trap.Gate) uint64 {
		_, err := usys.New(g).Open("f", true)
		assert.NoError(t, err)
		return 0
	})

	require.NoError(t, runKernel(t, k))
	_, err := k.FS().Open("f", true)
	assert.NoError(t, err, "open handles are released when the task dies")
}

func pipeChild(msg string, code uint64) trap.Entry {
	return func(g trap.Gate) uint64 {
		_, _ = usys.New(g).Write(proto.FDPipeOut, []byte(msg))
		return code
	}
}

func TestZombieHoldsPipeForParent(t *testing.T) {
	k, _ := newTestKernel(t, Config{})

	var whileUnread, afterRead TaskState
	var code uint64
	var data string
	spawn(t, k, "parent", false, func(g trap.Gate) uint64 {
		s := usys.New(g)
		pid, err := s.Spawn("writer", pipeChild("hello", 3))
		assert.NoError(t, err)
		code, err = s.Wait(pid)
		assert.NoError(t, err)
		whileUnread, _ = k.Manager().State(pid)

		buf := make([]byte, 3)
		n, _ := s.Read(proto.FDPipeIn, buf)
		data = string(buf[:n])
		n, _ = s.Read(proto.FDPipeIn, buf)
		data += string(buf[:n])
		s.Yield()
		afterRead, _ = k.Manager().State(pid)
		return 0
	})

	require.NoError(t, runKernel(t, k))
	assert.Equal(t, uint64(3), code)
	assert.Equal(t, Zombie, whileUnread)
	assert.Equal(t, "hello", data)
	assert.Equal(t, Dead, afterRead)
}

func TestZombieReapedWithParent(t *testing.T) {
	k, _ := newTestKernel(t, Config{})

	spawn(t, k, "parent", false, func(g trap.Gate) uint64 {
		s := usys.New(g)
		pid, err := s.Spawn("writer", pipeChild("unread", 0))
		assert.NoError(t, err)
		_, err = s.Wait(pid)
		assert.NoError(t, err)
		return 0
	})

	require.NoError(t, runKernel(t, k))
	for _, ti := range k.Tasks() {
		assert.Equal(t, Dead, ti.State, "pid %d", ti.PID)
		assert.Zero(t, ti.Pipe)
	}
	assert.Equal(t, 0, k.Stacks().InUse())
}

func TestOrphanPipeIsDropped(t *testing.T) {
	k, _ := newTestKernel(t, Config{})
	spawn(t, k, "lonely", false, pipeChild("nobody reads this", 0))

	require.NoError(t, runKernel(t, k))
	assert.Equal(t, Dead, k.Tasks()[0].State)
}

func TestReadPipeByPID(t *testing.T) {
	k, _ := newTestKernel(t, Config{})

	var fromB string
	var notChild error
	spawn(t, k, "parent", false, func(g trap.Gate) uint64 {
		s := usys.New(g)
		a, _ := s.Spawn("a", pipeChild("from a", 0))
		b, _ := s.Spawn("b", pipeChild("from b", 0))
		_, _ = s.Wait(a)
		_, _ = s.Wait(b)

		buf := make([]byte, 32)
		n, err := s.ReadPipe(b, buf)
		assert.NoError(t, err)
		fromB = string(buf[:n])
		_, notChild = s.ReadPipe(s.PID(), buf)

		n, err = s.Read(proto.FDPipeIn, buf)
		assert.NoError(t, err)
		assert.Equal(t, "from a", string(buf[:n]))
		return 0
	})

	require.NoError(t, runKernel(t, k))
	assert.Equal(t, "from b", fromB)
	assert.ErrorIs(t, notChild, usys.ErrNoTask)
}

func TestAnonymousSpawnsDoNotGrowLinkTable(t *testing.T) {
	k, _ := newTestKernel(t, Config{})

	var out string
	spawn(t, k, "parent", false, func(g trap.Gate) uint64 {
		s := usys.New(g)
		buf := make([]byte, 8)
		for i := 0; i < 20; i++ {
			pid, err := s.Spawn("", pipeChild(string(rune('a'+i)), 0))
			if !assert.NoError(t, err) {
				return 1
			}
			_, _ = s.Wait(pid)
			n, _ := s.ReadPipe(pid, buf)
			out += string(buf[:n])
		}
		return 0
	})

	require.NoError(t, runKernel(t, k))
	assert.Equal(t, "abcdefghijklmnopqrst", out)
	assert.Equal(t, 1, k.Symbols().Len())
}
