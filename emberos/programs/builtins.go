package programs

import (
	"bytes"
	"strconv"
	"strings"

	"ember/emberos/proto"
	"ember/emberos/trap"
	"ember/emberos/usys"
)

const chunk = 128

// Hello greets with the caller's pid.
func Hello(s *usys.Sys, _ []string) uint64 {
	s.Printf("hello from pid %d\n", s.PID())
	return 0
}

// Echo writes its arguments to the pipe, where the parent picks them up.
func Echo(s *usys.Sys, args []string) uint64 {
	if _, err := s.Write(proto.FDPipeOut, []byte(strings.Join(args[1:], " ")+"\n")); err != nil {
		return 1
	}
	return 0
}

// Cat copies files to stdout with the synchronous file calls.
func Cat(s *usys.Sys, args []string) uint64 {
	if len(args) < 2 {
		s.Print("usage: cat file...\n")
		return 2
	}
	var status uint64
	for _, name := range args[1:] {
		if err := copyFile(s, name, proto.FDStdout); err != nil {
			s.Printf("cat: %s: %v\n", name, err)
			status = 1
		}
	}
	return status
}

func copyFile(s *usys.Sys, name string, to uint64) error {
	fd, err := s.Open(name, false)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close(fd) }()
	buf := make([]byte, chunk)
	for {
		n, err := s.Read(fd, buf)
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		if _, err := s.Write(to, buf[:n]); err != nil {
			return err
		}
	}
}

// AsyncCat is cat over the submission ring: the open and every read are
// queued, and reads name the file by the open's request id.
func AsyncCat(s *usys.Sys, args []string) uint64 {
	if len(args) != 2 {
		s.Print("usage: asynccat file\n")
		return 2
	}
	a := usys.NewAsync(s.Gate())
	open, err := a.Open(args[1], false)
	if err != nil {
		s.Printf("asynccat: %v\n", err)
		return 1
	}
	ref := proto.AsyncRef(open)
	status := uint64(0)
	for {
		id, err := a.Read(ref, chunk)
		if err != nil {
			s.Printf("asynccat: %v\n", err)
			status = 1
			break
		}
		r := a.Wait(s, id)
		if r.Failed() {
			s.Printf("asynccat: %s: %v\n", args[1], usys.WordError(r.Word))
			status = 1
			break
		}
		if len(r.Data) == 0 {
			break
		}
		_, _ = s.Write(proto.FDStdout, r.Data)
	}
	if id, err := a.Close(ref); err == nil {
		a.Wait(s, id)
	}
	if r := a.Wait(s, open); r.Failed() {
		status = 1
	}
	return status
}

// Pipe counts lines, words and bytes of a file that a child streams through
// its pipe.
func Pipe(s *usys.Sys, args []string) uint64 {
	if len(args) != 2 {
		s.Print("usage: pipe file\n")
		return 2
	}
	name := args[1]
	pid, err := s.Spawn("", func(g trap.Gate) uint64 {
		if err := copyFile(usys.New(g), name, proto.FDPipeOut); err != nil {
			return 1
		}
		return 0
	})
	if err != nil {
		s.Printf("pipe: %v\n", err)
		return 1
	}
	code, err := s.Wait(pid)
	if err != nil || code != 0 {
		s.Printf("pipe: %s: writer failed\n", name)
		return 1
	}

	var data []byte
	buf := make([]byte, chunk)
	for {
		n, err := s.ReadPipe(pid, buf)
		if err != nil || n == 0 {
			break
		}
		data = append(data, buf[:n]...)
	}
	lines := bytes.Count(data, []byte{'\n'})
	words := len(bytes.Fields(data))
	s.Printf("%d %d %d %s\n", lines, words, len(data), name)
	return 0
}

// Spin burns n iterations, opening an interrupt window on each.
func Spin(s *usys.Sys, args []string) uint64 {
	n := 1000
	if len(args) > 1 {
		v, err := strconv.Atoi(args[1])
		if err != nil || v < 0 {
			s.Printf("spin: bad count %q\n", args[1])
			return 2
		}
		n = v
	}
	for i := 0; i < n; i++ {
		s.Checkpoint()
	}
	s.Printf("spin: pid %d done after %d\n", s.PID(), n)
	return 0
}

// Init starts cmds as children, relays their pipes to stdout and returns
// once all of them have exited.
func Init(r *Registry, cmds [][]string) Program {
	return func(s *usys.Sys, _ []string) uint64 {
		var pids []int
		for _, args := range cmds {
			pid, err := r.Run(s, args)
			if err != nil {
				s.Printf("init: %v\n", err)
				continue
			}
			pids = append(pids, pid)
		}

		buf := make([]byte, chunk)
		relay := func() bool {
			n, _ := s.Read(proto.FDPipeIn, buf)
			if n > 0 {
				_, _ = s.Write(proto.FDStdout, buf[:n])
			}
			return n > 0
		}
		exited := make(map[int]bool, len(pids))
		var failed uint64
		for len(exited) < len(pids) {
			if relay() {
				continue
			}
			for _, pid := range pids {
				if exited[pid] {
					continue
				}
				if code, st := s.ChildReturn(pid); st != proto.ChildRunning {
					exited[pid] = true
					if code != 0 {
						failed++
					}
				}
			}
			if len(exited) < len(pids) {
				s.Yield()
			}
		}
		for relay() {
		}
		return failed
	}
}
