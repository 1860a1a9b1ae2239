package usys

import (
	"ember/emberos/proto"
	"ember/emberos/ringbuf"
	"ember/emberos/trap"
	"ember/emberos/vfs"
)

// AutoIDBase is the first correlation id handed out by the auto-id helpers.
// Ids below it are free for explicit use with Submit.
const AutoIDBase uint64 = 1 << 32

// Async submits requests straight into the task's submission ring. They are
// executed when the task next loses the CPU; results are polled from the
// completion ring.
type Async struct {
	sq, cq *ringbuf.Buffer
	next   uint64
	stash  []proto.Result
}

// NewAsync returns an Async bound to the rings of g.
func NewAsync(g trap.Gate) *Async {
	sq, cq := g.Rings()
	return &Async{sq: sq, cq: cq, next: AutoIDBase}
}

// Submit queues req with its own correlation id.
func (a *Async) Submit(req proto.Request) error {
	f, err := a.sq.Reserve(uint32(req.Size()))
	if err != nil {
		return err
	}
	req.Encode(f.Bytes())
	f.Commit()
	return nil
}

func (a *Async) auto(req proto.Request) (uint64, error) {
	req.ID = a.next
	if err := a.Submit(req); err != nil {
		return 0, err
	}
	a.next++
	return req.ID, nil
}

// Print queues a console write.
func (a *Async) Print(msg string) (uint64, error) {
	return a.auto(proto.Request{Kind: proto.AsyncPrint, Data: []byte(msg)})
}

// Open queues an open. Later requests may name the file with
// proto.AsyncRef of the returned id before the open has run.
func (a *Async) Open(name string, write bool) (uint64, error) {
	return a.auto(proto.Request{Kind: proto.AsyncOpenFile, Name: name, Write: write})
}

// Read queues a read of up to n bytes.
func (a *Async) Read(ref proto.FileRef, n uint32) (uint64, error) {
	return a.auto(proto.Request{Kind: proto.AsyncReadFile, File: ref, Len: n})
}

// Write queues a write.
func (a *Async) Write(ref proto.FileRef, data []byte) (uint64, error) {
	return a.auto(proto.Request{Kind: proto.AsyncWriteFile, File: ref, Data: data})
}

// Seek queues a seek.
func (a *Async) Seek(ref proto.FileRef, off int64, whence vfs.Whence) (uint64, error) {
	return a.auto(proto.Request{Kind: proto.AsyncSeekFile, File: ref, Offset: off, Whence: uint8(whence)})
}

// Close queues a close.
func (a *Async) Close(ref proto.FileRef) (uint64, error) {
	return a.auto(proto.Request{Kind: proto.AsyncCloseFile, File: ref})
}

// Poll returns the oldest completion not yet returned.
func (a *Async) Poll() (proto.Result, bool) {
	if len(a.stash) > 0 {
		r := a.stash[0]
		a.stash = a.stash[1:]
		return r, true
	}
	return a.pop()
}

func (a *Async) pop() (proto.Result, bool) {
	for {
		b, err := a.cq.Pop()
		if err != nil {
			return proto.Result{}, false
		}
		if r, ok := proto.DecodeResult(b); ok {
			return r, true
		}
	}
}

// Wait yields until the result for id arrives. Other results are kept for
// Poll in arrival order.
func (a *Async) Wait(s *Sys, id uint64) proto.Result {
	for i, r := range a.stash {
		if r.ID == id {
			a.stash = append(a.stash[:i], a.stash[i+1:]...)
			return r
		}
	}
	for {
		r, ok := a.pop()
		if !ok {
			s.Yield()
			continue
		}
		if r.ID == id {
			return r
		}
		a.stash = append(a.stash, r)
	}
}
