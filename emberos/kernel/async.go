package kernel

import (
	"ember/emberos/debug"
	"ember/emberos/proto"
	"ember/emberos/trap"
	"ember/emberos/vfs"
)

// handleAsyncSyscalls executes every request queued in t's submission
// buffer, oldest first, and posts one result per request to its completion
// buffer. Results that do not fit wait, in order, for the next drain.
func (k *Kernel) handleAsyncSyscalls(t *TaskContext) {
	k.flushOverflow(t)
	for {
		v, err := t.sq.GetValue()
		if err != nil {
			return
		}
		req, ok := proto.DecodeRequest(v.Bytes())
		if !ok {
			debug.DPrintf(debug.ASYNC, "pid %d: dropping malformed request (%d bytes)", t.pid, len(v.Bytes()))
			v.Release()
			continue
		}
		res := k.dispatchAsync(t, req)
		v.Release()
		k.complete(t, res)
	}
}

func (k *Kernel) dispatchAsync(t *TaskContext, req proto.Request) proto.Result {
	res := proto.Result{ID: req.ID, Kind: req.Kind}
	switch req.Kind {
	case proto.AsyncPrint:
		res.Word = k.print(t, req.Data)
	case proto.AsyncOpenFile:
		res.Word = k.openFile(t, req.Name, req.Write)
		t.asyncReturns[req.ID] = asyncReturn{kind: req.Kind, word: res.Word}
	case proto.AsyncReadFile:
		fd, w, ok := t.resolve(req.File)
		if !ok {
			res.Word = w
			break
		}
		n := int(req.Len)
		if limit := t.cq.MaxFrame() - (proto.Result{}).Size(); n > limit {
			n = limit
		}
		res.Data, res.Word = k.readFile(t, fd, n)
	case proto.AsyncWriteFile:
		fd, w, ok := t.resolve(req.File)
		if !ok {
			res.Word = w
			break
		}
		res.Word = k.writeFile(t, fd, req.Data)
	case proto.AsyncSeekFile:
		fd, w, ok := t.resolve(req.File)
		if !ok {
			res.Word = w
			break
		}
		res.Word = k.seekFile(t, fd, vfs.Whence(req.Whence), req.Offset)
	case proto.AsyncCloseFile:
		fd, w, ok := t.resolve(req.File)
		if !ok {
			res.Word = w
			break
		}
		res.Word = k.closeFile(t, fd)
	}
	debug.DPrintf(debug.ASYNC, "pid %d: %v id=%d -> %#x", t.pid, req.Kind, req.ID, res.Word)
	return res
}

// resolve turns a file reference into a descriptor. A reference to an async
// open yields the open's error word if the open failed.
func (t *TaskContext) resolve(ref proto.FileRef) (fd uint64, word uint64, ok bool) {
	switch ref.Kind {
	case proto.RefDescriptor:
		return ref.Value, 0, true
	case proto.RefAsync:
		ar, found := t.asyncReturns[ref.Value]
		if !found || ar.kind != proto.AsyncOpenFile {
			return 0, fileErrorWord(vfs.ReadOnClosedFile), false
		}
		if proto.IsError(ar.word) {
			return 0, ar.word, false
		}
		return ar.word, 0, true
	default:
		return 0, fileErrorWord(vfs.ReadOnClosedFile), false
	}
}

func (k *Kernel) complete(t *TaskContext, res proto.Result) {
	if len(t.overflow) > 0 || writeResult(t, res) != nil {
		t.overflow = append(t.overflow, res)
	}
}

func (k *Kernel) flushOverflow(t *TaskContext) {
	for len(t.overflow) > 0 {
		if err := writeResult(t, t.overflow[0]); err != nil {
			return
		}
		t.overflow[0] = proto.Result{}
		t.overflow = t.overflow[1:]
	}
	t.overflow = nil
}

func writeResult(t *TaskContext, res proto.Result) error {
	f, err := t.cq.Reserve(uint32(res.Size()))
	if err != nil {
		return err
	}
	res.Encode(f.Bytes())
	f.Commit()
	return nil
}

// enqueue builds a request from an async syscall frame and queues it on t's
// submission buffer. The frame carries the correlation id in x0.
func (k *Kernel) enqueue(t *TaskContext, kind proto.AsyncKind, f *trap.Frame) uint64 {
	req := proto.Request{ID: f.X[0], Kind: kind}
	ref := proto.FileRef{Kind: proto.RefKind(f.X[1]), Value: f.X[2]}
	switch kind {
	case proto.AsyncPrint:
		req.Data = f.Buf
	case proto.AsyncOpenFile:
		req.Write = f.X[1] != 0
		req.Name = string(f.Buf)
	case proto.AsyncReadFile:
		req.File = ref
		req.Len = uint32(f.X[3])
	case proto.AsyncWriteFile:
		req.File = ref
		req.Data = f.Buf
	case proto.AsyncSeekFile:
		req.File = ref
		req.Whence = uint8(f.X[3])
		req.Offset = int64(f.X[4])
	case proto.AsyncCloseFile:
		req.File = ref
	}

	fr, err := t.sq.Reserve(uint32(req.Size()))
	if err != nil {
		debug.DPrintf(debug.ASYNC, "pid %d: %v id=%d not queued: %v", t.pid, kind, req.ID, err)
		return proto.ErrorWord(proto.CodeQueueFull)
	}
	req.Encode(fr.Bytes())
	fr.Commit()
	return 0
}
