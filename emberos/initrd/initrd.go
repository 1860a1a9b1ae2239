// Package initrd reads and writes the read-only boot image that seeds the VFS.
//
// Layout, little-endian:
//
//	"EMBR" u16 version u16 count
//	count x { u16 nameLen, name, u32 dataLen, data }
package initrd

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	"ember/emberos/debug"
	"ember/emberos/vfs"
	"ember/hal"
)

const (
	Magic   = "EMBR"
	Version = 1

	headerBytes = 8
)

var (
	ErrNoImage  = errors.New("initrd: no image")
	ErrCorrupt  = errors.New("initrd: corrupt image")
	ErrTooLarge = errors.New("initrd: image does not fit")
)

// Entry is one file of the image.
type Entry struct {
	Name string
	Data []byte
}

// Encode serializes entries sorted by name.
func Encode(entries []Entry) ([]byte, error) {
	if len(entries) > 0xFFFF {
		return nil, fmt.Errorf("%w: %d entries", ErrTooLarge, len(entries))
	}
	sorted := append([]Entry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	out := make([]byte, headerBytes, headerBytes+64)
	copy(out, Magic)
	binary.LittleEndian.PutUint16(out[4:], Version)
	binary.LittleEndian.PutUint16(out[6:], uint16(len(sorted)))
	for i, e := range sorted {
		if e.Name == "" || len(e.Name) > 0xFFFF {
			return nil, fmt.Errorf("initrd: bad name length %d", len(e.Name))
		}
		if i > 0 && sorted[i-1].Name == e.Name {
			return nil, fmt.Errorf("initrd: duplicate %q", e.Name)
		}
		if uint64(len(e.Data)) > 0xFFFFFFFF {
			return nil, fmt.Errorf("%w: %q", ErrTooLarge, e.Name)
		}
		out = binary.LittleEndian.AppendUint16(out, uint16(len(e.Name)))
		out = append(out, e.Name...)
		out = binary.LittleEndian.AppendUint32(out, uint32(len(e.Data)))
		out = append(out, e.Data...)
	}
	return out, nil
}

// Decode parses an image. Trailing bytes after the last entry are ignored.
func Decode(b []byte) ([]Entry, error) {
	if len(b) < headerBytes || string(b[:4]) != Magic {
		return nil, ErrNoImage
	}
	if v := binary.LittleEndian.Uint16(b[4:]); v != Version {
		return nil, fmt.Errorf("%w: version %d", ErrCorrupt, v)
	}
	count := int(binary.LittleEndian.Uint16(b[6:]))
	rest := b[headerBytes:]
	entries := make([]Entry, 0, count)
	for i := 0; i < count; i++ {
		if len(rest) < 2 {
			return nil, fmt.Errorf("%w: entry %d name length", ErrCorrupt, i)
		}
		n := int(binary.LittleEndian.Uint16(rest))
		rest = rest[2:]
		if len(rest) < n+4 {
			return nil, fmt.Errorf("%w: entry %d name", ErrCorrupt, i)
		}
		name := string(rest[:n])
		rest = rest[n:]
		size := uint64(binary.LittleEndian.Uint32(rest))
		rest = rest[4:]
		if uint64(len(rest)) < size {
			return nil, fmt.Errorf("%w: %q data", ErrCorrupt, name)
		}
		entries = append(entries, Entry{Name: name, Data: append([]byte(nil), rest[:size]...)})
		rest = rest[size:]
	}
	return entries, nil
}

// Read loads the image stored at offset 0 of fl.
func Read(fl hal.Flash) ([]Entry, error) {
	if fl == nil || fl.SizeBytes() < headerBytes {
		return nil, ErrNoImage
	}
	img := make([]byte, fl.SizeBytes())
	n, err := fl.ReadAt(img, 0)
	if err != nil && n < headerBytes {
		return nil, fmt.Errorf("initrd: read flash: %w", err)
	}
	return Decode(img[:n])
}

// Write erases the blocks the image needs and programs it at offset 0.
func Write(fl hal.Flash, entries []Entry) error {
	img, err := Encode(entries)
	if err != nil {
		return err
	}
	if uint64(len(img)) > uint64(fl.SizeBytes()) {
		return fmt.Errorf("%w: %d bytes, flash is %d", ErrTooLarge, len(img), fl.SizeBytes())
	}
	blk := fl.EraseBlockBytes()
	if blk == 0 {
		return fmt.Errorf("initrd: %w", hal.ErrNotImplemented)
	}
	span := (uint32(len(img)) + blk - 1) / blk * blk
	if err := fl.Erase(0, span); err != nil {
		return fmt.Errorf("initrd: erase: %w", err)
	}
	if _, err := fl.WriteAt(img, 0); err != nil {
		return fmt.Errorf("initrd: program: %w", err)
	}
	return nil
}

// Seed creates every entry in fs. A missing image seeds nothing.
func Seed(fs *vfs.FS, fl hal.Flash) (int, error) {
	entries, err := Read(fl)
	if errors.Is(err, ErrNoImage) {
		debug.DPrintf(debug.INITRD, "no image")
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	for _, e := range entries {
		if err := fs.Create(e.Name, e.Data); err != nil {
			return 0, fmt.Errorf("initrd: %q: %w", e.Name, err)
		}
		debug.DPrintf(debug.INITRD, "seeded %q (%d bytes)", e.Name, len(e.Data))
	}
	return len(entries), nil
}
