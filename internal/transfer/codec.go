package transfer

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"cromp/pkg/protocol"
)

// Path length, size, modification time, directory flag
const entrySize int = 4 + 8 + 8 + 1

// Command, request flag, success, two strings, offset, length, total, compressed flag, data
const fixedPayload int = 4 + 1 + 4 + 4 + 4 + 8 + 4 + 8 + 1 + 4

func (msg *Message) Classifier() protocol.Classifier { return Class }
func (msg *Message) Kind() protocol.Kind             { return protocol.KindApplication }

func (msg *Message) PackedSize() int {
	return protocol.PackedSizeFor(Class, fixedPayload+len(msg.Mapping)+len(msg.Path)+len(msg.Data))
}

func (msg *Message) MarshalPayload() (payload []byte, err error) {
	buf := bytes.NewBuffer(make([]byte, 0, fixedPayload+len(msg.Mapping)+len(msg.Path)+len(msg.Data)))
	le := binary.LittleEndian

	var scratch [8]byte
	put32 := func(value uint32) {
		le.PutUint32(scratch[:4], value)
		buf.Write(scratch[:4])
	}
	put64 := func(value uint64) {
		le.PutUint64(scratch[:], value)
		buf.Write(scratch[:])
	}
	flag := func(set bool) {
		if set {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
	}
	block := func(data []byte) {
		put32(uint32(len(data)))
		buf.Write(data)
	}

	if len(msg.Data) > MaxChunk*2 {
		err = fmt.Errorf("transfer data of %d bytes is too large", len(msg.Data))
		return
	}

	put32(uint32(msg.Command))
	flag(msg.Request)
	put32(uint32(msg.Success))
	block([]byte(msg.Mapping))
	block([]byte(msg.Path))
	put64(msg.Offset)
	put32(msg.Length)
	put64(msg.Total)
	flag(msg.Compressed)
	block(msg.Data)

	payload = buf.Bytes()
	return
}

// Sequential reader, every read fails once the payload runs short
type reader struct {
	data []byte
	err  error
}

func (rd *reader) take(count int) (part []byte) {
	if rd.err != nil {
		return
	}
	if count < 0 || count > len(rd.data) {
		rd.err = fmt.Errorf("need %d bytes, have %d", count, len(rd.data))
		return
	}
	part, rd.data = rd.data[:count], rd.data[count:]
	return
}

func (rd *reader) uint32() (value uint32) {
	if part := rd.take(4); part != nil {
		value = binary.LittleEndian.Uint32(part)
	}
	return
}

func (rd *reader) uint64() (value uint64) {
	if part := rd.take(8); part != nil {
		value = binary.LittleEndian.Uint64(part)
	}
	return
}

func (rd *reader) flag() (set bool) {
	if part := rd.take(1); part != nil {
		set = part[0] != 0
	}
	return
}

func (rd *reader) block() (data []byte) {
	length := rd.uint32()
	if part := rd.take(int(length)); part != nil {
		data = append([]byte(nil), part...)
	}
	return
}

func Unmarshal(payload []byte) (msg *Message, err error) {
	rd := &reader{data: payload}
	msg = &Message{
		Command:    Command(rd.uint32()),
		Request:    rd.flag(),
		Success:    protocol.Outcome(rd.uint32()),
		Mapping:    string(rd.block()),
		Path:       string(rd.block()),
		Offset:     rd.uint64(),
		Length:     rd.uint32(),
		Total:      rd.uint64(),
		Compressed: rd.flag(),
		Data:       rd.block(),
	}
	if rd.err != nil {
		err = fmt.Errorf("failed reading transfer message: %w", rd.err)
		return
	}
	if len(rd.data) != 0 {
		err = fmt.Errorf("%d trailing bytes after transfer message", len(rd.data))
	}
	return
}

func packEntries(entries []Entry) (packed []byte) {
	var buf bytes.Buffer
	var scratch [8]byte
	le := binary.LittleEndian

	le.PutUint32(scratch[:4], uint32(len(entries)))
	buf.Write(scratch[:4])
	for _, entry := range entries {
		le.PutUint32(scratch[:4], uint32(len(entry.Path)))
		buf.Write(scratch[:4])
		buf.WriteString(entry.Path)
		le.PutUint64(scratch[:], entry.Size)
		buf.Write(scratch[:])
		le.PutUint64(scratch[:], uint64(entry.Modified.UnixNano()))
		buf.Write(scratch[:])
		if entry.Dir {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
	}
	packed = buf.Bytes()
	return
}

func UnpackEntries(packed []byte) (entries []Entry, err error) {
	rd := &reader{data: packed}
	count := rd.uint32()
	// Bounds the allocation for hostile counts
	if rd.err == nil && uint64(count)*uint64(entrySize) > uint64(len(rd.data)) {
		err = fmt.Errorf("listing claims %d entries in %d bytes", count, len(rd.data))
		return
	}
	entries = make([]Entry, 0, count)
	for i := uint32(0); i < count && rd.err == nil; i++ {
		entry := Entry{Path: string(rd.block())}
		entry.Size = rd.uint64()
		entry.Modified = time.Unix(0, int64(rd.uint64()))
		entry.Dir = rd.flag()
		entries = append(entries, entry)
	}
	if rd.err != nil {
		err = fmt.Errorf("failed reading listing: %w", rd.err)
	}
	return
}
