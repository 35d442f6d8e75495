package protocol

import (
	"bytes"
	"cromp/internal/crypto/random"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
)

// Logical identity of one caller instance. The zero value is the blank entity.
type Entity struct {
	Hostname  string
	ProcessID uint32
	Sequencer uint32
	Salt      uint32
}

// Blank entity is never a valid caller
func (ent Entity) Blank() (blank bool) {
	blank = ent == Entity{}
	return
}

// Text form: salt.sequencer.pid.host
func (ent Entity) String() string {
	return fmt.Sprintf("%d.%d.%d.%s", ent.Salt, ent.Sequencer, ent.ProcessID, printable(ent.Hostname))
}

// Parses the text form back into an entity (unprintable host characters are not recoverable)
func ParseEntity(text string) (ent Entity, err error) {
	fields := strings.SplitN(text, ".", 4)
	if len(fields) != 4 {
		err = fmt.Errorf("expected 4 dot separated fields, got %d", len(fields))
		return
	}

	numbers := make([]uint32, 3)
	for i := 0; i < 3; i++ {
		var value uint64
		value, err = strconv.ParseUint(fields[i], 10, 32)
		if err != nil {
			err = fmt.Errorf("invalid entity number %q: %w", fields[i], err)
			return
		}
		numbers[i] = uint32(value)
	}

	ent = Entity{
		Salt:      numbers[0],
		Sequencer: numbers[1],
		ProcessID: numbers[2],
		Hostname:  fields[3],
	}
	return
}

func (ent Entity) PackedSize() (size int) {
	size = lenUint32 + len(ent.Hostname) + lenEntityInts
	return
}

func (ent Entity) pack(buf *bytes.Buffer) (err error) {
	if err = writeBlock(buf, []byte(ent.Hostname)); err != nil {
		err = fmt.Errorf("failed to serialize hostname: %w", err)
		return
	}
	if err = writeUint32(buf, ent.ProcessID); err != nil {
		err = fmt.Errorf("failed to serialize process id: %w", err)
		return
	}
	if err = writeUint32(buf, ent.Sequencer); err != nil {
		err = fmt.Errorf("failed to serialize sequencer: %w", err)
		return
	}
	if err = writeUint32(buf, ent.Salt); err != nil {
		err = fmt.Errorf("failed to serialize salt: %w", err)
		return
	}
	return
}

func unpackEntity(dec *decoder) (ent Entity, err error) {
	host, err := dec.readBlock()
	if err != nil {
		err = fmt.Errorf("failed reading hostname: %w", err)
		return
	}
	ent.Hostname = string(host)

	if ent.ProcessID, err = dec.readUint32(); err != nil {
		err = fmt.Errorf("failed reading process id: %w", err)
		return
	}
	if ent.Sequencer, err = dec.readUint32(); err != nil {
		err = fmt.Errorf("failed reading sequencer: %w", err)
		return
	}
	if ent.Salt, err = dec.readUint32(); err != nil {
		err = fmt.Errorf("failed reading salt: %w", err)
		return
	}
	return
}

// Correlation key between a request and its reply
type RequestID struct {
	Entity   Entity
	Sequence uint32
}

func (id RequestID) Blank() (blank bool) {
	blank = id.Entity.Blank() || id.Sequence == 0
	return
}

func (id RequestID) String() string {
	return fmt.Sprintf("%s/%d", id.Entity, id.Sequence)
}

func (id RequestID) PackedSize() (size int) {
	size = id.Entity.PackedSize() + lenUint32
	return
}

// Serializes request id into a new byte slice
func (id RequestID) Pack() (packed []byte, err error) {
	var buf bytes.Buffer
	err = id.pack(&buf)
	if err != nil {
		return
	}
	packed = buf.Bytes()
	return
}

func (id RequestID) pack(buf *bytes.Buffer) (err error) {
	if err = id.Entity.pack(buf); err != nil {
		return
	}
	if err = writeUint32(buf, id.Sequence); err != nil {
		err = fmt.Errorf("failed to serialize sequence: %w", err)
		return
	}
	return
}

// Deserializes a request id from the front of data, returning bytes consumed
func UnpackRequestID(data []byte) (id RequestID, consumed int, err error) {
	dec := &decoder{data: data}
	id.Entity, err = unpackEntity(dec)
	if err != nil {
		return
	}
	id.Sequence, err = dec.readUint32()
	if err != nil {
		err = fmt.Errorf("failed reading sequence: %w", err)
		return
	}
	consumed = dec.pos
	return
}

// Creates a throwaway request id for use before the server issues an identity
func RandomizedID() (id RequestID, err error) {
	nameBits, err := random.Uint32()
	if err != nil {
		err = fmt.Errorf("failed generating random name: %w", err)
		return
	}

	values := make([]uint32, 3)
	for i := range values {
		var value int
		value, err = random.Between(0, math.MaxInt32/2)
		if err != nil {
			err = fmt.Errorf("failed generating random id field: %w", err)
			return
		}
		values[i] = uint32(value)
	}

	id = RequestID{
		Entity: Entity{
			Hostname:  fmt.Sprintf("rnd%08x", nameBits),
			ProcessID: uint32(os.Getpid()),
			Sequencer: values[0],
			Salt:      values[1],
		},
		Sequence: values[2] + 1,
	}
	return
}
