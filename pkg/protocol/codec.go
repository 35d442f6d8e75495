package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Write four bytes to provided buffer (little endian)
func writeUint32(buf *bytes.Buffer, value uint32) (err error) {
	err = binary.Write(buf, binary.LittleEndian, value)
	return
}

// Write a length prefixed byte block to provided buffer
func writeBlock(buf *bytes.Buffer, block []byte) (err error) {
	if uint64(len(block)) > uint64(^uint32(0)) {
		err = fmt.Errorf("block length %d does not fit length prefix", len(block))
		return
	}
	if err = writeUint32(buf, uint32(len(block))); err != nil {
		return
	}
	_, err = buf.Write(block)
	return
}

// Sequential reader over a packed byte slice
type decoder struct {
	data []byte
	pos  int
}

func (dec *decoder) remaining() (count int) {
	count = len(dec.data) - dec.pos
	return
}

func (dec *decoder) readUint32() (value uint32, err error) {
	if dec.remaining() < lenUint32 {
		err = fmt.Errorf("need %d bytes for integer, have %d", lenUint32, dec.remaining())
		return
	}
	value = binary.LittleEndian.Uint32(dec.data[dec.pos:])
	dec.pos += lenUint32
	return
}

func (dec *decoder) readByte() (value byte, err error) {
	if dec.remaining() < 1 {
		err = fmt.Errorf("need 1 byte, have none")
		return
	}
	value = dec.data[dec.pos]
	dec.pos++
	return
}

// Reads a length prefixed block. Returned slice is a copy.
func (dec *decoder) readBlock() (block []byte, err error) {
	length, err := dec.readUint32()
	if err != nil {
		err = fmt.Errorf("failed reading block length: %w", err)
		return
	}
	if uint64(length) > uint64(dec.remaining()) {
		err = fmt.Errorf("block length %d exceeds remaining %d bytes", length, dec.remaining())
		return
	}
	block = make([]byte, length)
	copy(block, dec.data[dec.pos:dec.pos+int(length)])
	dec.pos += int(length)
	return
}
