package protocol

import (
	"bytes"
	"fmt"
	"strconv"
)

// Appends one wire frame to dst:
// magic + hex length + packed request id + packed message.
// The length field covers everything after the header.
func Flatten(dst []byte, msg Infoton, id RequestID) (frame []byte, err error) {
	start := len(dst)
	buf := bytes.NewBuffer(dst)

	buf.WriteString(Magic)
	lengthAt := buf.Len()
	buf.WriteString("00000000") // placeholder, patched below

	if err = id.pack(buf); err != nil {
		err = fmt.Errorf("failed to pack request id %s: %w", id, err)
		frame = dst[:start]
		return
	}
	if err = fastPack(buf, msg); err != nil {
		frame = dst[:start]
		return
	}

	frame = buf.Bytes()
	bodyLen := len(frame) - lengthAt - lenLengthField
	if bodyLen > MaximumTransaction {
		err = fmt.Errorf("frame body of %d bytes exceeds maximum transaction size %d", bodyLen, MaximumTransaction)
		frame = frame[:start]
		return
	}
	copy(frame[lengthAt:lengthAt+lenLengthField], fmt.Sprintf("%08x", bodyLen))
	return
}

// Validates the frame header at the front of buf without consuming it.
// Total is the full frame length (header included) when the header parsed.
func PeekHeader(buf []byte) (result Outcome, total int) {
	if len(buf) < HeaderSize {
		result = WayTooSmall
		return
	}
	if string(buf[:lenMagic]) != Magic {
		result = Garbage
		return
	}

	lengthField := buf[lenMagic:HeaderSize]
	for _, b := range lengthField {
		if !isHexDigit(b) {
			result = Garbage
			return
		}
	}
	bodyLen, err := strconv.ParseUint(string(lengthField), 16, 32)
	if err != nil {
		result = Garbage
		return
	}
	if bodyLen > uint64(MaximumTransaction) {
		result = IllegalLength
		return
	}

	total = HeaderSize + int(bodyLen)
	if len(buf) < total {
		result = Partial
		return
	}
	result = OK
	return
}

// Consumes one complete frame from the front of buf.
// Returns the request id and the still packed message.
func Unflatten(buf []byte) (id RequestID, packed []byte, consumed int, result Outcome) {
	result, total := PeekHeader(buf)
	if result != OK {
		return
	}

	body := buf[HeaderSize:total]
	id, idLen, err := UnpackRequestID(body)
	if err != nil {
		result = Garbage
		return
	}

	packed = make([]byte, len(body)-idLen)
	copy(packed, body[idLen:])
	consumed = total
	return
}

// Discards bytes from the front of buf until it begins with something that
// looks like a frame header. A partial header at the tail counts as found.
// Returns false (and an empty buffer) once the buffer is exhausted.
func Resynchronize(buf []byte) (synced []byte, found bool) {
	for i := 0; i < len(buf); i++ {
		if looksLikeHeader(buf[i:]) {
			synced = buf[i:]
			found = true
			return
		}
	}
	synced = buf[:0]
	return
}

// Checks magic and hex digits for as many bytes as are present
func looksLikeHeader(candidate []byte) (looks bool) {
	for i := 0; i < len(candidate) && i < HeaderSize; i++ {
		if i < lenMagic {
			if candidate[i] != Magic[i] {
				return
			}
			continue
		}
		if !isHexDigit(candidate[i]) {
			return
		}
	}
	looks = len(candidate) > 0
	return
}
