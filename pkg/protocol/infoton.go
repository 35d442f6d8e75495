package protocol

import (
	"bytes"
	"fmt"
)

// Closed set of message variants known to the transport
type Kind uint8

const (
	KindApplication Kind = iota
	KindIdentity
	KindEncryption
	KindSecurity
	KindWrapper
	KindUnhandled
)

var kindNames = map[Kind]string{
	KindApplication: "application",
	KindIdentity:    "identity",
	KindEncryption:  "encryption",
	KindSecurity:    "security",
	KindWrapper:     "wrapper",
	KindUnhandled:   "unhandled",
}

func (kind Kind) String() (name string) {
	name, ok := kindNames[kind]
	if !ok {
		name = fmt.Sprintf("kind(%d)", uint8(kind))
	}
	return
}

// Identity, encryption and wrapper messages bootstrap security so they must travel unwrapped
func (kind Kind) RequiresWrap() (wrap bool) {
	switch kind {
	case KindIdentity, KindEncryption, KindWrapper:
		wrap = false
	default:
		wrap = true
	}
	return
}

// Typed, classifier-tagged, serializable unit of request/response data
type Infoton interface {
	Classifier() Classifier
	Kind() Kind
	MarshalPayload() (payload []byte, err error)
	PackedSize() int
}

// Size of a packed message whose payload is payloadLen bytes
func PackedSizeFor(class Classifier, payloadLen int) (size int) {
	size = lenVersionByte + class.PackedSize() + lenUint32 + payloadLen
	return
}

// Serializes message as version + classifier + payload length + payload
func FastPack(msg Infoton) (packed []byte, err error) {
	var buf bytes.Buffer
	err = fastPack(&buf, msg)
	if err != nil {
		return
	}
	packed = buf.Bytes()
	return
}

func fastPack(buf *bytes.Buffer, msg Infoton) (err error) {
	if msg == nil {
		err = fmt.Errorf("nil message")
		return
	}
	class := msg.Classifier()
	if !class.Valid() {
		err = fmt.Errorf("invalid classifier %q", class.String())
		return
	}

	payload, err := msg.MarshalPayload()
	if err != nil {
		err = fmt.Errorf("failed to marshal %s payload: %w", class, err)
		return
	}

	if err = buf.WriteByte(MessageVersion); err != nil {
		err = fmt.Errorf("failed to serialize version: %w", err)
		return
	}
	if err = class.pack(buf); err != nil {
		return
	}
	if err = writeBlock(buf, payload); err != nil {
		err = fmt.Errorf("failed to serialize payload: %w", err)
		return
	}
	return
}

// Splits a packed message into its classifier and raw payload.
// Rejects unknown versions and payload lengths longer than the remaining data.
func FastUnpack(packed []byte) (class Classifier, payload []byte, err error) {
	dec := &decoder{data: packed}

	version, err := dec.readByte()
	if err != nil {
		err = fmt.Errorf("failed reading version: %w", err)
		return
	}
	if version != MessageVersion {
		err = fmt.Errorf("unsupported message version 0x%02x", version)
		return
	}

	class, err = unpackClassifier(dec)
	if err != nil {
		return
	}

	payload, err = dec.readBlock()
	if err != nil {
		err = fmt.Errorf("failed reading payload: %w", err)
		return
	}
	return
}
