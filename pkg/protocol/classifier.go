package protocol

import (
	"bytes"
	"fmt"
	"strings"
)

// Hierarchical name of a message type (ordered list of names)
type Classifier []string

func NewClassifier(names ...string) (class Classifier) {
	class = append(Classifier(nil), names...)
	return
}

// Non-empty and no empty names
func (class Classifier) Valid() (valid bool) {
	if len(class) == 0 {
		return
	}
	for _, name := range class {
		if name == "" {
			return
		}
	}
	valid = true
	return
}

// Reserved classifiers are used by the transport itself (identity, login, encryption)
func (class Classifier) Reserved() (reserved bool) {
	reserved = len(class) > 0 && len(class[0]) > 0 && class[0][0] == reservedMarker
	return
}

// Name-wise prefix comparison
func (class Classifier) HasPrefix(prefix Classifier) (matches bool) {
	if len(prefix) == 0 || len(prefix) > len(class) {
		return
	}
	for i := range prefix {
		if class[i] != prefix[i] {
			return
		}
	}
	matches = true
	return
}

func (class Classifier) Equal(other Classifier) (equal bool) {
	equal = len(class) == len(other) && class.HasPrefix(other)
	return
}

func (class Classifier) String() string {
	return strings.Join(class, "/")
}

// Bytes used by the packed classifier (count + length prefixed names)
func (class Classifier) PackedSize() (size int) {
	size = lenUint32
	for _, name := range class {
		size += lenUint32 + len(name)
	}
	return
}

func (class Classifier) pack(buf *bytes.Buffer) (err error) {
	if err = writeUint32(buf, uint32(len(class))); err != nil {
		err = fmt.Errorf("failed to serialize classifier count: %w", err)
		return
	}
	for _, name := range class {
		if err = writeBlock(buf, []byte(name)); err != nil {
			err = fmt.Errorf("failed to serialize classifier name %q: %w", name, err)
			return
		}
	}
	return
}

func unpackClassifier(dec *decoder) (class Classifier, err error) {
	count, err := dec.readUint32()
	if err != nil {
		err = fmt.Errorf("failed reading classifier count: %w", err)
		return
	}
	// Each name needs at least its length prefix
	if uint64(count)*uint64(lenUint32) > uint64(dec.remaining()) {
		err = fmt.Errorf("classifier count %d exceeds remaining data", count)
		return
	}
	class = make(Classifier, 0, count)
	for i := uint32(0); i < count; i++ {
		var name []byte
		name, err = dec.readBlock()
		if err != nil {
			err = fmt.Errorf("failed reading classifier name %d: %w", i, err)
			return
		}
		class = append(class, string(name))
	}
	return
}
