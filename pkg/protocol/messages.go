package protocol

import (
	"bytes"
	"fmt"
)

// Generic application message: any classifier with opaque payload
type Blob struct {
	Class Classifier
	Data  []byte
}

func NewBlob(class Classifier, data []byte) (msg *Blob) {
	msg = &Blob{Class: class, Data: data}
	return
}

func (msg *Blob) Classifier() Classifier { return msg.Class }
func (msg *Blob) Kind() Kind             { return KindApplication }

func (msg *Blob) MarshalPayload() (payload []byte, err error) {
	payload = msg.Data
	return
}

func (msg *Blob) PackedSize() int {
	return PackedSizeFor(msg.Class, len(msg.Data))
}

// Request for, and reply carrying, a server issued entity
type Identity struct {
	NewName Entity
}

func (msg *Identity) Classifier() Classifier { return IdentityClass }
func (msg *Identity) Kind() Kind             { return KindIdentity }

func (msg *Identity) MarshalPayload() (payload []byte, err error) {
	var buf bytes.Buffer
	err = msg.NewName.pack(&buf)
	if err != nil {
		err = fmt.Errorf("failed to serialize new name: %w", err)
		return
	}
	payload = buf.Bytes()
	return
}

func (msg *Identity) PackedSize() int {
	return PackedSizeFor(IdentityClass, msg.NewName.PackedSize())
}

func UnmarshalIdentity(payload []byte) (msg *Identity, err error) {
	dec := &decoder{data: payload}
	name, err := unpackEntity(dec)
	if err != nil {
		err = fmt.Errorf("failed reading identity: %w", err)
		return
	}
	msg = &Identity{NewName: name}
	return
}

// Key exchange request (client public key) and reply (server key material)
type Encryption struct {
	Success     Outcome
	PublicKey   []byte
	KeyMaterial []byte
}

func (msg *Encryption) Classifier() Classifier { return EncryptionClass }
func (msg *Encryption) Kind() Kind             { return KindEncryption }

func (msg *Encryption) MarshalPayload() (payload []byte, err error) {
	var buf bytes.Buffer
	if err = writeUint32(&buf, uint32(msg.Success)); err != nil {
		err = fmt.Errorf("failed to serialize success: %w", err)
		return
	}
	if err = writeBlock(&buf, msg.PublicKey); err != nil {
		err = fmt.Errorf("failed to serialize public key: %w", err)
		return
	}
	if err = writeBlock(&buf, msg.KeyMaterial); err != nil {
		err = fmt.Errorf("failed to serialize key material: %w", err)
		return
	}
	payload = buf.Bytes()
	return
}

func (msg *Encryption) PackedSize() int {
	return PackedSizeFor(EncryptionClass, 3*lenUint32+len(msg.PublicKey)+len(msg.KeyMaterial))
}

func UnmarshalEncryption(payload []byte) (msg *Encryption, err error) {
	dec := &decoder{data: payload}
	msg = &Encryption{}

	success, err := dec.readUint32()
	if err != nil {
		err = fmt.Errorf("failed reading success: %w", err)
		return
	}
	msg.Success = Outcome(success)

	if msg.PublicKey, err = dec.readBlock(); err != nil {
		err = fmt.Errorf("failed reading public key: %w", err)
		return
	}
	if msg.KeyMaterial, err = dec.readBlock(); err != nil {
		err = fmt.Errorf("failed reading key material: %w", err)
		return
	}
	return
}

// Login operations carried by a security message
type LoginMode uint32

const (
	LoginModeLogin LoginMode = iota
	LoginModeLogout
	LoginModeRefresh
)

func (mode LoginMode) String() (name string) {
	switch mode {
	case LoginModeLogin:
		name = "login"
	case LoginModeLogout:
		name = "logout"
	case LoginModeRefresh:
		name = "refresh"
	default:
		name = fmt.Sprintf("mode(%d)", uint32(mode))
	}
	return
}

// Login/logout request with verification token, reply carries success
type Security struct {
	Mode         LoginMode
	Success      Outcome
	Verification []byte
}

func (msg *Security) Classifier() Classifier { return SecurityClass }
func (msg *Security) Kind() Kind             { return KindSecurity }

func (msg *Security) MarshalPayload() (payload []byte, err error) {
	var buf bytes.Buffer
	if err = writeUint32(&buf, uint32(msg.Mode)); err != nil {
		err = fmt.Errorf("failed to serialize mode: %w", err)
		return
	}
	if err = writeUint32(&buf, uint32(msg.Success)); err != nil {
		err = fmt.Errorf("failed to serialize success: %w", err)
		return
	}
	if err = writeBlock(&buf, msg.Verification); err != nil {
		err = fmt.Errorf("failed to serialize verification: %w", err)
		return
	}
	payload = buf.Bytes()
	return
}

func (msg *Security) PackedSize() int {
	return PackedSizeFor(SecurityClass, 3*lenUint32+len(msg.Verification))
}

func UnmarshalSecurity(payload []byte) (msg *Security, err error) {
	dec := &decoder{data: payload}
	msg = &Security{}

	mode, err := dec.readUint32()
	if err != nil {
		err = fmt.Errorf("failed reading mode: %w", err)
		return
	}
	msg.Mode = LoginMode(mode)

	success, err := dec.readUint32()
	if err != nil {
		err = fmt.Errorf("failed reading success: %w", err)
		return
	}
	msg.Success = Outcome(success)

	if msg.Verification, err = dec.readBlock(); err != nil {
		err = fmt.Errorf("failed reading verification: %w", err)
		return
	}
	return
}

// Encrypted envelope around another packed message
type Wrapper struct {
	Nonce  []byte
	Sealed []byte
}

func (msg *Wrapper) Classifier() Classifier { return WrapperClass }
func (msg *Wrapper) Kind() Kind             { return KindWrapper }

func (msg *Wrapper) MarshalPayload() (payload []byte, err error) {
	var buf bytes.Buffer
	if err = writeBlock(&buf, msg.Nonce); err != nil {
		err = fmt.Errorf("failed to serialize nonce: %w", err)
		return
	}
	if err = writeBlock(&buf, msg.Sealed); err != nil {
		err = fmt.Errorf("failed to serialize sealed data: %w", err)
		return
	}
	payload = buf.Bytes()
	return
}

func (msg *Wrapper) PackedSize() int {
	return PackedSizeFor(WrapperClass, 2*lenUint32+len(msg.Nonce)+len(msg.Sealed))
}

func UnmarshalWrapper(payload []byte) (msg *Wrapper, err error) {
	dec := &decoder{data: payload}
	msg = &Wrapper{}
	if msg.Nonce, err = dec.readBlock(); err != nil {
		err = fmt.Errorf("failed reading nonce: %w", err)
		return
	}
	if msg.Sealed, err = dec.readBlock(); err != nil {
		err = fmt.Errorf("failed reading sealed data: %w", err)
		return
	}
	return
}

// Reply standing in for a request that could not be processed
type Unhandled struct {
	Original Classifier
	Reason   Outcome
}

func NewUnhandled(original Classifier, reason Outcome) (msg *Unhandled) {
	msg = &Unhandled{Original: original, Reason: reason}
	return
}

func (msg *Unhandled) Classifier() Classifier { return UnhandledClass }
func (msg *Unhandled) Kind() Kind             { return KindUnhandled }

func (msg *Unhandled) MarshalPayload() (payload []byte, err error) {
	var buf bytes.Buffer
	if err = msg.Original.pack(&buf); err != nil {
		return
	}
	if err = writeUint32(&buf, uint32(msg.Reason)); err != nil {
		err = fmt.Errorf("failed to serialize reason: %w", err)
		return
	}
	payload = buf.Bytes()
	return
}

func (msg *Unhandled) PackedSize() int {
	return PackedSizeFor(UnhandledClass, msg.Original.PackedSize()+lenUint32)
}

func UnmarshalUnhandled(payload []byte) (msg *Unhandled, err error) {
	dec := &decoder{data: payload}
	msg = &Unhandled{}
	if msg.Original, err = unpackClassifier(dec); err != nil {
		return
	}
	reason, err := dec.readUint32()
	if err != nil {
		err = fmt.Errorf("failed reading reason: %w", err)
		return
	}
	msg.Reason = Outcome(reason)
	return
}
