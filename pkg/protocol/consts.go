package protocol

const (
	// Frame header
	Magic          string = "cromp!"
	lenMagic       int    = 6
	lenLengthField int    = 8
	HeaderSize     int    = lenMagic + lenLengthField

	// Hard ceiling for a declared frame length (guards against corrupted length fields)
	MaximumTransaction int = 100 * 1024 * 1024

	// Version tag leading every packed message
	MessageVersion byte = 0x14

	DefaultPort int = 10008

	// Fixed widths of packed fields
	lenUint32      int = 4
	lenEntityInts  int = 3 * lenUint32
	lenVersionByte int = 1

	// Marker on the first classifier name for internally reserved classifiers
	reservedMarker byte = '#'

	// Replacement for unprintable characters in text forms
	unprintableChar byte = '#'

	// Sequence numbers for request ids roll over below this
	MaximumSequence uint32 = 1<<31 - 1 - 20
)

// Reserved classifiers
var (
	IdentityClass   = Classifier{"#octide"}
	SecurityClass   = Classifier{"#octsec"}
	EncryptionClass = Classifier{"#octcod"}
	WrapperClass    = Classifier{"#octrap"}
	UnhandledClass  = Classifier{"__Unhandled__"}
)
