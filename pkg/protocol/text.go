package protocol

// Replaces characters outside printable ASCII with a marker so text forms stay loggable
func printable(input string) (clean string) {
	cleanBytes := make([]byte, 0, len(input))
	for i := 0; i < len(input); i++ {
		b := input[i]
		if b >= 0x20 && b <= 0x7E {
			cleanBytes = append(cleanBytes, b)
		} else {
			cleanBytes = append(cleanBytes, unprintableChar)
		}
	}
	clean = string(cleanBytes)
	return
}

// Checks for a single ASCII hex digit (either case)
func isHexDigit(b byte) (hex bool) {
	hex = (b >= '0' && b <= '9') || (b >= 'a' && b <= 'f') || (b >= 'A' && b <= 'F')
	return
}
