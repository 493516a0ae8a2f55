package holders

// base58 alphabet used for Solana public keys.
const b58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

// encodeBase58 encodes raw bytes, preserving leading zero bytes as '1'.
func encodeBase58(input []byte) string {
	zeros := 0
	for zeros < len(input) && input[zeros] == 0 {
		zeros++
	}

	// Upper bound on output length: log(256)/log(58) ~ 1.37 digits per byte.
	size := (len(input)-zeros)*138/100 + 1
	buf := make([]byte, size)
	high := size - 1

	for _, b := range input[zeros:] {
		carry := int(b)
		i := size - 1
		for ; i > high || carry != 0; i-- {
			carry += 256 * int(buf[i])
			buf[i] = byte(carry % 58)
			carry /= 58
		}
		high = i
	}

	start := 0
	for start < size && buf[start] == 0 {
		start++
	}

	out := make([]byte, 0, zeros+size-start)
	for i := 0; i < zeros; i++ {
		out = append(out, '1')
	}
	for _, d := range buf[start:] {
		out = append(out, b58Alphabet[d])
	}
	return string(out)
}
