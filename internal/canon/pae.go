package canon

import (
	"bytes"
	"strconv"
)

// preAuthEncodingVersion is the fixed PAE version tag. Haldir's PAE diverges
// deliberately from the upstream DSSE spec: lengths are ASCII decimal digits
// rather than 8-byte little-endian integers. This is intentional and is not
// wire-compatible with generic DSSE verifiers — interoperability with those
// is an explicit non-goal. Implementations must reject any envelope that was
// produced with binary-length framing rather than silently re-interpret it.
const preAuthEncodingVersion = "DSSEv1"

// PAE builds the pre-authentication encoding for a payload type and payload,
// the exact byte sequence that is fed to the signing primitive.
func PAE(payloadType string, payload []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString(preAuthEncodingVersion)
	buf.WriteByte(' ')
	buf.WriteString(strconv.Itoa(len(payloadType)))
	buf.WriteByte(' ')
	buf.WriteString(payloadType)
	buf.WriteByte(' ')
	buf.WriteString(strconv.Itoa(len(payload)))
	buf.WriteByte(' ')
	buf.Write(payload)
	return buf.Bytes()
}
