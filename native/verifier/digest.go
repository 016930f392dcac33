package verifier

import (
	"bytes"
	"encoding/binary"
	"math/big"
	"strings"

	"lukechampine.com/blake3"
)

// ReportDigest identifies a remittance report so that the same observation
// cannot be applied twice.
func ReportDigest(loanID, credentialID uint64, amount *big.Int, reference string) [32]byte {
	buf := bytes.NewBuffer(nil)
	_ = binary.Write(buf, binary.BigEndian, loanID)
	_ = binary.Write(buf, binary.BigEndian, credentialID)
	writeDelimited(buf, amount.Bytes())
	if amount.Sign() < 0 {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
	writeDelimited(buf, []byte(strings.TrimSpace(reference)))
	return blake3.Sum256(buf.Bytes())
}

func writeDelimited(buf *bytes.Buffer, data []byte) {
	_ = binary.Write(buf, binary.BigEndian, uint32(len(data)))
	buf.Write(data)
}
