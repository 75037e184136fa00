package core

import (
	"crypto/rand"
	"math/big"

	"github.com/google/uuid"
	"pkt.systems/nexus/schema"
)

const idAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

func newSessionID() schema.SessionID {
	buf := make([]byte, 6)
	max := big.NewInt(int64(len(idAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return schema.SessionID("tab-" + uuid.NewString()[:6])
		}
		buf[i] = idAlphabet[n.Int64()]
	}
	return schema.SessionID("tab-" + string(buf))
}

func newRequestID() schema.RequestID {
	return schema.RequestID(uuid.NewString())
}
