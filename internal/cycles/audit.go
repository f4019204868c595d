package cycles

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/rawblock/tradeloop-engine/pkg/models"
)

// AuditHash computes a SHA-256 digest of a loop's canonical id and step
// list, handed to the settlement collaborator as a tamper-evident
// reference independent of in-memory pointer identity.
func AuditHash(loop *models.TradeLoop) string {
	var b strings.Builder
	b.WriteString(loop.CanonicalID)
	for _, s := range loop.Steps {
		b.WriteByte('|')
		b.WriteString(string(s.From))
		b.WriteByte('>')
		b.WriteString(string(s.To))
		b.WriteByte(':')
		for i, item := range s.Items {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(string(item))
		}
	}
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(loop.Participants))

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
