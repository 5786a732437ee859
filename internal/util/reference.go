package util

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"
)

const (
	ReferencePrefix  = "GKF_"
	AdjustmentPrefix = "ADJ_"

	referenceSuffixLen = 7
	base36Alphabet     = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

// GenerateReference returns GKF_<unix ms>_<7 uppercase base36 chars>.
func GenerateReference(now time.Time) string {
	return fmt.Sprintf("%s%d_%s", ReferencePrefix, now.UnixMilli(), randomBase36(referenceSuffixLen))
}

// GenerateAdjustmentReference keys a manual campaign adjustment in the ledger.
func GenerateAdjustmentReference() string {
	return AdjustmentPrefix + GenerateUUID()
}

func IsDonationReference(ref string) bool {
	return strings.HasPrefix(ref, ReferencePrefix)
}

func randomBase36(n int) string {
	var sb strings.Builder
	sb.Grow(n)
	max := big.NewInt(int64(len(base36Alphabet)))
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic(fmt.Sprintf("crypto/rand failed: %v", err))
		}
		sb.WriteByte(base36Alphabet[idx.Int64()])
	}
	return sb.String()
}
