package service

import (
	"crypto/rand"
	"strconv"
	"time"
)

const numberAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// NumberGenerator produces a candidate contract number; uniqueness is enforced by the store.
type NumberGenerator func(now time.Time) string

// NewNumberGenerator yields numbers shaped PREFIX<unix-millis>-<6 base36 chars>.
func NewNumberGenerator(prefix string) NumberGenerator {
	return func(now time.Time) string {
		return prefix + strconv.FormatInt(now.UnixMilli(), 10) + "-" + randomSuffix(6)
	}
}

func randomSuffix(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	for i := range buf {
		buf[i] = numberAlphabet[int(buf[i])%len(numberAlphabet)]
	}
	return string(buf)
}
