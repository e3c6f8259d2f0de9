package signature

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignMatchesKnownVector(t *testing.T) {
	// RFC 4231 test case 2.
	got := Sign("Jefe", []byte("what do ya want for nothing?"))
	assert.Equal(t, "5bdcc146bf60754e6a042426089575c75a003f089d2739839dec58b964ec3843", got)
}

func TestVerifyRoundTrip(t *testing.T) {
	secrets := []string{"", "s", "whsec_0123456789"}
	bodies := [][]byte{nil, []byte("{}"), []byte(`{"event":"message.created","data":{"id":"1"}}`)}

	for _, secret := range secrets {
		for _, body := range bodies {
			sig := Sign(secret, body)
			assert.NoError(t, Verify(secret, body, sig))
			assert.NoError(t, Verify(secret, body, Header(sig)))
		}
	}
}

func TestVerifyRejectsAnyFlippedByte(t *testing.T) {
	secret := "whsec_test"
	body := []byte(`{"action":"send_message","data":{"content":"hi"}}`)
	sig := Sign(secret, body)

	for i := range body {
		mutated := append([]byte(nil), body...)
		mutated[i] ^= 0x01
		assert.ErrorIs(t, Verify(secret, mutated, sig), ErrMismatch, "body byte %d", i)
	}

	raw, err := hex.DecodeString(sig)
	require.NoError(t, err)
	for i := range raw {
		mutated := append([]byte(nil), raw...)
		mutated[i] ^= 0x80
		assert.ErrorIs(t, Verify(secret, body, hex.EncodeToString(mutated)), ErrMismatch, "signature byte %d", i)
	}
}

func TestVerifyDistinguishesMissingFromMismatch(t *testing.T) {
	body := []byte("payload")

	assert.ErrorIs(t, Verify("k", body, ""), ErrMissing)
	assert.ErrorIs(t, Verify("k", body, "sha256="), ErrMissing)
	assert.ErrorIs(t, Verify("k", body, "not-hex"), ErrMismatch)
	assert.ErrorIs(t, Verify("k", body, Sign("other", body)), ErrMismatch)
}

func TestParseHeader(t *testing.T) {
	assert.Equal(t, "abcd", ParseHeader("sha256=abcd"))
	assert.Equal(t, "abcd", ParseHeader("SHA256=ABCD"))
	assert.Equal(t, "abcd", ParseHeader(" abcd "))
	assert.Equal(t, "", ParseHeader(""))
}

func TestVerifyTimestamped(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	body := []byte(`{"event":"message.created"}`)
	sig := SignTimestamped("k", body, now)
	ts := strconv.FormatInt(now.Unix(), 10)

	assert.NoError(t, VerifyTimestamped("k", body, sig, ts, now.Add(time.Minute), 5*time.Minute))
	assert.ErrorIs(t, VerifyTimestamped("k", body, sig, ts, now.Add(10*time.Minute), 5*time.Minute), ErrExpired)
	assert.ErrorIs(t, VerifyTimestamped("k", body, sig, "abc", now, time.Minute), ErrMalformed)
	assert.ErrorIs(t, VerifyTimestamped("k", body, sig, fmt.Sprint(now.Unix()+1), now, time.Minute), ErrMismatch)
}
