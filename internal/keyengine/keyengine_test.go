package keyengine

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScrambleKey_KnownInputs(t *testing.T) {
	zero := big.NewInt(0)
	one := big.NewInt(1)

	// x=0, y=0, c=0 -> rol128(0,87) == 0
	var want [16]byte
	assert.Equal(t, want, ScrambleKey(zero, zero, zero))

	// x=0, y=0, c=1 -> rol128(1, 87) == 1 << 87
	got := ScrambleKey(zero, zero, one)
	expected := new(big.Int).Lsh(one, 87)
	var expectedBytes [16]byte
	expected.FillBytes(expectedBytes[:])
	assert.Equal(t, expectedBytes, got)
}

func TestScrambleKey_Deterministic(t *testing.T) {
	x := big.NewInt(0x1122334455)
	y := big.NewInt(0x6677889900)
	c := big.NewInt(0xAABBCCDD)

	a := ScrambleKey(x, y, c)
	b := ScrambleKey(x, y, c)
	assert.Equal(t, a, b, "ScrambleKey must be a pure function of its inputs")

	other := ScrambleKey(x, y, big.NewInt(0xAABBCCDE))
	assert.NotEqual(t, a, other, "changing c must change the scrambled key")
}

func TestEngine_MissingSecretsDegradeGracefully(t *testing.T) {
	e := New(Secrets{})
	_, ok := e.KeySdNandCmac()
	assert.False(t, ok, "KeySdNandCmac must report unavailable with no secrets")
	_, ok = e.KeySdDecrypt()
	assert.False(t, ok, "KeySdDecrypt must report unavailable with no secrets")
}

func TestEngine_DerivesKeysWhenSecretsPresent(t *testing.T) {
	secrets := Secrets{
		Key0x30X:   big.NewInt(1),
		Key0x34X:   big.NewInt(2),
		KeyMovable: big.NewInt(3),
		KeyConst:   big.NewInt(4),
	}
	e := New(secrets)

	nandKey, ok := e.KeySdNandCmac()
	require.True(t, ok)
	assert.Equal(t, ScrambleKey(secrets.Key0x30X, secrets.KeyMovable, secrets.KeyConst), nandKey)

	decryptKey, ok := e.KeySdDecrypt()
	require.True(t, ok)
	assert.Equal(t, ScrambleKey(secrets.Key0x34X, secrets.KeyMovable, secrets.KeyConst), decryptKey)
	assert.NotEqual(t, nandKey, decryptKey, "the two derived keys use different X-values and must differ")
}
