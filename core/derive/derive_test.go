package derive

import (
	"bytes"
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	coreerrors "escrowvault/core/errors"
)

var testProgram = solana.MustPublicKeyFromBase58("8yiQ6uaJMWM5aRS5uBD7hKTaPp9sRwBmgCR4GMNiLgxh")

func TestFindAddressIsDeterministic(t *testing.T) {
	maker := solana.PublicKeyFromBytes(bytes.Repeat([]byte{0x11}, 32))
	seeds := [][]byte{[]byte("offer"), maker[:], Uint64Seed(1)}

	first, bump1, err := FindAddress(testProgram, seeds...)
	require.NoError(t, err)
	second, bump2, err := FindAddress(testProgram, seeds...)
	require.NoError(t, err)

	require.Equal(t, first, second)
	require.Equal(t, bump1, bump2)
	require.False(t, first.IsOnCurve(), "derived address must have no private key")
	require.True(t, Verify(first, testProgram, bump1, seeds...))
}

func TestFindAddressDistinctForDistinctSeeds(t *testing.T) {
	maker := solana.PublicKeyFromBytes(bytes.Repeat([]byte{0x22}, 32))
	a, _, err := FindAddress(testProgram, []byte("offer"), maker[:], Uint64Seed(1))
	require.NoError(t, err)
	b, _, err := FindAddress(testProgram, []byte("offer"), maker[:], Uint64Seed(2))
	require.NoError(t, err)
	require.NotEqual(t, a, b)

	other := solana.SystemProgramID
	c, _, err := FindAddress(other, []byte("offer"), maker[:], Uint64Seed(1))
	require.NoError(t, err)
	require.NotEqual(t, a, c, "program id must be part of the derivation")
}

func TestVerifyRejectsForgedBump(t *testing.T) {
	maker := solana.PublicKeyFromBytes(bytes.Repeat([]byte{0x33}, 32))
	seeds := [][]byte{[]byte("offer"), maker[:], Uint64Seed(7)}
	addr, bump, err := FindAddress(testProgram, seeds...)
	require.NoError(t, err)

	require.False(t, Verify(addr, testProgram, bump-1, seeds...))
	require.False(t, Verify(addr, testProgram, bump, []byte("offer"), maker[:], Uint64Seed(8)))
}

func TestSignerAddressRoundTrip(t *testing.T) {
	seeds := [][]byte{[]byte("favorites"), bytes.Repeat([]byte{0x44}, 32)}
	addr, bump, err := FindAddress(testProgram, seeds...)
	require.NoError(t, err)

	got, err := SignerAddress(testProgram, WithBump(bump, seeds...))
	require.NoError(t, err)
	require.Equal(t, addr, got)

	_, err = SignerAddress(testProgram, nil)
	require.True(t, errors.Is(err, coreerrors.ErrAuthorization))
	_, err = SignerAddress(testProgram, [][]byte{[]byte("favorites"), {0x01, 0x02}})
	require.True(t, errors.Is(err, coreerrors.ErrAuthorization))
}

func TestValidateSeedsLimits(t *testing.T) {
	require.NoError(t, ValidateSeeds([][]byte{bytes.Repeat([]byte{1}, MaxSeedLength)}))

	err := ValidateSeeds([][]byte{bytes.Repeat([]byte{1}, MaxSeedLength+1)})
	require.ErrorIs(t, err, coreerrors.ErrInvalidArgument)

	tooMany := make([][]byte, MaxSeeds)
	_, _, err = FindAddress(testProgram, tooMany...)
	require.ErrorIs(t, err, coreerrors.ErrInvalidArgument)
}

func TestWithBumpDoesNotAliasInput(t *testing.T) {
	seed := []byte("offer")
	out := WithBump(9, seed)
	out[0][0] = 'X'
	require.Equal(t, []byte("offer"), seed)
	require.Equal(t, []byte{9}, out[1])
}
