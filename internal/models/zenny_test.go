package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTokens(t *testing.T) {
	cases := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{in: "30", want: 3000},
		{in: "0.01", want: 1},
		{in: "12.5", want: 1250},
		{in: "100.00", want: 10000},
		{in: "0", wantErr: true},
		{in: "-5", wantErr: true},
		{in: "0.001", wantErr: true},
		{in: "1.234", wantErr: true},
		{in: "100000000000000000000", wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseTokens(decimal.RequireFromString(tc.in))
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrInvalidAmount)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseTokenStringRejectsGarbage(t *testing.T) {
	_, err := ParseTokenString("ten")
	assert.ErrorIs(t, err, ErrInvalidAmount)

	z, err := ParseTokenString("7.25")
	require.NoError(t, err)
	assert.Equal(t, int64(725), z)
}

func TestFormatTokens(t *testing.T) {
	assert.Equal(t, "70.00", FormatTokens(7000))
	assert.Equal(t, "0.01", FormatTokens(1))
	assert.Equal(t, "0.00", FormatTokens(0))
	assert.Equal(t, "123.45", FormatTokens(12345))
}

func TestSignedAmount(t *testing.T) {
	transfer := Transaction{Sender: "a", Recipient: "b", Amount: 300, Kind: KindTransfer}
	assert.Equal(t, int64(-300), transfer.SignedAmount("a"))
	assert.Equal(t, int64(300), transfer.SignedAmount("b"))
	assert.Equal(t, int64(0), transfer.SignedAmount("c"))

	airdrop := Transaction{Recipient: "a", Amount: 10000, Kind: KindAirdrop}
	assert.True(t, airdrop.Involves("a"))
	assert.False(t, airdrop.Involves(""))
	assert.Equal(t, int64(10000), airdrop.SignedAmount("a"))
}

func TestRecipientNotFoundIsNotFound(t *testing.T) {
	assert.ErrorIs(t, ErrRecipientNotFound, ErrNotFound)
	assert.True(t, IsDomainError(ErrRecipientNotFound))
	assert.ErrorIs(t, Unavailable("get", assert.AnError), ErrStoreUnavailable)
}
