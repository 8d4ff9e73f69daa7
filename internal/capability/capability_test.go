package capability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/custody-ledger/internal/derive"
	"github.com/josh-kwaku/custody-ledger/internal/domain"
	"github.com/josh-kwaku/custody-ledger/internal/runtime"
	"github.com/josh-kwaku/custody-ledger/internal/token"
)

var facilities = domain.DefaultFacilities()

func handle(owner domain.Address, data []byte, signer bool) *runtime.Handle {
	return runtime.NewHandle(domain.LabelAddress("subject"), &domain.Account{Owner: owner, Lamports: 1, Data: data}, signer, true)
}

func extended(size int, discriminator byte) []byte {
	b := make([]byte, size)
	if size > token.AccountTypeOffset {
		b[token.AccountTypeOffset] = discriminator
	}
	return b
}

func TestCheckSigner(t *testing.T) {
	require.NoError(t, CheckSigner(handle(domain.SystemFacility, nil, true)))
	require.ErrorIs(t, CheckSigner(handle(domain.SystemFacility, nil, false)), domain.ErrAuthorization)
}

func TestCheckOwnedBy(t *testing.T) {
	h := handle(facilities.Vault, nil, false)

	require.NoError(t, CheckOwnedBy(h, facilities.Vault))
	require.ErrorIs(t, CheckOwnedBy(h, facilities.Escrow), domain.ErrInvalidOwner)
	require.ErrorIs(t, CheckSystemOwned(h), domain.ErrInvalidOwner)
	require.NoError(t, CheckSystemOwned(handle(domain.SystemFacility, nil, false)))
}

func TestCheckMintLike(t *testing.T) {
	v := New(facilities)

	tests := []struct {
		name    string
		owner   domain.Address
		data    []byte
		wantErr error
	}{
		{"legacy mint", facilities.Token, make([]byte, token.MintLen), nil},
		{"legacy wrong length", facilities.Token, make([]byte, token.AccountLen), domain.ErrInvalidAccountData},
		{"extended base length", facilities.ExtendedToken, make([]byte, token.MintLen), nil},
		{"extended with mint discriminator", facilities.ExtendedToken, extended(token.ExtendedMintLen+40, token.AccountTypeMint), nil},
		{"extended with account discriminator", facilities.ExtendedToken, extended(token.ExtendedMintLen, token.AccountTypeAccount), domain.ErrInvalidAccountData},
		{"extended too short for discriminator", facilities.ExtendedToken, make([]byte, 100), domain.ErrInvalidAccountData},
		{"not a token facility", domain.SystemFacility, make([]byte, token.MintLen), domain.ErrInvalidOwner},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.CheckMintLike(handle(tt.owner, tt.data, false))
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestCheckTokenAccountLike(t *testing.T) {
	v := New(facilities)

	tests := []struct {
		name    string
		owner   domain.Address
		data    []byte
		wantErr error
	}{
		{"legacy account", facilities.Token, make([]byte, token.AccountLen), nil},
		{"legacy with trailing bytes", facilities.Token, make([]byte, token.ExtendedAccountLen), domain.ErrInvalidAccountData},
		{"legacy mint passed as account", facilities.Token, make([]byte, token.MintLen), domain.ErrInvalidAccountData},
		{"extended base length", facilities.ExtendedToken, make([]byte, token.AccountLen), nil},
		{"extended with account discriminator", facilities.ExtendedToken, extended(token.ExtendedAccountLen, token.AccountTypeAccount), nil},
		{"extended mint passed as account", facilities.ExtendedToken, extended(token.ExtendedMintLen, token.AccountTypeMint), domain.ErrInvalidAccountData},
		{"wrong owner", facilities.FlashLoan, make([]byte, token.AccountLen), domain.ErrInvalidOwner},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.CheckTokenAccountLike(handle(tt.owner, tt.data, false))
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestCheckAssociatedTokenOf(t *testing.T) {
	v := New(facilities)
	wallet := domain.LabelAddress("wallet")
	mint := domain.LabelAddress("mint")

	ata, _, err := derive.AssociatedTokenAddress(wallet, facilities.Token, mint, facilities.AssociatedToken)
	require.NoError(t, err)

	good := runtime.NewHandle(ata, &domain.Account{Owner: facilities.Token, Lamports: 1, Data: make([]byte, token.AccountLen)}, false, true)
	require.NoError(t, v.CheckAssociatedTokenOf(good, wallet, mint))

	require.ErrorIs(t, v.CheckAssociatedTokenOf(good, domain.LabelAddress("other"), mint), domain.ErrInvalidOwner)

	// Same derivation seeds but owned by the extended facility derive a
	// different address.
	wrongFacility := runtime.NewHandle(ata, &domain.Account{Owner: facilities.ExtendedToken, Lamports: 1, Data: make([]byte, token.AccountLen)}, false, true)
	require.ErrorIs(t, v.CheckAssociatedTokenOf(wrongFacility, wallet, mint), domain.ErrInvalidOwner)

	notAccount := runtime.NewHandle(ata, &domain.Account{Owner: facilities.Token, Lamports: 1, Data: make([]byte, token.MintLen)}, false, true)
	require.ErrorIs(t, v.CheckAssociatedTokenOf(notAccount, wallet, mint), domain.ErrInvalidAccountData)
}

func TestCheckProgramAccount(t *testing.T) {
	h := handle(facilities.Escrow, make([]byte, 113), false)

	require.NoError(t, CheckProgramAccount(h, facilities.Escrow, 113))
	require.ErrorIs(t, CheckProgramAccount(h, facilities.Escrow, 108), domain.ErrInvalidAccountData)
	require.ErrorIs(t, CheckProgramAccount(h, facilities.Exchange, 113), domain.ErrInvalidOwner)
}

func TestValidatorCheckDispatch(t *testing.T) {
	v := New(facilities)

	assert.NoError(t, v.Check(RoleSigner, handle(domain.SystemFacility, nil, true)))
	assert.NoError(t, v.Check(RoleSystemAccount, handle(domain.SystemFacility, nil, false)))
	assert.NoError(t, v.Check(RoleMint, handle(facilities.Token, make([]byte, token.MintLen), false)))
	assert.NoError(t, v.Check(RoleTokenAccount, handle(facilities.Token, make([]byte, token.AccountLen), false)))
	assert.ErrorIs(t, v.Check(RoleTokenAccount, handle(facilities.Token, make([]byte, token.MintLen), false)), domain.ErrInvalidAccountData)
	assert.Error(t, v.Check(Role(99), handle(domain.SystemFacility, nil, false)))
	assert.Equal(t, "mint", RoleMint.String())
}
