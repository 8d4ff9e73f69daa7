package domain

var (
	SystemFacility          = Address{}
	SysvarOwner             = MustParseAddress("Sysvar1111111111111111111111111111111111111")
	InstructionsSysvar      = MustParseAddress("Sysvar1nstructions1111111111111111111111111")
	TokenFacility           = MustParseAddress("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")
	ExtendedTokenFacility   = MustParseAddress("TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb")
	AssociatedTokenFacility = MustParseAddress("ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL")
)

// Facilities carries the facility identities a node runs with. It is built
// once at startup and passed to every component that derives addresses or
// checks ownership.
type Facilities struct {
	System          Address
	Token           Address
	ExtendedToken   Address
	AssociatedToken Address
	FlashLoan       Address
	Vault           Address
	Escrow          Address
	Exchange        Address
}

func DefaultFacilities() Facilities {
	return Facilities{
		System:          SystemFacility,
		Token:           TokenFacility,
		ExtendedToken:   ExtendedTokenFacility,
		AssociatedToken: AssociatedTokenFacility,
		FlashLoan:       LabelAddress("flashloan"),
		Vault:           LabelAddress("vault"),
		Escrow:          LabelAddress("escrow"),
		Exchange:        LabelAddress("exchange"),
	}
}

// IsTokenFacility reports whether id is one of the two token encodings.
func (f Facilities) IsTokenFacility(id Address) bool {
	return id == f.Token || id == f.ExtendedToken
}
