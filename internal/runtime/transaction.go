package runtime

import (
	"crypto/ed25519"
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"

	"github.com/josh-kwaku/custody-ledger/internal/domain"
)

type AccountMeta struct {
	Address    domain.Address `json:"address"`
	IsSigner   bool           `json:"is_signer"`
	IsWritable bool           `json:"is_writable"`
}

func Writable(addr domain.Address, signer bool) AccountMeta {
	return AccountMeta{Address: addr, IsSigner: signer, IsWritable: true}
}

func Readonly(addr domain.Address, signer bool) AccountMeta {
	return AccountMeta{Address: addr, IsSigner: signer}
}

type Instruction struct {
	Facility domain.Address `json:"facility"`
	Accounts []AccountMeta  `json:"accounts"`
	Data     []byte         `json:"data"`
}

type Signature struct {
	Signer    domain.Address `json:"signer"`
	Signature []byte         `json:"signature"`
}

// Transaction is an ordered list of instructions executed as one atomic
// unit. The ID is part of the signed message and is rejected if replayed.
type Transaction struct {
	ID           uuid.UUID     `json:"id"`
	Instructions []Instruction `json:"instructions"`
	Signatures   []Signature   `json:"signatures"`
}

func NewTransaction(instructions ...Instruction) *Transaction {
	return &Transaction{ID: uuid.New(), Instructions: instructions}
}

// Message is the byte string every signer signs.
func (t *Transaction) Message() []byte {
	buf := make([]byte, 0, 256)
	buf = append(buf, t.ID[:]...)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(t.Instructions)))
	for _, ix := range t.Instructions {
		buf = append(buf, ix.Facility[:]...)
		buf = binary.LittleEndian.AppendUint16(buf, uint16(len(ix.Accounts)))
		for _, m := range ix.Accounts {
			buf = append(buf, m.Address[:]...)
			buf = append(buf, metaFlags(m))
		}
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(ix.Data)))
		buf = append(buf, ix.Data...)
	}
	return buf
}

// Sign appends a signature by key over the current message.
func (t *Transaction) Sign(keys ...ed25519.PrivateKey) {
	msg := t.Message()
	for _, k := range keys {
		var signer domain.Address
		copy(signer[:], k.Public().(ed25519.PublicKey))
		t.Signatures = append(t.Signatures, Signature{Signer: signer, Signature: ed25519.Sign(k, msg)})
	}
}

// RequiredSigners lists, in first-seen order, every address some
// instruction marks as a signer.
func (t *Transaction) RequiredSigners() []domain.Address {
	seen := make(map[domain.Address]bool)
	var out []domain.Address
	for _, ix := range t.Instructions {
		for _, m := range ix.Accounts {
			if m.IsSigner && !seen[m.Address] {
				seen[m.Address] = true
				out = append(out, m.Address)
			}
		}
	}
	return out
}

// VerifySignatures checks every attached signature and that every required
// signer is covered.
func (t *Transaction) VerifySignatures() error {
	msg := t.Message()
	signed := make(map[domain.Address]bool, len(t.Signatures))
	for _, s := range t.Signatures {
		if len(s.Signature) != ed25519.SignatureSize || !ed25519.Verify(ed25519.PublicKey(s.Signer[:]), msg, s.Signature) {
			return fmt.Errorf("VerifySignatures: %w: signer %s", domain.ErrInvalidSignature, s.Signer)
		}
		signed[s.Signer] = true
	}
	for _, addr := range t.RequiredSigners() {
		if !signed[addr] {
			return fmt.Errorf("VerifySignatures: %w: missing signature for %s", domain.ErrAuthorization, addr)
		}
	}
	return nil
}

func (t *Transaction) validate() error {
	if len(t.Instructions) == 0 {
		return fmt.Errorf("%w: transaction has no instructions", domain.ErrInvalidRequest)
	}
	if len(t.Instructions) > MaxInstructions {
		return fmt.Errorf("%w: %d instructions", domain.ErrInvalidRequest, len(t.Instructions))
	}
	for i, ix := range t.Instructions {
		if len(ix.Accounts) > MaxInstructionAccounts {
			return fmt.Errorf("%w: instruction %d has %d accounts", domain.ErrInvalidRequest, i, len(ix.Accounts))
		}
		if len(ix.Data) > MaxInstructionData {
			return fmt.Errorf("%w: instruction %d carries %d bytes", domain.ErrInvalidRequest, i, len(ix.Data))
		}
	}
	if size := EncodedInstructionsLen(t.Instructions); size > MaxInstructionListLen {
		return fmt.Errorf("%w: %w: instruction list encodes to %d bytes, limit %d",
			domain.ErrInvalidRequest, domain.ErrTransactionTooLarge, size, MaxInstructionListLen)
	}
	return nil
}

func metaFlags(m AccountMeta) byte {
	var f byte
	if m.IsSigner {
		f |= 1
	}
	if m.IsWritable {
		f |= 2
	}
	return f
}
