package ledger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/ledgerattach/internal/attachment"
)

// Fixture is a YAML document of ledger rows.
//
//	transactions:
//	  - id: 100
//	    kind: asset_issuance
//	    attachment: {name: gold, quantity: 1000}
//	  - id: 101
//	    type: 2
//	    subtype: 4
//	    raw: "0x6400000000000000"
//	  - id: 102        # plain payment, no attachment
//	    amount: 5
type Fixture struct {
	Transactions []FixtureRow `yaml:"transactions"`
}

// FixtureRow describes one ledger row. The discriminator comes from Kind,
// or from Type and Subtype when Kind is empty. The payload is either a
// structured Attachment encoded with the variant's layout, or Raw bytes
// stored verbatim.
type FixtureRow struct {
	ID          int64            `yaml:"id"`
	Kind        attachment.Kind  `yaml:"kind,omitempty"`
	Type        *int32           `yaml:"type,omitempty"`
	Subtype     *int32           `yaml:"subtype,omitempty"`
	Timestamp   int64            `yaml:"timestamp,omitempty"`
	Height      int64            `yaml:"height,omitempty"`
	SenderID    int64            `yaml:"sender_id,omitempty"`
	RecipientID *int64           `yaml:"recipient_id,omitempty"`
	Amount      int64            `yaml:"amount,omitempty"`
	Fee         int64            `yaml:"fee,omitempty"`
	Attachment  yaml.Node        `yaml:"attachment,omitempty"`
	Raw         attachment.Bytes `yaml:"raw,omitempty"`
}

// ParseFixture decodes a fixture document. Unknown fields are rejected.
func ParseFixture(r io.Reader) (*Fixture, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f Fixture
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return &f, nil
		}
		return nil, fmt.Errorf("parse fixture: %w", err)
	}
	return &f, nil
}

// LoadFixture reads and decodes a fixture file.
func LoadFixture(path string) (*Fixture, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open fixture: %w", err)
	}
	defer file.Close()

	f, err := ParseFixture(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Resolve converts every row to a ledger Transaction.
func (f *Fixture) Resolve() ([]Transaction, error) {
	out := make([]Transaction, 0, len(f.Transactions))
	seen := make(map[int64]bool, len(f.Transactions))
	for i, row := range f.Transactions {
		if seen[row.ID] {
			return nil, fmt.Errorf("fixture row %d: duplicate id %d", i, row.ID)
		}
		seen[row.ID] = true

		tx, err := row.Transaction()
		if err != nil {
			return nil, fmt.Errorf("fixture row %d (id %d): %w", i, row.ID, err)
		}
		out = append(out, tx)
	}
	return out, nil
}

// Transaction resolves the row's discriminator and payload.
func (r FixtureRow) Transaction() (Transaction, error) {
	tx := Transaction{
		ID:          r.ID,
		Timestamp:   r.Timestamp,
		Height:      r.Height,
		SenderID:    r.SenderID,
		RecipientID: r.RecipientID,
		Amount:      r.Amount,
		Fee:         r.Fee,
	}

	if r.Type != nil {
		tx.Type = *r.Type
	}
	if r.Subtype != nil {
		tx.Subtype = *r.Subtype
	}

	hasAttachment := !r.Attachment.IsZero()
	if r.Kind == "" {
		if hasAttachment {
			return Transaction{}, fmt.Errorf("attachment given without kind")
		}
		if r.Raw != nil {
			tx.Attachment = []byte(r.Raw)
		}
		return tx, nil
	}

	disc, ok := attachment.DiscriminatorOf(r.Kind)
	if !ok {
		return Transaction{}, fmt.Errorf("unknown kind %q", r.Kind)
	}
	if (r.Type != nil && *r.Type != int32(disc.Type)) || (r.Subtype != nil && *r.Subtype != int32(disc.Subtype)) {
		return Transaction{}, fmt.Errorf("kind %s is %s, not %d/%d", r.Kind, disc, tx.Type, tx.Subtype)
	}
	tx.Type = int32(disc.Type)
	tx.Subtype = int32(disc.Subtype)

	switch {
	case hasAttachment && r.Raw != nil:
		return Transaction{}, fmt.Errorf("attachment and raw are mutually exclusive")
	case r.Raw != nil:
		tx.Attachment = []byte(r.Raw)
	case hasAttachment:
		a, err := decodeAttachment(r.Kind, &r.Attachment)
		if err != nil {
			return Transaction{}, err
		}
		payload, err := attachment.Encode(a)
		if err != nil {
			return Transaction{}, err
		}
		tx.Attachment = payload
	default:
		return Transaction{}, fmt.Errorf("kind %s needs an attachment or raw payload", r.Kind)
	}
	return tx, nil
}

var attachmentDecoders = map[attachment.Kind]func(*yaml.Node) (attachment.Attachment, error){
	attachment.KindArbitraryMessage:     decodeAs[attachment.ArbitraryMessage],
	attachment.KindAliasAssignment:      decodeAs[attachment.AliasAssignment],
	attachment.KindPollCreation:         decodeAs[attachment.PollCreation],
	attachment.KindVoteCasting:          decodeAs[attachment.VoteCasting],
	attachment.KindAssetIssuance:        decodeAs[attachment.AssetIssuance],
	attachment.KindAssetTransfer:        decodeAs[attachment.AssetTransfer],
	attachment.KindAskOrderPlacement:    decodeAs[attachment.AskOrderPlacement],
	attachment.KindBidOrderPlacement:    decodeAs[attachment.BidOrderPlacement],
	attachment.KindAskOrderCancellation: decodeAs[attachment.AskOrderCancellation],
	attachment.KindBidOrderCancellation: decodeAs[attachment.BidOrderCancellation],
}

func decodeAttachment(kind attachment.Kind, node *yaml.Node) (attachment.Attachment, error) {
	decode, ok := attachmentDecoders[kind]
	if !ok {
		return nil, fmt.Errorf("unknown kind %q", kind)
	}
	a, err := decode(node)
	if err != nil {
		return nil, fmt.Errorf("decode %s attachment: %w", kind, err)
	}
	return a, nil
}

func decodeAs[T attachment.Attachment](node *yaml.Node) (attachment.Attachment, error) {
	var v T
	if err := node.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// Import loads a fixture into the ledger in one transaction.
// Returns the number of rows inserted.
func (l *Ledger) Import(ctx context.Context, f *Fixture) (int, error) {
	txs, err := f.Resolve()
	if err != nil {
		return 0, err
	}
	if len(txs) == 0 {
		return 0, nil
	}
	if err := l.Insert(ctx, txs...); err != nil {
		return 0, err
	}
	return len(txs), nil
}
