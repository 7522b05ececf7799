// Package attachment models the typed payloads carried by ledger transactions.
//
// A transaction's (type, subtype) pair is its Discriminator. Each known
// discriminator maps to exactly one variant of the sealed Attachment
// interface; no other type may implement it. Decode turns the ledger's
// stored payload bytes into a variant and Encode is its exact inverse.
package attachment

import (
	"fmt"
)

// Transaction types.
const (
	TypePayment      uint8 = 0
	TypeMessaging    uint8 = 1
	TypeColoredCoins uint8 = 2
)

// Messaging subtypes.
const (
	SubtypeArbitraryMessage uint8 = 0
	SubtypeAliasAssignment  uint8 = 1
	SubtypePollCreation     uint8 = 2
	SubtypeVoteCasting      uint8 = 3
)

// Colored coins subtypes.
const (
	SubtypeAssetIssuance        uint8 = 0
	SubtypeAssetTransfer        uint8 = 1
	SubtypeAskOrderPlacement    uint8 = 2
	SubtypeBidOrderPlacement    uint8 = 3
	SubtypeAskOrderCancellation uint8 = 4
	SubtypeBidOrderCancellation uint8 = 5
)

// Discriminator identifies which attachment variant a transaction carries.
type Discriminator struct {
	Type    uint8
	Subtype uint8
}

func (d Discriminator) String() string {
	return fmt.Sprintf("%d/%d", d.Type, d.Subtype)
}

// Kind is the stable snake_case name of a variant.
// Used in fixtures, metric labels, and log attributes.
type Kind string

const (
	KindArbitraryMessage     Kind = "arbitrary_message"
	KindAliasAssignment      Kind = "alias_assignment"
	KindPollCreation         Kind = "poll_creation"
	KindVoteCasting          Kind = "vote_casting"
	KindAssetIssuance        Kind = "asset_issuance"
	KindAssetTransfer        Kind = "asset_transfer"
	KindAskOrderPlacement    Kind = "ask_order_placement"
	KindBidOrderPlacement    Kind = "bid_order_placement"
	KindAskOrderCancellation Kind = "ask_order_cancellation"
	KindBidOrderCancellation Kind = "bid_order_cancellation"
)

// Attachment is a sealed interface over the ten payload variants.
type Attachment interface {
	Discriminator() Discriminator
	Kind() Kind

	encode(w *writer)
	sealed()
}

// ArbitraryMessage carries an opaque message.
type ArbitraryMessage struct {
	Message Bytes `yaml:"message" json:"message"`
}

// AliasAssignment binds a name to an optional URI.
type AliasAssignment struct {
	Name string  `yaml:"name" json:"name"`
	URI  *string `yaml:"uri,omitempty" json:"uri,omitempty"`
}

// PollCreation opens a poll with an ordered option list.
type PollCreation struct {
	Name               string   `yaml:"name" json:"name"`
	Description        *string  `yaml:"description,omitempty" json:"description,omitempty"`
	Options            []string `yaml:"options" json:"options"`
	MinNumberOfOptions uint8    `yaml:"min_number_of_options" json:"min_number_of_options"`
	MaxNumberOfOptions uint8    `yaml:"max_number_of_options" json:"max_number_of_options"`
	OptionsAreBinary   bool     `yaml:"options_are_binary" json:"options_are_binary"`
}

// VoteCasting records a vote on the poll created by transaction PollID.
// A nil Vote means no vote bytes were attached.
type VoteCasting struct {
	PollID int64 `yaml:"poll_id" json:"poll_id"`
	Vote   Bytes `yaml:"vote,omitempty" json:"vote,omitempty"`
}

// AssetIssuance creates a new asset; the issuing transaction id is the asset id.
type AssetIssuance struct {
	Name        string  `yaml:"name" json:"name"`
	Description *string `yaml:"description,omitempty" json:"description,omitempty"`
	Quantity    int64   `yaml:"quantity" json:"quantity"`
}

// AssetTransfer moves a quantity of an issued asset.
type AssetTransfer struct {
	Asset    int64  `yaml:"asset" json:"asset"`
	Quantity int64  `yaml:"quantity" json:"quantity"`
	Comment  string `yaml:"comment" json:"comment"`
}

// AskOrderPlacement offers a quantity of an asset at a price.
type AskOrderPlacement struct {
	Asset    int64 `yaml:"asset" json:"asset"`
	Quantity int64 `yaml:"quantity" json:"quantity"`
	Price    int64 `yaml:"price" json:"price"`
}

// BidOrderPlacement requests a quantity of an asset at a price.
type BidOrderPlacement struct {
	Asset    int64 `yaml:"asset" json:"asset"`
	Quantity int64 `yaml:"quantity" json:"quantity"`
	Price    int64 `yaml:"price" json:"price"`
}

// AskOrderCancellation withdraws the ask order placed by transaction Order.
type AskOrderCancellation struct {
	Order int64 `yaml:"order_id" json:"order_id"`
}

// BidOrderCancellation withdraws the bid order placed by transaction Order.
type BidOrderCancellation struct {
	Order int64 `yaml:"order_id" json:"order_id"`
}

func (ArbitraryMessage) Discriminator() Discriminator {
	return Discriminator{TypeMessaging, SubtypeArbitraryMessage}
}
func (AliasAssignment) Discriminator() Discriminator {
	return Discriminator{TypeMessaging, SubtypeAliasAssignment}
}
func (PollCreation) Discriminator() Discriminator {
	return Discriminator{TypeMessaging, SubtypePollCreation}
}
func (VoteCasting) Discriminator() Discriminator {
	return Discriminator{TypeMessaging, SubtypeVoteCasting}
}
func (AssetIssuance) Discriminator() Discriminator {
	return Discriminator{TypeColoredCoins, SubtypeAssetIssuance}
}
func (AssetTransfer) Discriminator() Discriminator {
	return Discriminator{TypeColoredCoins, SubtypeAssetTransfer}
}
func (AskOrderPlacement) Discriminator() Discriminator {
	return Discriminator{TypeColoredCoins, SubtypeAskOrderPlacement}
}
func (BidOrderPlacement) Discriminator() Discriminator {
	return Discriminator{TypeColoredCoins, SubtypeBidOrderPlacement}
}
func (AskOrderCancellation) Discriminator() Discriminator {
	return Discriminator{TypeColoredCoins, SubtypeAskOrderCancellation}
}
func (BidOrderCancellation) Discriminator() Discriminator {
	return Discriminator{TypeColoredCoins, SubtypeBidOrderCancellation}
}

func (ArbitraryMessage) Kind() Kind     { return KindArbitraryMessage }
func (AliasAssignment) Kind() Kind      { return KindAliasAssignment }
func (PollCreation) Kind() Kind         { return KindPollCreation }
func (VoteCasting) Kind() Kind          { return KindVoteCasting }
func (AssetIssuance) Kind() Kind        { return KindAssetIssuance }
func (AssetTransfer) Kind() Kind        { return KindAssetTransfer }
func (AskOrderPlacement) Kind() Kind    { return KindAskOrderPlacement }
func (BidOrderPlacement) Kind() Kind    { return KindBidOrderPlacement }
func (AskOrderCancellation) Kind() Kind { return KindAskOrderCancellation }
func (BidOrderCancellation) Kind() Kind { return KindBidOrderCancellation }

func (ArbitraryMessage) sealed()     {}
func (AliasAssignment) sealed()      {}
func (PollCreation) sealed()         {}
func (VoteCasting) sealed()          {}
func (AssetIssuance) sealed()        {}
func (AssetTransfer) sealed()        {}
func (AskOrderPlacement) sealed()    {}
func (BidOrderPlacement) sealed()    {}
func (AskOrderCancellation) sealed() {}
func (BidOrderCancellation) sealed() {}

// variant ties a kind to its discriminator and payload decoder.
type variant struct {
	kind   Kind
	disc   Discriminator
	decode func(r *reader) Attachment
}

// variants lists every known variant in declaration order.
// Parents precede the variants that reference them.
var variants = []variant{
	{KindArbitraryMessage, ArbitraryMessage{}.Discriminator(), decodeArbitraryMessage},
	{KindAliasAssignment, AliasAssignment{}.Discriminator(), decodeAliasAssignment},
	{KindPollCreation, PollCreation{}.Discriminator(), decodePollCreation},
	{KindVoteCasting, VoteCasting{}.Discriminator(), decodeVoteCasting},
	{KindAssetIssuance, AssetIssuance{}.Discriminator(), decodeAssetIssuance},
	{KindAssetTransfer, AssetTransfer{}.Discriminator(), decodeAssetTransfer},
	{KindAskOrderPlacement, AskOrderPlacement{}.Discriminator(), decodeAskOrderPlacement},
	{KindBidOrderPlacement, BidOrderPlacement{}.Discriminator(), decodeBidOrderPlacement},
	{KindAskOrderCancellation, AskOrderCancellation{}.Discriminator(), decodeAskOrderCancellation},
	{KindBidOrderCancellation, BidOrderCancellation{}.Discriminator(), decodeBidOrderCancellation},
}

// Kinds returns every known variant kind in declaration order.
func Kinds() []Kind {
	kinds := make([]Kind, len(variants))
	for i, v := range variants {
		kinds[i] = v.kind
	}
	return kinds
}

// Lookup returns the kind registered for a discriminator.
func Lookup(d Discriminator) (Kind, bool) {
	for _, v := range variants {
		if v.disc == d {
			return v.kind, true
		}
	}
	return "", false
}

// DiscriminatorOf returns the discriminator registered for a kind.
func DiscriminatorOf(k Kind) (Discriminator, bool) {
	for _, v := range variants {
		if v.kind == k {
			return v.disc, true
		}
	}
	return Discriminator{}, false
}

// UnknownDiscriminatorError reports a (type, subtype) pair with no variant.
// Raw values are kept as read so out-of-range source columns are reported verbatim.
type UnknownDiscriminatorError struct {
	Type    int64
	Subtype int64
}

func (e *UnknownDiscriminatorError) Error() string {
	return fmt.Sprintf("unknown attachment discriminator %d/%d", e.Type, e.Subtype)
}

// MalformedPayloadError reports attachment bytes that do not match the
// layout of their variant.
type MalformedPayloadError struct {
	Kind   Kind
	Offset int
	Reason string
}

func (e *MalformedPayloadError) Error() string {
	return fmt.Sprintf("malformed %s payload at offset %d: %s", e.Kind, e.Offset, e.Reason)
}
