// Package router projects decoded attachments onto side-table rows.
//
// Route is a total match over the attachment variants: each variant yields
// exactly one row for exactly one table, and anything else is rejected.
// It performs no I/O.
package router

import (
	"fmt"

	"github.com/roach88/ledgerattach/internal/attachment"
	"github.com/roach88/ledgerattach/internal/schema"
)

// UnknownVariantError reports a payload the router has no projection for.
type UnknownVariantError struct {
	TransactionID int64
	Type          string
}

func (e *UnknownVariantError) Error() string {
	return fmt.Sprintf("transaction %d: no table projection for attachment type %s", e.TransactionID, e.Type)
}

// Route returns the side-table row for transaction txID carrying a.
// Values follow the table's column order with the transaction id first.
// Absent optional fields become nil, which binds as SQL NULL.
func Route(txID int64, a attachment.Attachment) (schema.Row, error) {
	switch v := a.(type) {
	case attachment.ArbitraryMessage:
		msg := []byte(v.Message)
		if msg == nil {
			msg = []byte{}
		}
		return row(schema.TableArbitraryMessage, txID, msg), nil
	case attachment.AliasAssignment:
		return row(schema.TableAliasAssignment, txID, v.Name, optionalString(v.URI)), nil
	case attachment.PollCreation:
		return row(schema.TablePollCreation, txID,
			v.Name,
			optionalString(v.Description),
			schema.StringList(v.Options),
			int64(v.MinNumberOfOptions),
			int64(v.MaxNumberOfOptions),
			v.OptionsAreBinary,
		), nil
	case attachment.VoteCasting:
		return row(schema.TableVoteCasting, txID, v.PollID, optionalBytes(v.Vote)), nil
	case attachment.AssetIssuance:
		return row(schema.TableAssetIssuance, txID, v.Name, optionalString(v.Description), v.Quantity), nil
	case attachment.AssetTransfer:
		return row(schema.TableAssetTransfer, txID, v.Asset, v.Quantity, v.Comment), nil
	case attachment.AskOrderPlacement:
		return row(schema.TableAskOrderPlacement, txID, v.Asset, v.Quantity, v.Price), nil
	case attachment.BidOrderPlacement:
		return row(schema.TableBidOrderPlacement, txID, v.Asset, v.Quantity, v.Price), nil
	case attachment.AskOrderCancellation:
		return row(schema.TableAskOrderCancellation, txID, v.Order), nil
	case attachment.BidOrderCancellation:
		return row(schema.TableBidOrderCancellation, txID, v.Order), nil
	default:
		return schema.Row{}, &UnknownVariantError{TransactionID: txID, Type: fmt.Sprintf("%T", a)}
	}
}

func row(table string, txID int64, values ...any) schema.Row {
	return schema.Row{Table: table, Values: append([]any{txID}, values...)}
}

// optionalString returns an untyped nil for absent text.
func optionalString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

// optionalBytes returns an untyped nil for absent bytes. A typed nil
// []byte would bind as an empty blob on some drivers.
func optionalBytes(b attachment.Bytes) any {
	if b == nil {
		return nil
	}
	return []byte(b)
}
