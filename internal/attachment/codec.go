package attachment

import (
	"encoding/binary"
	"fmt"
	"math"
	"unicode/utf8"
)

// Decode parses stored payload bytes for the given discriminator.
//
// Returns *UnknownDiscriminatorError if no variant is registered for d and
// *MalformedPayloadError if data does not match the variant's layout,
// including trailing bytes after the last field.
func Decode(d Discriminator, data []byte) (Attachment, error) {
	for _, v := range variants {
		if v.disc != d {
			continue
		}
		r := &reader{buf: data, kind: v.kind}
		a := v.decode(r)
		if r.err == nil && r.off != len(r.buf) {
			r.fail(fmt.Sprintf("%d trailing bytes", len(r.buf)-r.off))
		}
		if r.err != nil {
			return nil, r.err
		}
		return a, nil
	}
	return nil, &UnknownDiscriminatorError{Type: int64(d.Type), Subtype: int64(d.Subtype)}
}

// Encode serializes an attachment into its stored payload layout.
// Fails if a variable-length field exceeds its length prefix.
func Encode(a Attachment) ([]byte, error) {
	if a == nil {
		return nil, fmt.Errorf("encode attachment: nil attachment")
	}
	w := &writer{kind: a.Kind()}
	a.encode(w)
	if w.err != nil {
		return nil, w.err
	}
	return w.buf, nil
}

func decodeArbitraryMessage(r *reader) Attachment {
	n := r.u32("message length")
	return ArbitraryMessage{Message: r.bytes(int(n), "message")}
}

func decodeAliasAssignment(r *reader) Attachment {
	var a AliasAssignment
	a.Name = r.text(int(r.u8("name length")), "name")
	a.URI = r.optionalText(int(r.u16("uri length")), "uri")
	return a
}

func decodePollCreation(r *reader) Attachment {
	var p PollCreation
	p.Name = r.text(int(r.u16("name length")), "name")
	p.Description = r.optionalText(int(r.u16("description length")), "description")
	count := int(r.u8("option count"))
	p.Options = make([]string, 0, count)
	for i := 0; i < count && r.err == nil; i++ {
		p.Options = append(p.Options, r.text(int(r.u16("option length")), fmt.Sprintf("option %d", i)))
	}
	p.MinNumberOfOptions = r.u8("min number of options")
	p.MaxNumberOfOptions = r.u8("max number of options")
	p.OptionsAreBinary = r.flag("options are binary")
	return p
}

func decodeVoteCasting(r *reader) Attachment {
	var v VoteCasting
	v.PollID = r.i64("poll id")
	if n := int(r.u8("vote length")); n > 0 {
		v.Vote = r.bytes(n, "vote")
	}
	return v
}

func decodeAssetIssuance(r *reader) Attachment {
	var a AssetIssuance
	a.Name = r.text(int(r.u8("name length")), "name")
	a.Description = r.optionalText(int(r.u16("description length")), "description")
	a.Quantity = r.i64("quantity")
	return a
}

func decodeAssetTransfer(r *reader) Attachment {
	var a AssetTransfer
	a.Asset = r.i64("asset")
	a.Quantity = r.i64("quantity")
	a.Comment = r.text(int(r.u16("comment length")), "comment")
	return a
}

func decodeAskOrderPlacement(r *reader) Attachment {
	return AskOrderPlacement{Asset: r.i64("asset"), Quantity: r.i64("quantity"), Price: r.i64("price")}
}

func decodeBidOrderPlacement(r *reader) Attachment {
	return BidOrderPlacement{Asset: r.i64("asset"), Quantity: r.i64("quantity"), Price: r.i64("price")}
}

func decodeAskOrderCancellation(r *reader) Attachment {
	return AskOrderCancellation{Order: r.i64("order id")}
}

func decodeBidOrderCancellation(r *reader) Attachment {
	return BidOrderCancellation{Order: r.i64("order id")}
}

func (a ArbitraryMessage) encode(w *writer) {
	w.u32Bytes(a.Message, "message")
}

func (a AliasAssignment) encode(w *writer) {
	w.u8Text(a.Name, "name")
	w.u16Text(deref(a.URI), "uri")
}

func (p PollCreation) encode(w *writer) {
	w.u16Text(p.Name, "name")
	w.u16Text(deref(p.Description), "description")
	if len(p.Options) > math.MaxUint8 {
		w.fail(fmt.Sprintf("%d options exceed %d", len(p.Options), math.MaxUint8))
		return
	}
	w.u8(uint8(len(p.Options)))
	for i, opt := range p.Options {
		w.u16Text(opt, fmt.Sprintf("option %d", i))
	}
	w.u8(p.MinNumberOfOptions)
	w.u8(p.MaxNumberOfOptions)
	if p.OptionsAreBinary {
		w.u8(1)
	} else {
		w.u8(0)
	}
}

func (v VoteCasting) encode(w *writer) {
	w.i64(v.PollID)
	w.u8Bytes(v.Vote, "vote")
}

func (a AssetIssuance) encode(w *writer) {
	w.u8Text(a.Name, "name")
	w.u16Text(deref(a.Description), "description")
	w.i64(a.Quantity)
}

func (a AssetTransfer) encode(w *writer) {
	w.i64(a.Asset)
	w.i64(a.Quantity)
	w.u16Text(a.Comment, "comment")
}

func (o AskOrderPlacement) encode(w *writer) {
	w.i64(o.Asset)
	w.i64(o.Quantity)
	w.i64(o.Price)
}

func (o BidOrderPlacement) encode(w *writer) {
	w.i64(o.Asset)
	w.i64(o.Quantity)
	w.i64(o.Price)
}

func (c AskOrderCancellation) encode(w *writer) { w.i64(c.Order) }
func (c BidOrderCancellation) encode(w *writer) { w.i64(c.Order) }

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// reader decodes little-endian fields with a sticky error.
// After the first failure every read returns a zero value.
type reader struct {
	buf  []byte
	off  int
	kind Kind
	err  error
}

func (r *reader) fail(reason string) {
	if r.err == nil {
		r.err = &MalformedPayloadError{Kind: r.kind, Offset: r.off, Reason: reason}
	}
}

func (r *reader) take(n int, field string) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || n > len(r.buf)-r.off {
		r.fail(fmt.Sprintf("%s: need %d bytes, have %d", field, n, len(r.buf)-r.off))
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) u8(field string) uint8 {
	b := r.take(1, field)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) u16(field string) uint16 {
	b := r.take(2, field)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (r *reader) u32(field string) uint32 {
	b := r.take(4, field)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *reader) i64(field string) int64 {
	b := r.take(8, field)
	if b == nil {
		return 0
	}
	return int64(binary.LittleEndian.Uint64(b))
}

func (r *reader) flag(field string) bool {
	switch r.u8(field) {
	case 0:
		return false
	case 1:
		return true
	default:
		r.off--
		r.fail(fmt.Sprintf("%s: flag must be 0 or 1", field))
		return false
	}
}

// bytes copies n bytes so decoded values never alias the source buffer.
// A zero length yields an empty, non-nil slice.
func (r *reader) bytes(n int, field string) Bytes {
	b := r.take(n, field)
	if r.err != nil {
		return nil
	}
	out := make(Bytes, n)
	copy(out, b)
	return out
}

func (r *reader) text(n int, field string) string {
	start := r.off
	b := r.take(n, field)
	if r.err != nil {
		return ""
	}
	if !utf8.Valid(b) {
		r.off = start
		r.fail(fmt.Sprintf("%s: invalid UTF-8", field))
		return ""
	}
	return string(b)
}

// optionalText maps a zero length to nil.
func (r *reader) optionalText(n int, field string) *string {
	if n == 0 || r.err != nil {
		return nil
	}
	s := r.text(n, field)
	if r.err != nil {
		return nil
	}
	return &s
}

// writer appends little-endian fields with a sticky error.
type writer struct {
	buf  []byte
	kind Kind
	err  error
}

func (w *writer) fail(reason string) {
	if w.err == nil {
		w.err = fmt.Errorf("encode %s: %s", w.kind, reason)
	}
}

func (w *writer) u8(v uint8) { w.buf = append(w.buf, v) }

func (w *writer) i64(v int64) { w.buf = binary.LittleEndian.AppendUint64(w.buf, uint64(v)) }

func (w *writer) u8Text(s, field string) {
	if len(s) > math.MaxUint8 {
		w.fail(fmt.Sprintf("%s: %d bytes exceed %d", field, len(s), math.MaxUint8))
		return
	}
	w.u8(uint8(len(s)))
	w.buf = append(w.buf, s...)
}

func (w *writer) u16Text(s, field string) {
	if len(s) > math.MaxUint16 {
		w.fail(fmt.Sprintf("%s: %d bytes exceed %d", field, len(s), math.MaxUint16))
		return
	}
	w.buf = binary.LittleEndian.AppendUint16(w.buf, uint16(len(s)))
	w.buf = append(w.buf, s...)
}

func (w *writer) u8Bytes(b []byte, field string) {
	if len(b) > math.MaxUint8 {
		w.fail(fmt.Sprintf("%s: %d bytes exceed %d", field, len(b), math.MaxUint8))
		return
	}
	w.u8(uint8(len(b)))
	w.buf = append(w.buf, b...)
}

func (w *writer) u32Bytes(b []byte, field string) {
	if uint64(len(b)) > math.MaxUint32 {
		w.fail(fmt.Sprintf("%s: %d bytes exceed %d", field, len(b), uint64(math.MaxUint32)))
		return
	}
	w.buf = binary.LittleEndian.AppendUint32(w.buf, uint32(len(b)))
	w.buf = append(w.buf, b...)
}
