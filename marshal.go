// Copyright 2024 The nvcfg Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package nvcfg

import (
	"strconv"
	"strings"
)

// uint8StringPromoteThreshold is the declared element count above which an
// unbroken (no comma in the source text) uint8 array member is promoted
// wholesale to an ASCII fixed string instead of being read token-by-token.
const uint8StringPromoteThreshold = 20

// MarshalItem decodes shape against members (the schema's declared layout)
// and returns the ordered per-member Params plus any diagnostics raised
// along the way. members == nil means no schema entry exists for this item;
// the item is still packed best-effort as an implicit single uint8 member
// so callers always get bytes to write, with a SchemaError noting the gap.
func MarshalItem(members []Member, shape ValueShape, encoding string) (Params, []Diagnostic) {
	diags := &diagList{}
	if len(members) == 0 {
		return marshalSchemaless(shape, encoding, diags)
	}
	if shape.IsList() {
		return marshalStructured(members, shape.Members, encoding, diags)
	}
	return marshalScalar(members, shape.Scalar, encoding, diags)
}

func marshalSchemaless(shape ValueShape, encoding string, diags *diagList) (Params, []Diagnostic) {
	if shape.IsList() {
		if len(shape.Members) > 1 {
			diags.addf(SchemaError, "missing schema for item with multiple value elements")
			return nil, diags.diagnostics()
		}
		if len(shape.Members) == 1 {
			diags.addf(SchemaError, "missing schema!")
			c := shape.Members[0]
			cursor := 0
			p := marshalUint8Member(Member{Name: c.Tag, Type: "uint8", Size: 1}, tokenize(c.Content), &cursor, encoding)
			p.Val = c.Content
			p.Present = true
			diags.extend(p.Errors)
			return Params{p}, diags.diagnostics()
		}
		return nil, diags.diagnostics()
	}
	tokens := tokenize(shape.Scalar)
	if len(tokens) > 1 {
		diags.addf(SchemaError, "missing schema for item with multiple value elements")
		return nil, diags.diagnostics()
	}
	diags.addf(SchemaError, "missing schema!")
	cursor := 0
	p := marshalUint8Member(Member{Type: "uint8", Size: 1}, tokens, &cursor, encoding)
	p.Val = shape.Scalar
	diags.extend(p.Errors)
	return Params{p}, diags.diagnostics()
}

// marshalScalar walks members in order against a single flat token stream
// drawn from raw, each member consuming exactly Size tokens (with the
// uint8-promotion exception below).
func marshalScalar(members []Member, raw string, encoding string, diags *diagList) (Params, []Diagnostic) {
	tokens := tokenize(raw)
	hasComma := strings.Contains(raw, ",")
	cursor := 0
	params := make(Params, 0, len(members))

	for _, m := range members {
		var p Param
		switch {
		case strings.EqualFold(m.Type, "uint8") && m.Size > uint8StringPromoteThreshold && !hasComma:
			val := raw
			present := false
			if cursor < len(tokens) {
				val = tokens[cursor]
				cursor++
				present = true
			}
			p = Param{Member: m, Val: val, Data: PackStringFixed(val, m.Size), Present: present}
		case strings.EqualFold(m.Type, "string"):
			val := ""
			present := cursor < len(tokens)
			if present {
				val = tokens[cursor]
				cursor++
			} else {
				diags.addf(LengthMismatch, "missing value for string member %q", m.Name)
			}
			p = Param{Member: m, Val: val, Data: PackStringFixed(val, m.Size), Present: present}
		case strings.EqualFold(m.Type, "uint8"):
			p = marshalUint8Member(m, tokens, &cursor, encoding)
		default:
			p = marshalIntMember(m, tokens, &cursor, encoding)
		}
		diags.extend(aggregateErrors(Params{p}))
		params = append(params, p)
	}

	if cursor != len(tokens) {
		diags.addf(LengthMismatch, "mismatch between %d declared and %d defined value elements", cursor, len(tokens))
	}
	return params, diags.diagnostics()
}

// marshalUint8Member implements the uint8-overload rule: each token is
// first tried as a number (packed as one byte); when the member's only
// token fails to parse as a number, the whole member becomes a fixed ASCII
// string fill instead. A non-numeric token sharing the member with any
// other token is a schema violation ("only one string element allowed"),
// reported but still packed best-effort (numeric tokens as their byte,
// non-numeric as a zero byte).
func marshalUint8Member(m Member, tokens []string, cursor *int, encoding string) Param {
	p := Param{Member: m}
	n := m.Size
	if n <= 0 {
		n = 1
	}
	avail := len(tokens) - *cursor
	take := n
	if take > avail {
		take = avail
	}
	toks := append([]string(nil), tokens[*cursor:*cursor+take]...)
	*cursor += take
	p.Present = take > 0

	type tokenResult struct {
		text  string
		isStr bool
		byteV byte
	}
	results := make([]tokenResult, 0, len(toks))
	stringCount := 0
	for _, t := range toks {
		v, ok := parseIntToken(t, encoding)
		if !ok {
			stringCount++
			results = append(results, tokenResult{text: t, isStr: true})
			continue
		}
		b, err := PackUint(8, v)
		bv := byte(0)
		if err != nil {
			p.Errors = append(p.Errors, err.(Diagnostic))
		} else {
			bv = b[0]
		}
		results = append(results, tokenResult{text: t, byteV: bv})
	}

	if stringCount > 1 || (stringCount == 1 && len(results) > 1) {
		p.Errors = append(p.Errors, newDiag(SchemaError, "only one string element allowed"))
	}

	var buf []byte
	if stringCount == 1 && len(results) == 1 {
		buf = PackStringFixed(results[0].text, n)
	} else {
		for _, r := range results {
			if r.isStr {
				buf = append(buf, 0)
			} else {
				buf = append(buf, r.byteV)
			}
		}
	}
	if len(buf) < n {
		buf = append(buf, make([]byte, n-len(buf))...)
	} else if len(buf) > n {
		buf = buf[:n]
	}
	p.Data = buf

	vals := make([]string, len(results))
	for i, r := range results {
		vals[i] = r.text
	}
	p.Val = strings.Join(vals, ",")
	return p
}

// marshalIntMember packs a declared-size run of tokens against a primitive
// integer member type. A token that fails to parse is reported as a
// TokenError and filled with zero bytes rather than aborting the member.
func marshalIntMember(m Member, tokens []string, cursor *int, encoding string) Param {
	p := Param{Member: m}
	bits := bitsForType(m.Type)
	if bits == 0 {
		p.Errors = append(p.Errors, newDiag(TypeError, "unknown member type %q", m.Type))
		return p
	}
	n := m.Size
	if n <= 0 {
		n = 1
	}
	avail := len(tokens) - *cursor
	take := n
	if take > avail {
		take = avail
	}
	toks := tokens[*cursor : *cursor+take]
	*cursor += take
	p.Present = take > 0

	stride := bits / 8
	var buf []byte
	vals := make([]string, 0, len(toks))
	for _, t := range toks {
		vals = append(vals, t)
		v, ok := parseIntToken(t, encoding)
		if !ok {
			p.Errors = append(p.Errors, newDiag(TokenError, "parameter %q is not a number", t))
			buf = append(buf, make([]byte, stride)...)
			continue
		}
		var (
			b   []byte
			err error
		)
		if isSignedType(m.Type) {
			b, err = PackInt(bits, v)
		} else {
			b, err = PackUint(bits, v)
		}
		if err != nil {
			p.Errors = append(p.Errors, err.(Diagnostic))
			b = make([]byte, stride)
		}
		buf = append(buf, b...)
	}
	want := n * stride
	if len(buf) < want {
		buf = append(buf, make([]byte, want-len(buf))...)
	} else if len(buf) > want {
		buf = buf[:want]
	}
	p.Data = buf
	p.Val = strings.Join(vals, ",")
	return p
}

// marshalStructured marshals a hash-shaped value: each member is matched to
// a NamedChild by tag name (case-insensitive), falling back to positional
// order when no name match exists, and decoded as its own single-member
// scalar value.
func marshalStructured(members []Member, children []NamedChild, encoding string, diags *diagList) (Params, []Diagnostic) {
	params := make(Params, 0, len(members))
	for i, m := range members {
		content := ""
		found := false
		if m.Name != "" {
			for _, c := range children {
				if strings.EqualFold(c.Tag, m.Name) {
					content, found = c.Content, true
					break
				}
			}
		}
		if !found && i < len(children) {
			content, found = children[i].Content, true
		}
		if !found {
			diags.addf(LengthMismatch, "no value supplied for member %q", m.Name)
		}
		p := marshalSingleMemberScalar(m, content, encoding)
		p.Present = found
		diags.extend(p.Errors)
		params = append(params, p)
	}
	return params, diags.diagnostics()
}

func marshalSingleMemberScalar(m Member, content string, encoding string) Param {
	local := &diagList{}
	params, all := marshalScalar([]Member{m}, content, encoding, local)
	if len(params) == 0 {
		return Param{Member: m, Errors: all}
	}
	p := params[0]
	p.Errors = all
	return p
}

// parseIntToken parses t as an integer: a "0x"/"0X"-prefixed token is always
// hex; otherwise hex when encoding == "hex", decimal (optionally signed)
// otherwise.
func parseIntToken(t string, encoding string) (int64, bool) {
	t = strings.TrimSpace(t)
	if t == "" {
		return 0, false
	}
	if strings.HasPrefix(t, "0x") || strings.HasPrefix(t, "0X") {
		v, err := strconv.ParseInt(t[2:], 16, 64)
		return v, err == nil
	}
	if strings.EqualFold(encoding, "hex") {
		v, err := strconv.ParseInt(t, 16, 64)
		return v, err == nil
	}
	v, err := strconv.ParseInt(t, 10, 64)
	return v, err == nil
}

// trimTrailingAbsent drops trailing Params whose Present flag is false, the
// rule variable-size EFS items use so an item need not supply every
// declared trailing member. This is only valid when Present forms a
// monotone prefix (1...10...0): a present member after an absent one is a
// hole, not a missing tail, so params is returned unchanged along with a
// diagnostic rather than silently trimmed.
func trimTrailingAbsent(params Params) (Params, []Diagnostic) {
	end := len(params)
	for end > 0 && !params[end-1].Present {
		end--
	}
	for i := 0; i < end; i++ {
		if !params[i].Present {
			return params, []Diagnostic{newDiag(LengthMismatch,
				"non-monotone present flags for variable-size item: member %d absent before a later present member", i)}
		}
	}
	return params[:end], nil
}

// aggregateErrors flattens every Param's per-token diagnostics into a single
// list, prefixing each with the owning member's name (or type, if
// unnamed) so a printed error always names which field it came from.
func aggregateErrors(params Params) []Diagnostic {
	var out []Diagnostic
	for _, p := range params {
		for _, e := range p.Errors {
			name := p.Member.Name
			if name == "" {
				name = p.Member.Type
			}
			out = append(out, newDiag(e.Kind, "error in %s: %s", name, e.Message))
		}
	}
	return out
}
