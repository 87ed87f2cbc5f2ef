// Package mootext is the reference ObjectCodec implementation: a small,
// line-oriented grammar for MOO object dumps. It is not the canonical MOO
// parser/pretty-printer (that remains an external collaborator per spec
// §1) — it exists so the engine is runnable end to end without one.
//
// Grammar:
//
//	object <name>
//	verb <alias1> <alias2> ...
//	  <body line>
//	  <body line>
//	endverb
//	property <name> = <value>
//	endobject
package mootext

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/biscuitwizard/moovcs/internal/codec"
	"github.com/biscuitwizard/moovcs/internal/vcserr"
	"github.com/biscuitwizard/moovcs/internal/vcstypes"
)

type Codec struct{}

func New() *Codec { return &Codec{} }

func (Codec) Parse(text string) (*codec.ParsedObject, error) {
	lines := strings.Split(text, "\n")
	obj := &codec.ParsedObject{}

	var i int
	for i < len(lines) && strings.TrimSpace(lines[i]) == "" {
		i++
	}
	if i >= len(lines) {
		return nil, vcserr.New("mootext.Parse", vcserr.InvalidInput, "empty object dump")
	}
	header := strings.TrimSpace(lines[i])
	name, ok := strings.CutPrefix(header, "object ")
	if !ok {
		return nil, vcserr.New("mootext.Parse", vcserr.InvalidInput, "expected 'object <name>' header, got: "+header)
	}
	obj.Name = strings.TrimSpace(name)
	i++

	for i < len(lines) {
		line := strings.TrimSpace(lines[i])
		switch {
		case line == "":
			i++
		case line == "endobject":
			return obj, nil
		case strings.HasPrefix(line, "verb "):
			aliases := strings.Fields(strings.TrimPrefix(line, "verb "))
			if len(aliases) == 0 {
				return nil, vcserr.New("mootext.Parse", vcserr.InvalidInput, "verb with no aliases")
			}
			i++
			var body []string
			for i < len(lines) && strings.TrimSpace(lines[i]) != "endverb" {
				body = append(body, lines[i])
				i++
			}
			if i >= len(lines) {
				return nil, vcserr.New("mootext.Parse", vcserr.InvalidInput, "unterminated verb block (missing endverb)")
			}
			obj.Verbs = append(obj.Verbs, codec.Verb{Aliases: aliases, Body: strings.Join(body, "\n")})
			i++ // consume endverb
		case strings.HasPrefix(line, "property "):
			rest := strings.TrimPrefix(line, "property ")
			parts := strings.SplitN(rest, "=", 2)
			if len(parts) != 2 {
				return nil, vcserr.New("mootext.Parse", vcserr.InvalidInput, "malformed property line: "+line)
			}
			obj.Properties = append(obj.Properties, codec.Property{
				Name:  strings.TrimSpace(parts[0]),
				Value: strings.TrimSpace(parts[1]),
			})
			i++
		default:
			return nil, vcserr.New("mootext.Parse", vcserr.InvalidInput, "unexpected line: "+line)
		}
	}
	return nil, vcserr.New("mootext.Parse", vcserr.InvalidInput, "missing endobject")
}

// Serialize re-emits verbs/properties in a fixed sort order so that
// semantically-identical input always produces byte-identical canonical
// text, which Digest then hashes (spec §9's canonicalization requirement).
func (Codec) Serialize(obj *codec.ParsedObject) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "object %s\n", obj.Name)

	verbs := append([]codec.Verb(nil), obj.Verbs...)
	sort.Slice(verbs, func(i, j int) bool {
		return strings.Join(verbs[i].Aliases, " ") < strings.Join(verbs[j].Aliases, " ")
	})
	for _, v := range verbs {
		fmt.Fprintf(&b, "verb %s\n", strings.Join(v.Aliases, " "))
		if v.Body != "" {
			b.WriteString(v.Body)
			b.WriteByte('\n')
		}
		b.WriteString("endverb\n")
	}

	props := append([]codec.Property(nil), obj.Properties...)
	sort.Slice(props, func(i, j int) bool { return props[i].Name < props[j].Name })
	for _, p := range props {
		fmt.Fprintf(&b, "property %s = %s\n", p.Name, p.Value)
	}

	b.WriteString("endobject\n")
	return b.String(), nil
}

func (Codec) Digest(canonical string) vcstypes.Digest {
	sum := sha256.Sum256([]byte(canonical))
	return vcstypes.Digest(hex.EncodeToString(sum[:]))
}
