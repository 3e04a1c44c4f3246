// Package artifact converts translations into plain documents for backends
// and encodes them as JSON or canonical CBOR.
package artifact

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
	"github.com/hokaccha/go-prettyjson"

	"github.com/deepnoodle-ai/lift/compiler"
	"github.com/deepnoodle-ai/lift/host"
)

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("artifact: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Document holds the translated routines of one listing.
type Document struct {
	Routines []Routine `json:"routines" cbor:"1,keyasint"`
}

// Routine is a host routine with its guest handler table.
type Routine struct {
	Name       string    `json:"name" cbor:"1,keyasint"`
	Filename   string    `json:"filename,omitempty" cbor:"2,keyasint,omitempty"`
	Version    string    `json:"version" cbor:"3,keyasint"`
	LocalCount int       `json:"local_count" cbor:"4,keyasint"`
	MaxDepth   int       `json:"max_depth" cbor:"5,keyasint"`
	Ops        []Op      `json:"ops" cbor:"6,keyasint"`
	Regions    []Region  `json:"regions,omitempty" cbor:"7,keyasint,omitempty"`
	Handlers   []Handler `json:"handlers,omitempty" cbor:"8,keyasint,omitempty"`
}

// Op is one host operation. A is the label, local index or stack depth the
// operation refers to; for Invoke, A and B are the argument and result
// counts and Arg parameterizes the helper.
type Op struct {
	Op     string `json:"op" cbor:"1,keyasint"`
	A      int    `json:"a,omitempty" cbor:"2,keyasint,omitempty"`
	B      int    `json:"b,omitempty" cbor:"3,keyasint,omitempty"`
	Arg    int    `json:"arg,omitempty" cbor:"4,keyasint,omitempty"`
	Helper string `json:"helper,omitempty" cbor:"5,keyasint,omitempty"`
	Name   string `json:"name,omitempty" cbor:"6,keyasint,omitempty"`
	Value  any    `json:"value,omitempty" cbor:"7,keyasint,omitempty"`
	Null   bool   `json:"null,omitempty" cbor:"8,keyasint,omitempty"`
	Origin int    `json:"origin" cbor:"9,keyasint"`
}

// Region is a protected range of host operations.
type Region struct {
	Start   int `json:"start" cbor:"1,keyasint"`
	End     int `json:"end" cbor:"2,keyasint"`
	Handler int `json:"handler" cbor:"3,keyasint"`
	Depth   int `json:"depth" cbor:"4,keyasint"`
}

// Handler is one guest handler region.
type Handler struct {
	ID         int    `json:"id" cbor:"1,keyasint"`
	Dialect    string `json:"dialect" cbor:"2,keyasint"`
	Start      int    `json:"start" cbor:"3,keyasint"`
	End        int    `json:"end" cbor:"4,keyasint"`
	Target     int    `json:"target" cbor:"5,keyasint"`
	Depth      int    `json:"depth" cbor:"6,keyasint"`
	EntryDepth int    `json:"entry_depth" cbor:"7,keyasint"`
	Lasti      bool   `json:"lasti,omitempty" cbor:"8,keyasint,omitempty"`
}

// New builds a document from translations. Nil entries, left by failed
// translations, are skipped.
func New(translations []*compiler.Translation) *Document {
	doc := &Document{Routines: []Routine{}}
	for _, t := range translations {
		if t == nil {
			continue
		}
		doc.Routines = append(doc.Routines, FromTranslation(t))
	}
	return doc
}

// FromTranslation converts one translation.
func FromTranslation(t *compiler.Translation) Routine {
	r := t.Routine
	out := Routine{
		Name:       r.Name,
		Filename:   t.Function.Filename(),
		Version:    t.Function.Version().String(),
		LocalCount: r.LocalCount,
		MaxDepth:   r.MaxDepth,
		Ops:        make([]Op, len(r.Ops)),
	}
	for i, o := range r.Ops {
		out.Ops[i] = fromOperation(o)
		if i < len(r.Origins) {
			out.Ops[i].Origin = r.Origins[i]
		}
	}
	for _, region := range r.Regions {
		out.Regions = append(out.Regions, Region(region))
	}
	for _, h := range t.Regions {
		out.Handlers = append(out.Handlers, Handler{
			ID:         h.ID,
			Dialect:    h.Dialect.String(),
			Start:      h.Start,
			End:        h.End,
			Target:     h.Handler,
			Depth:      h.Depth,
			EntryDepth: h.EntryDepth,
			Lasti:      h.Lasti,
		})
	}
	return out
}

func fromOperation(o host.Operation) Op {
	out := Op{Op: o.Kind().String()}
	switch o := o.(type) {
	case host.Label:
		out.A = o.ID
	case host.Const:
		if o.Value == host.Null {
			out.Null = true
		} else {
			out.Value = constant(o.Value)
		}
	case host.LoadLocal:
		out.A = o.Index
	case host.StoreLocal:
		out.A = o.Index
	case host.DeleteLocal:
		out.A = o.Index
	case host.LoadGlobal:
		out.Name = o.Name
	case host.StoreGlobal:
		out.Name = o.Name
	case host.Pick:
		out.A = o.Depth
	case host.Swap:
		out.A = o.Depth
	case host.Invoke:
		out.Helper = string(o.Helper)
		out.A = o.Args
		out.B = o.Results
		out.Arg = o.Arg
		out.Name = o.Name
	case host.Goto:
		out.A = o.Label
	case host.IfTrue:
		out.A = o.Label
	case host.IfFalse:
		out.A = o.Label
	}
	return out
}

func constant(v any) any {
	switch v := v.(type) {
	case nil, bool, int64, float64, string:
		return v
	case int:
		return int64(v)
	case []any:
		items := make([]any, len(v))
		for i, item := range v {
			items[i] = constant(item)
		}
		return items
	}
	return fmt.Sprint(v)
}

// ToRoutine rebuilds a host routine from its document form.
func (r Routine) ToRoutine() (*host.Routine, error) {
	out := &host.Routine{
		Name:       r.Name,
		LocalCount: r.LocalCount,
		MaxDepth:   r.MaxDepth,
		Ops:        make([]host.Operation, len(r.Ops)),
		Origins:    make([]int, len(r.Ops)),
	}
	for i, o := range r.Ops {
		op, err := o.operation()
		if err != nil {
			return nil, fmt.Errorf("routine %s: op %d: %w", r.Name, i, err)
		}
		out.Ops[i] = op
		out.Origins[i] = o.Origin
	}
	for _, region := range r.Regions {
		out.Regions = append(out.Regions, host.ProtectedRegion(region))
	}
	return out, nil
}

func (o Op) operation() (host.Operation, error) {
	switch o.Op {
	case "Label":
		return host.Label{ID: o.A}, nil
	case "Const":
		if o.Null {
			return host.Const{Value: host.Null}, nil
		}
		return host.Const{Value: decodedConstant(o.Value)}, nil
	case "LoadLocal":
		return host.LoadLocal{Index: o.A}, nil
	case "StoreLocal":
		return host.StoreLocal{Index: o.A}, nil
	case "DeleteLocal":
		return host.DeleteLocal{Index: o.A}, nil
	case "LoadGlobal":
		return host.LoadGlobal{Name: o.Name}, nil
	case "StoreGlobal":
		return host.StoreGlobal{Name: o.Name}, nil
	case "Pop":
		return host.Pop{}, nil
	case "Dup":
		return host.Dup{}, nil
	case "Pick":
		return host.Pick{Depth: o.A}, nil
	case "Swap":
		return host.Swap{Depth: o.A}, nil
	case "Invoke":
		return host.Invoke{
			Helper:  host.Helper(o.Helper),
			Args:    o.A,
			Results: o.B,
			Arg:     o.Arg,
			Name:    o.Name,
		}, nil
	case "Goto":
		return host.Goto{Label: o.A}, nil
	case "IfTrue":
		return host.IfTrue{Label: o.A}, nil
	case "IfFalse":
		return host.IfFalse{Label: o.A}, nil
	case "Return":
		return host.Return{}, nil
	case "Throw":
		return host.Throw{}, nil
	case "GetHandled":
		return host.GetHandled{}, nil
	case "SetHandled":
		return host.SetHandled{}, nil
	}
	return nil, fmt.Errorf("unknown operation %q", o.Op)
}

// decodedConstant undoes the integer widening of generic decoders.
func decodedConstant(v any) any {
	switch v := v.(type) {
	case uint64:
		return int64(v)
	case []any:
		items := make([]any, len(v))
		for i, item := range v {
			items[i] = decodedConstant(item)
		}
		return items
	}
	return v
}

// MarshalCBOR encodes doc in canonical CBOR. Equal documents encode to equal
// bytes.
func MarshalCBOR(doc *Document) ([]byte, error) {
	return cborEncMode.Marshal(doc)
}

// UnmarshalCBOR decodes a document produced by MarshalCBOR.
func UnmarshalCBOR(data []byte) (*Document, error) {
	var doc Document
	if err := cbor.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("artifact: unmarshal document: %w", err)
	}
	return &doc, nil
}

// MarshalJSON encodes doc as indented JSON, colorized when color is set.
func MarshalJSON(doc *Document, color bool) ([]byte, error) {
	if !color {
		return json.MarshalIndent(doc, "", "  ")
	}
	return prettyjson.Marshal(doc)
}

// Write encodes doc to w in the given format: "json" or "cbor".
func Write(w io.Writer, doc *Document, format string, color bool) error {
	var data []byte
	var err error
	switch format {
	case "json":
		data, err = MarshalJSON(doc, color)
		if err == nil {
			data = append(data, '\n')
		}
	case "cbor":
		data, err = MarshalCBOR(doc)
	default:
		return fmt.Errorf("unknown artifact format: %s", format)
	}
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}
