package resolver

import (
	"encoding/json"

	"github.com/cockroachdb/errors"

	"github.com/moveonly/sigil/capability"
	"github.com/moveonly/sigil/conformance"
	"github.com/moveonly/sigil/requirement"
)

// encodedSignature is the persisted form of a Signature.
type encodedSignature struct {
	Decl         string                `json:"decl"`
	Fingerprint  string                `json:"fingerprint"`
	Requirements []requirement.Encoded `json:"requirements"`
	Conformances []encodedConformance  `json:"conformances,omitempty"`
}

type encodedConformance struct {
	Capability  string   `json:"capability"`
	Conditions  []string `json:"conditions,omitempty"` // generic parameter names
	Synthesized bool     `json:"synthesized,omitempty"`
}

// EncodeSignature serializes a signature for the persistent cache.
func EncodeSignature(sig *Signature) ([]byte, error) {
	enc := encodedSignature{
		Decl:         sig.Decl,
		Fingerprint:  sig.Fingerprint,
		Requirements: sig.Requirements.Encode(),
	}
	for _, c := range sig.Conformances {
		ec := encodedConformance{Capability: c.Capability.Name(), Synthesized: c.Synthesized}
		for _, cond := range c.Conditions {
			ec.Conditions = append(ec.Conditions, cond.Subject.Root)
		}
		enc.Conformances = append(enc.Conformances, ec)
	}
	return json.Marshal(enc)
}

// DecodeSignature rebuilds a signature against the registry the cache was
// written with.
func DecodeSignature(payload []byte, reg *capability.Registry) (*Signature, error) {
	var enc encodedSignature
	if err := json.Unmarshal(payload, &enc); err != nil {
		return nil, errors.Wrap(err, "decoding cached signature")
	}
	set, err := requirement.Decode(enc.Decl, enc.Requirements, reg)
	if err != nil {
		return nil, err
	}
	sig := &Signature{Decl: enc.Decl, Requirements: set, Fingerprint: enc.Fingerprint}
	for _, ec := range enc.Conformances {
		cap, ok := reg.Lookup(ec.Capability)
		if !ok {
			return nil, errors.Newf("cached signature for %s names unknown capability %s", enc.Decl, ec.Capability)
		}
		c := conformance.Conformance{Decl: enc.Decl, Capability: cap, Synthesized: ec.Synthesized}
		for _, param := range ec.Conditions {
			c.Conditions = append(c.Conditions,
				requirement.Conforms(requirement.TypeParam(param), cap, requirement.OriginExplicit))
		}
		sig.Conformances = append(sig.Conformances, c)
	}
	return sig, nil
}
