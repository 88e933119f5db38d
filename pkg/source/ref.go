package source

import "strings"

// RefKind distinguishes tag refs from branch refs.
type RefKind string

const (
	RefTag    RefKind = "tag"
	RefBranch RefKind = "branch"
)

// RefDescriptor is the resolved form of a raw ref string.
type RefDescriptor struct {
	Kind RefKind
	Name string
}

// ResolveRef splits a raw ref into kind and name. Prefixed refs
// (refs/tags/, refs/heads/) resolve on their own; bare names need the
// explicit kind providers send in a separate ref_type field.
func ResolveRef(raw string, explicit RefKind) (RefDescriptor, error) {
	if name, ok := strings.CutPrefix(raw, "refs/tags/"); ok && name != "" {
		return RefDescriptor{Kind: RefTag, Name: name}, nil
	}
	if name, ok := strings.CutPrefix(raw, "refs/heads/"); ok && name != "" {
		return RefDescriptor{Kind: RefBranch, Name: name}, nil
	}
	if raw != "" && (explicit == RefTag || explicit == RefBranch) {
		return RefDescriptor{Kind: explicit, Name: raw}, nil
	}
	return RefDescriptor{}, ErrUnresolvableRef
}

// VersionLabel returns the version string a ref maps to: tags are used
// verbatim, branches get the dev- alias.
func (r RefDescriptor) VersionLabel() string {
	if r.Kind == RefBranch {
		return "dev-" + r.Name
	}
	return r.Name
}
