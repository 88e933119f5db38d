package source

import "testing"

// TestResolveRefPrefixes tests that prefixed refs resolve to the right kind and name.
func TestResolveRefPrefixes(t *testing.T) {
	ref, err := ResolveRef("refs/tags/1.2.3", "")
	if err != nil {
		t.Fatalf("resolve tag: %v", err)
	}
	if ref.Kind != RefTag || ref.Name != "1.2.3" {
		t.Fatalf("expected tag 1.2.3, got %+v", ref)
	}

	ref, err = ResolveRef("refs/heads/main", "")
	if err != nil {
		t.Fatalf("resolve branch: %v", err)
	}
	if ref.Kind != RefBranch || ref.Name != "main" {
		t.Fatalf("expected branch main, got %+v", ref)
	}
}

// TestResolveRefExplicitKind tests bare names paired with an explicit ref type.
func TestResolveRefExplicitKind(t *testing.T) {
	ref, err := ResolveRef("0.1.3", RefTag)
	if err != nil {
		t.Fatalf("resolve explicit tag: %v", err)
	}
	if ref.Kind != RefTag || ref.Name != "0.1.3" {
		t.Fatalf("expected tag 0.1.3, got %+v", ref)
	}
}

// TestResolveRefUnresolvable tests that bare names without a kind fail.
func TestResolveRefUnresolvable(t *testing.T) {
	if _, err := ResolveRef("0.1.3", ""); err != ErrUnresolvableRef {
		t.Fatalf("expected ErrUnresolvableRef, got %v", err)
	}
	if _, err := ResolveRef("", RefTag); err != ErrUnresolvableRef {
		t.Fatalf("expected ErrUnresolvableRef for empty ref, got %v", err)
	}
	if _, err := ResolveRef("refs/tags/", ""); err != ErrUnresolvableRef {
		t.Fatalf("expected ErrUnresolvableRef for empty tag name, got %v", err)
	}
}

// TestVersionLabel tests the tag-verbatim and dev-branch labeling policy.
func TestVersionLabel(t *testing.T) {
	if got := (RefDescriptor{Kind: RefTag, Name: "0.1.3"}).VersionLabel(); got != "0.1.3" {
		t.Fatalf("expected 0.1.3, got %q", got)
	}
	if got := (RefDescriptor{Kind: RefBranch, Name: "main"}).VersionLabel(); got != "dev-main" {
		t.Fatalf("expected dev-main, got %q", got)
	}
}
