package internal

import "testing"

// TestFlattenNestedMap tests that nested maps are flattened with dotted keys.
func TestFlattenNestedMap(t *testing.T) {
	flat := Flatten(map[string]interface{}{
		"repository": map[string]interface{}{
			"full_name": "acme/widgets",
			"owner": map[string]interface{}{
				"login": "acme",
			},
		},
	})

	if flat["repository.full_name"] != "acme/widgets" {
		t.Fatalf("expected repository.full_name, got %v", flat["repository.full_name"])
	}
	if flat["repository.owner.login"] != "acme" {
		t.Fatalf("expected repository.owner.login, got %v", flat["repository.owner.login"])
	}
}

// TestFlattenArrays tests that arrays produce indexed keys and keep the slice itself.
func TestFlattenArrays(t *testing.T) {
	flat := Flatten(map[string]interface{}{
		"commits": []interface{}{
			map[string]interface{}{"id": "abc"},
			map[string]interface{}{"id": "def"},
		},
	})

	if flat["commits[0].id"] != "abc" {
		t.Fatalf("expected commits[0].id, got %v", flat["commits[0].id"])
	}
	if flat["commits[1].id"] != "def" {
		t.Fatalf("expected commits[1].id, got %v", flat["commits[1].id"])
	}
	if _, ok := flat["commits"].([]interface{}); !ok {
		t.Fatalf("expected commits slice to be kept")
	}
}
