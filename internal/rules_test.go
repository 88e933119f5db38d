package internal

import "testing"

func newTestEngine(t *testing.T, strict bool, rules ...Rule) *RuleEngine {
	t.Helper()
	engine, err := NewRuleEngine(rules, strict, nil)
	if err != nil {
		t.Fatalf("new rule engine: %v", err)
	}
	return engine
}

// TestRuleEngineEvaluate tests that the rule engine correctly evaluates a simple rule.
func TestRuleEngineEvaluate(t *testing.T) {
	engine := newTestEngine(t, false,
		Rule{When: "event == \"version.created\"", Emit: "registry.version.created"},
		Rule{When: "event == \"version.deleted\"", Emit: "registry.version.deleted"},
	)

	event := Event{
		Provider: "gitea",
		Name:     EventVersionCreated,
		Package:  "acme/widgets",
		Version:  "1.4.0",
	}

	matches := engine.Evaluate(event)
	if len(matches) != 1 {
		t.Fatalf("expected 1 topic, got %d", len(matches))
	}
	if matches[0].Topic != "registry.version.created" {
		t.Fatalf("expected topic registry.version.created, got %q", matches[0].Topic)
	}
}

// TestRuleEngineEvaluateMissingField tests that a rule referencing a missing field does not match.
func TestRuleEngineEvaluateMissingField(t *testing.T) {
	engine := newTestEngine(t, false,
		Rule{When: "missing == true", Emit: "never"},
	)

	event := Event{
		Provider:   "github",
		Name:       EventVersionCreated,
		RawPayload: []byte(`{}`),
	}

	if matches := engine.Evaluate(event); len(matches) != 0 {
		t.Fatalf("expected no topics, got %d", len(matches))
	}
}

// TestRuleEngineWithDrivers tests that the rule engine carries the rule's driver list into the match.
func TestRuleEngineWithDrivers(t *testing.T) {
	engine := newTestEngine(t, false,
		Rule{When: "provider == \"gitlab\"", Emit: "registry.gitlab", Drivers: []string{"amqp", "http"}},
	)

	matches := engine.Evaluate(Event{Provider: "gitlab", Name: EventVersionCreated})
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
	if len(matches[0].Drivers) != 2 {
		t.Fatalf("expected 2 drivers, got %d", len(matches[0].Drivers))
	}
}

// TestRuleEngineJSONPathDot tests that JSONPath expressions resolve against the raw payload.
func TestRuleEngineJSONPathDot(t *testing.T) {
	engine := newTestEngine(t, false,
		Rule{When: "$.repository.private == false", Emit: "repo.public"},
	)

	event := Event{
		Provider:   "github",
		Name:       EventVersionCreated,
		RawPayload: []byte(`{"repository":{"private":false}}`),
	}

	if matches := engine.Evaluate(event); len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
}

// TestRuleEngineJSONPathIndex tests that JSONPath expressions with an index resolve correctly.
func TestRuleEngineJSONPathIndex(t *testing.T) {
	engine := newTestEngine(t, false,
		Rule{When: "$.commits[0].distinct == true", Emit: "commit.distinct"},
	)

	event := Event{
		Provider:   "github",
		Name:       EventVersionCreated,
		RawPayload: []byte(`{"commits":[{"distinct":true},{"distinct":false}]}`),
	}

	if matches := engine.Evaluate(event); len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
}

// TestRuleEngineBarePaths tests that bare dotted and indexed paths resolve through the flattened payload.
func TestRuleEngineBarePaths(t *testing.T) {
	engine := newTestEngine(t, false,
		Rule{When: "event == \"version.created\" && repository.private == false", Emit: "repo.public"},
		Rule{When: "commits[0].distinct == true", Emit: "commit.any"},
	)

	event := Event{
		Provider:   "github",
		Name:       EventVersionCreated,
		RawPayload: []byte(`{"repository":{"private":false},"commits":[{"distinct":true}]}`),
	}

	if matches := engine.Evaluate(event); len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
}

// TestRuleEngineStrictMissing tests that strict mode still treats a missing field as no match.
func TestRuleEngineStrictMissing(t *testing.T) {
	engine := newTestEngine(t, true,
		Rule{When: "missing_field == true", Emit: "never"},
	)

	event := Event{
		Provider:   "github",
		Name:       EventVersionCreated,
		RawPayload: []byte(`{"ref":"refs/tags/v1.0.0"}`),
	}

	if matches := engine.Evaluate(event); len(matches) != 0 {
		t.Fatalf("expected no matches in strict mode, got %d", len(matches))
	}
}

// TestRuleEngineFunctions tests the contains and like expression functions
// over arrays with several elements and over plain strings.
func TestRuleEngineFunctions(t *testing.T) {
	engine := newTestEngine(t, true,
		Rule{When: `contains(tags, "stable")`, Emit: "tag.stable"},
		Rule{When: `contains(tags, "nightly")`, Emit: "tag.nightly"},
		Rule{When: `contains(ref, "heads")`, Emit: "ref.heads"},
		Rule{When: `like(ref, "refs/heads/%")`, Emit: "branch.push"},
	)

	event := Event{
		Provider:   "gitea",
		Name:       EventVersionCreated,
		RawPayload: []byte(`{"tags":["stable","v1","latest"],"ref":"refs/heads/main"}`),
	}

	matches := engine.Evaluate(event)
	if len(matches) != 3 {
		t.Fatalf("expected 3 matches, got %d: %+v", len(matches), matches)
	}
	topics := map[string]bool{}
	for _, match := range matches {
		topics[match.Topic] = true
	}
	if !topics["tag.stable"] || !topics["ref.heads"] || !topics["branch.push"] {
		t.Fatalf("unexpected topics: %v", topics)
	}
}

// TestRuleEngineEnvelopeFields tests that the event envelope fields are visible to expressions.
func TestRuleEngineEnvelopeFields(t *testing.T) {
	engine := newTestEngine(t, false,
		Rule{When: `package == "acme/widgets" && version == "dev-main"`, Emit: "widgets.dev"},
	)

	event := Event{
		Provider: "bitbucket",
		Name:     EventVersionUpdated,
		Package:  "acme/widgets",
		Version:  "dev-main",
	}

	matches := engine.Evaluate(event)
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
	if matches[0].Topic != "widgets.dev" {
		t.Fatalf("expected topic widgets.dev, got %q", matches[0].Topic)
	}
}

// TestRuleEngineInvalidExpression tests that an unparseable rule fails engine construction.
func TestRuleEngineInvalidExpression(t *testing.T) {
	if _, err := NewRuleEngine([]Rule{{When: "event ==", Emit: "broken"}}, false, nil); err == nil {
		t.Fatalf("expected error for invalid expression")
	}
}
