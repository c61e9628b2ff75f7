package orchestrator

import "testing"

func TestTriggerCacheMatch(t *testing.T) {
	c := newTriggerCache("Nano")
	if !c.Match(`(?i)hey {{assistant_name}}`, []string{"hey Nano, what's up"}) {
		t.Fatal("expected pattern to match a message containing the assistant name")
	}
	if c.Match(`(?i)hey {{assistant_name}}`, []string{"hello there"}) {
		t.Fatal("expected pattern not to match an unrelated message")
	}
}

func TestTriggerCacheMatchAnyOfTexts(t *testing.T) {
	c := newTriggerCache("Nano")
	texts := []string{"irrelevant", "ok Nano help me"}
	if !c.Match(`{{assistant_name}}`, texts) {
		t.Fatal("expected a match against the second text in the batch")
	}
}

func TestTriggerCacheBadPatternNeverMatches(t *testing.T) {
	c := newTriggerCache("Nano")
	if c.Match(`(unclosed`, []string{"anything"}) {
		t.Fatal("expected an invalid regex to never match")
	}
}

func TestTriggerCacheCompilesOnce(t *testing.T) {
	c := newTriggerCache("Nano")
	pattern := `hello`
	c.Match(pattern, []string{"hello world"})
	re1 := c.compiled[pattern]
	c.Match(pattern, []string{"hello again"})
	re2 := c.compiled[pattern]
	if re1 != re2 {
		t.Fatal("expected the same compiled regexp to be reused across calls")
	}
}

func TestTriggerCacheSetAssistantNameRecompiles(t *testing.T) {
	c := newTriggerCache("Nano")
	pattern := `{{assistant_name}}`
	if !c.Match(pattern, []string{"hey Nano"}) {
		t.Fatal("expected initial match against Nano")
	}
	c.SetAssistantName("Robo")
	if c.Match(pattern, []string{"hey Nano"}) {
		t.Fatal("expected pattern to no longer match the old assistant name")
	}
	if !c.Match(pattern, []string{"hey Robo"}) {
		t.Fatal("expected pattern to match the new assistant name")
	}
}

func TestTriggerCacheSetAssistantNameNoopWhenUnchanged(t *testing.T) {
	c := newTriggerCache("Nano")
	c.Match(`{{assistant_name}}`, []string{"hey Nano"})
	before := c.compiled[`{{assistant_name}}`]
	c.SetAssistantName("Nano")
	after := c.compiled[`{{assistant_name}}`]
	if before != after {
		t.Fatal("expected cache to be untouched when the assistant name doesn't change")
	}
}
