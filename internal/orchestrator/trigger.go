package orchestrator

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// assistantNamePlaceholder appears in a stored trigger_pattern in place of
// the configured assistant name, so a hot-reloaded ASSISTANT_NAME takes
// effect without rewriting every registered group's pattern.
const assistantNamePlaceholder = "{{assistant_name}}"

// triggerCache compiles each distinct trigger_pattern string at most once,
// resolving bindings once rather than per message, and recompiles only
// when SetAssistantName changes the substitution target.
type triggerCache struct {
	mu            sync.Mutex
	assistantName string
	compiled      map[string]*regexp.Regexp
}

func newTriggerCache(assistantName string) *triggerCache {
	return &triggerCache{assistantName: assistantName, compiled: make(map[string]*regexp.Regexp)}
}

// SetAssistantName updates the substitution target and drops the compiled
// cache, so patterns containing the placeholder recompile against the new
// name on next use (config hot-reload path).
func (c *triggerCache) SetAssistantName(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if name == c.assistantName {
		return
	}
	c.assistantName = name
	c.compiled = make(map[string]*regexp.Regexp)
}

// Match reports whether any of texts matches pattern. A pattern that fails
// to compile never matches; the compile error is neither logged nor cached,
// so a bad pattern is compiled again on every call.
func (c *triggerCache) Match(pattern string, texts []string) bool {
	re, err := c.get(pattern)
	if err != nil {
		return false
	}
	for _, t := range texts {
		if re.MatchString(t) {
			return true
		}
	}
	return false
}

func (c *triggerCache) get(pattern string) (*regexp.Regexp, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if re, ok := c.compiled[pattern]; ok {
		return re, nil
	}
	resolved := strings.ReplaceAll(pattern, assistantNamePlaceholder, regexp.QuoteMeta(c.assistantName))
	re, err := regexp.Compile(resolved)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: compile trigger pattern %q: %w", pattern, err)
	}
	c.compiled[pattern] = re
	return re, nil
}
