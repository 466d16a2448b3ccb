// Package insight builds the instruction fragment injected into the
// external conversational agent's system prompt.
package insight

import (
	"fmt"
	"strings"
)

// BuildSystemPrompt produces the instruction block bounding how the agent
// may surface the loaded insights. It is a pure function of injector state:
// no I/O, deterministic output, and the empty string when no insights are
// loaded (including before Initialize). This text is the sole channel by
// which the engine influences the agent; the hard gates still apply on top.
func (inj *Injector) BuildSystemPrompt() string {
	inj.mu.Lock()
	defer inj.mu.Unlock()

	if len(inj.insights) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("\n<INSIGHT GUIDANCE>\n")
	fmt.Fprintf(&b, "You have %d conversation-ready insight(s) about this user, listed in priority order:\n", len(inj.insights))
	for i, ins := range inj.insights {
		fmt.Fprintf(&b, "%d. [%s] %s\n", i+1, ins.EmotionalTone, ins.Summary)
	}
	b.WriteString("Surface AT MOST 1-2 of these insights during the whole session, and only when one fits the conversation naturally.\n")
	b.WriteString("- Prefer the suggested timing; a natural pause beats an interruption.\n")
	b.WriteString("- NEVER surface an insight when the user's mood is low.\n")
	b.WriteString("- If the user deflects or changes the subject, stop immediately and never repeat that insight.\n")
	b.WriteString("- Offer the insight as an observation, not a diagnosis.\n")
	b.WriteString("</INSIGHT GUIDANCE>\n")

	return b.String()
}
