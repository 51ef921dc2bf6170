package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/featherbot/featherbot/internal/logging"
	"github.com/featherbot/featherbot/pkg/providers"
)

var thinkTagRe = regexp.MustCompile(`(?s)<think>.*?</think>\s*`)

// Fact is a single self-contained statement pulled from a conversation.
type Fact struct {
	Fact     string `json:"fact"`
	Category string `json:"category"`
}

type consolidationAction struct {
	Action  string `json:"action"` // ADD, UPDATE, DELETE, NOOP
	FactID  string `json:"fact_id"`
	NewFact string `json:"new_fact"`
}

// Extractor runs a Mem0-style fact extraction and consolidation pipeline
// against a KnowledgeStore. This is optional semantic enrichment layered
// on top of the idle-debounce MemoryExtractor in idle.go.
type Extractor struct {
	provider providers.LLMProvider
	model    string
	store    *KnowledgeStore
}

func NewExtractor(provider providers.LLMProvider, model string, store *KnowledgeStore) *Extractor {
	return &Extractor{provider: provider, model: model, store: store}
}

const extractionPrompt = `Extract key facts about the user from this conversation. Focus on:
- Biographical information (name, location, occupation, plans)
- Preferences and opinions
- Tasks, deadlines, goals
- Relationships (people mentioned)
- Important context (events, decisions, states)

Return a JSON array of facts. Each fact should be a self-contained statement.
If no meaningful facts can be extracted, return an empty array [].

Categories: biographical, preference, task, relationship, contextual

CONVERSATION:
User: %s
Assistant: %s

Return ONLY valid JSON, no markdown fences or explanation.`

// ExtractAndConsolidate extracts facts from a conversation turn and
// merges them into the store (ADD new, UPDATE/DELETE/NOOP against
// similar existing facts).
func (e *Extractor) ExtractAndConsolidate(ctx context.Context, userMsg, assistantMsg, sessionKey string) {
	facts, err := e.extractFacts(ctx, userMsg, assistantMsg)
	if err != nil {
		logging.Component("memory").Warn("knowledge extraction failed", "operation", "extract_and_consolidate",
			"session_key", sessionKey, "error", err)
		return
	}
	if len(facts) == 0 {
		return
	}

	logging.Component("memory").Info("extracted facts from conversation", "operation", "extract_and_consolidate",
		"count", len(facts), "session_key", sessionKey)

	for _, fact := range facts {
		if err := e.consolidateFact(ctx, fact); err != nil {
			logging.Component("memory").Warn("failed to consolidate fact", "operation", "consolidate_fact", "error", err)
		}
	}
}

func (e *Extractor) extractFacts(ctx context.Context, userMsg, assistantMsg string) ([]Fact, error) {
	if len(userMsg) < 10 {
		return nil, nil
	}

	prompt := fmt.Sprintf(extractionPrompt, userMsg, truncate(assistantMsg, 2000))
	resp, err := e.provider.Chat(ctx, []providers.Message{{Role: "user", Content: prompt}}, nil, e.model, map[string]interface{}{
		"max_tokens": 1024, "temperature": 0.1,
	})
	if err != nil {
		return nil, fmt.Errorf("LLM extraction call: %w", err)
	}

	content := cleanJSONFence(resp.Content)
	var facts []Fact
	if err := json.Unmarshal([]byte(content), &facts); err != nil {
		var single Fact
		if err2 := json.Unmarshal([]byte(content), &single); err2 == nil && single.Fact != "" {
			return []Fact{single}, nil
		}
		return nil, fmt.Errorf("parse extracted facts: %w (response: %s)", err, truncate(content, 200))
	}
	return facts, nil
}

func (e *Extractor) consolidateFact(ctx context.Context, fact Fact) error {
	existing, err := e.store.SearchKnowledge(ctx, fact.Fact, 3)
	if err != nil {
		return e.store.IndexKnowledge(ctx, "", fact.Fact, fact.Category, IndexOpts{})
	}

	var similar []Result
	for _, r := range existing {
		if r.Score > 0.8 {
			similar = append(similar, r)
		}
	}
	if len(similar) == 0 {
		return e.store.IndexKnowledge(ctx, "", fact.Fact, fact.Category, IndexOpts{})
	}

	action, err := e.decideAction(ctx, fact, similar)
	if err != nil {
		logging.Component("memory").Warn("consolidation decision failed, adding as new",
			"operation", "consolidate_fact", "error", err)
		return e.store.IndexKnowledge(ctx, "", fact.Fact, fact.Category, IndexOpts{})
	}

	switch action.Action {
	case "UPDATE":
		if action.FactID != "" {
			_ = e.store.DeleteKnowledge(ctx, action.FactID)
		}
		newFact := action.NewFact
		if newFact == "" {
			newFact = fact.Fact
		}
		return e.store.IndexKnowledge(ctx, "", newFact, fact.Category, IndexOpts{})
	case "DELETE":
		if action.FactID != "" {
			return e.store.DeleteKnowledge(ctx, action.FactID)
		}
		return nil
	case "NOOP":
		return nil
	default:
		return e.store.IndexKnowledge(ctx, "", fact.Fact, fact.Category, IndexOpts{})
	}
}

const consolidationPrompt = `You are managing a knowledge base about a user. A new fact has been extracted from a conversation, and similar existing facts were found.

NEW FACT: %s

EXISTING SIMILAR FACTS:
%s

Decide what to do:
- UPDATE: The new fact updates/replaces an existing one. Return the merged fact.
- DELETE: An existing fact is now obsolete due to the new fact.
- NOOP: The new fact is essentially the same as an existing one.
- ADD: The new fact is related but distinct from existing facts.

Return ONLY valid JSON:
{"action": "UPDATE|DELETE|NOOP|ADD", "fact_id": "id_of_existing_fact_if_applicable", "new_fact": "merged fact text for UPDATE"}
`

func (e *Extractor) decideAction(ctx context.Context, fact Fact, similar []Result) (*consolidationAction, error) {
	var existingLines []string
	for _, s := range similar {
		existingLines = append(existingLines, fmt.Sprintf("- [ID: %s] %s (score: %.2f)", s.ID, s.Content, s.Score))
	}

	prompt := fmt.Sprintf(consolidationPrompt, fact.Fact, strings.Join(existingLines, "\n"))
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	resp, err := e.provider.Chat(ctx, []providers.Message{{Role: "user", Content: prompt}}, nil, e.model, map[string]interface{}{
		"max_tokens": 256, "temperature": 0.1,
	})
	if err != nil {
		return nil, fmt.Errorf("consolidation LLM call: %w", err)
	}

	var action consolidationAction
	if err := json.Unmarshal([]byte(cleanJSONFence(resp.Content)), &action); err != nil {
		return nil, fmt.Errorf("parse consolidation action: %w", err)
	}
	return &action, nil
}

func cleanJSONFence(s string) string {
	s = strings.TrimSpace(s)
	s = thinkTagRe.ReplaceAllString(s, "")
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func truncate(s string, maxRunes int) string {
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	return string(runes[:maxRunes]) + "..."
}
