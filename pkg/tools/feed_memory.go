package tools

import (
	"context"
	"fmt"

	"github.com/featherbot/featherbot/pkg/memory"
)

// FeedMemoryTool lets the agent manually commit a fact to the knowledge
// store, bypassing the extraction pipeline — useful when the user
// explicitly says "remember that...".
type FeedMemoryTool struct {
	store *memory.KnowledgeStore
}

func NewFeedMemoryTool(store *memory.KnowledgeStore) *FeedMemoryTool {
	return &FeedMemoryTool{store: store}
}

func (t *FeedMemoryTool) Name() string { return "feed_memory" }

func (t *FeedMemoryTool) Description() string {
	return "Record a fact directly into long-term memory, bypassing automatic extraction. Use when the user explicitly asks you to remember something."
}

func (t *FeedMemoryTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"fact": map[string]interface{}{
				"type":        "string",
				"description": "The self-contained fact to remember",
			},
			"category": map[string]interface{}{
				"type":        "string",
				"description": "A short category label, e.g. biographical, preference, task",
			},
		},
		"required": []string{"fact"},
	}
}

func (t *FeedMemoryTool) Execute(ctx context.Context, args map[string]interface{}) *ToolResult {
	fact, ok := args["fact"].(string)
	if !ok || fact == "" {
		return ErrorResult("fact is required")
	}
	category, _ := args["category"].(string)

	if err := t.store.IndexKnowledge(ctx, "", fact, category, memory.IndexOpts{}); err != nil {
		return ErrorResult(fmt.Sprintf("failed to store fact: %v", err))
	}
	return SilentResult("Remembered.")
}
