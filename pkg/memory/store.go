// Package memory implements MemoryExtractor and its optional semantic
// enrichment layer: a two-collection vector store (conversation turns and
// consolidated knowledge facts) with source-provenance metadata.
package memory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/philippgille/chromem-go"

	"github.com/featherbot/featherbot/internal/logging"
)

// Result is a single semantic search hit.
type Result struct {
	ID           string  `json:"id"`
	Content      string  `json:"content"`
	Score        float32 `json:"score"`
	Timestamp    string  `json:"timestamp"`
	Category     string  `json:"category,omitempty"`
	Source       string  `json:"source"` // "conversations" or "knowledge"
	Channel      string  `json:"channel,omitempty"`
	SourceType   string  `json:"source_type,omitempty"`
	SourceName   string  `json:"source_name,omitempty"`
	SourceDate   string  `json:"source_date,omitempty"`
	SourcePerson string  `json:"source_person,omitempty"`
}

// IndexOpts holds optional provenance metadata for an indexed fact.
type IndexOpts struct {
	SourceType   string
	SourceName   string
	SourceDate   string
	SourcePerson string
}

// KnowledgeStore wraps chromem-go with two collections: raw conversation
// turns and consolidated facts.
type KnowledgeStore struct {
	db            *chromem.DB
	conversations *chromem.Collection
	knowledge     *chromem.Collection
}

// NewKnowledgeStore opens (or creates) a persistent vector DB under
// <workspace>/memory/vectors/.
func NewKnowledgeStore(workspace string, embeddingFn chromem.EmbeddingFunc) (*KnowledgeStore, error) {
	dbPath := filepath.Join(workspace, "memory", "vectors")
	if err := os.MkdirAll(dbPath, 0o755); err != nil {
		return nil, fmt.Errorf("create memory dir: %w", err)
	}

	db, err := chromem.NewPersistentDB(dbPath, false)
	if err != nil {
		return nil, fmt.Errorf("open vector db: %w", err)
	}
	conversations, err := db.GetOrCreateCollection("conversations", nil, embeddingFn)
	if err != nil {
		return nil, fmt.Errorf("create conversations collection: %w", err)
	}
	knowledge, err := db.GetOrCreateCollection("knowledge", nil, embeddingFn)
	if err != nil {
		return nil, fmt.Errorf("create knowledge collection: %w", err)
	}

	logging.Component("memory").Info("knowledge store initialized", "operation", "open",
		"path", dbPath, "conversations", conversations.Count(), "knowledge", knowledge.Count())

	return &KnowledgeStore{db: db, conversations: conversations, knowledge: knowledge}, nil
}

// IndexConversation embeds a conversation turn for later recall.
func (s *KnowledgeStore) IndexConversation(ctx context.Context, sessionKey, channel, userMsg, assistantMsg string) {
	ts := time.Now()
	docID := fmt.Sprintf("%s:%d", sessionKey, ts.UnixNano())
	content := fmt.Sprintf("User: %s\nAssistant: %s", userMsg, assistantMsg)
	if runes := []rune(content); len(runes) > 8000 {
		content = string(runes[:8000])
	}

	doc := chromem.Document{
		ID:      docID,
		Content: content,
		Metadata: map[string]string{
			"session_key": sessionKey,
			"channel":     channel,
			"timestamp":   ts.Format(time.RFC3339),
		},
	}
	if err := s.conversations.AddDocument(ctx, doc); err != nil {
		logging.Component("memory").Error("index conversation failed", "operation", "index_conversation",
			"session_key", sessionKey, "error", err)
	}
}

// IndexKnowledge adds a consolidated fact. Passing an empty docID
// generates one.
func (s *KnowledgeStore) IndexKnowledge(ctx context.Context, docID, fact, category string, opts IndexOpts) error {
	if docID == "" {
		docID = fmt.Sprintf("k:%d", time.Now().UnixNano())
	}
	metadata := map[string]string{
		"category":   category,
		"updated_at": time.Now().Format(time.RFC3339),
	}
	if opts.SourceType != "" {
		metadata["source_type"] = opts.SourceType
	}
	if opts.SourceName != "" {
		metadata["source_name"] = opts.SourceName
	}
	if opts.SourceDate != "" {
		metadata["source_date"] = opts.SourceDate
	}
	if opts.SourcePerson != "" {
		metadata["source_person"] = opts.SourcePerson
	}

	doc := chromem.Document{ID: docID, Content: fact, Metadata: metadata}
	if err := s.knowledge.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("index knowledge: %w", err)
	}
	return nil
}

// DeleteKnowledge removes a fact by id.
func (s *KnowledgeStore) DeleteKnowledge(ctx context.Context, docID string) error {
	if err := s.knowledge.Delete(ctx, nil, nil, docID); err != nil {
		return fmt.Errorf("delete knowledge %s: %w", docID, err)
	}
	return nil
}

// SearchConversations searches prior conversation turns.
func (s *KnowledgeStore) SearchConversations(ctx context.Context, query string, limit int) ([]Result, error) {
	if s.conversations.Count() == 0 {
		return nil, nil
	}
	if limit > s.conversations.Count() {
		limit = s.conversations.Count()
	}
	results, err := s.conversations.Query(ctx, query, limit, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("search conversations: %w", err)
	}
	out := make([]Result, 0, len(results))
	for _, r := range results {
		out = append(out, Result{
			ID: r.ID, Content: r.Content, Score: r.Similarity,
			Timestamp: r.Metadata["timestamp"], Channel: r.Metadata["channel"], Source: "conversations",
		})
	}
	return out, nil
}

// SearchKnowledge searches consolidated facts.
func (s *KnowledgeStore) SearchKnowledge(ctx context.Context, query string, limit int) ([]Result, error) {
	if s.knowledge.Count() == 0 {
		return nil, nil
	}
	if limit > s.knowledge.Count() {
		limit = s.knowledge.Count()
	}
	results, err := s.knowledge.Query(ctx, query, limit, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("search knowledge: %w", err)
	}
	out := make([]Result, 0, len(results))
	for _, r := range results {
		out = append(out, Result{
			ID: r.ID, Content: r.Content, Score: r.Similarity,
			Timestamp: r.Metadata["updated_at"], Category: r.Metadata["category"], Source: "knowledge",
			SourceType: r.Metadata["source_type"], SourceName: r.Metadata["source_name"],
			SourceDate: r.Metadata["source_date"], SourcePerson: r.Metadata["source_person"],
		})
	}
	return out, nil
}

// Search queries both collections and merges by score. filter is one of
// "", "all", "conversations", "knowledge".
func (s *KnowledgeStore) Search(ctx context.Context, query string, limit int, filter string) ([]Result, error) {
	switch filter {
	case "", "all":
		var all []Result
		if conv, err := s.SearchConversations(ctx, query, limit); err == nil {
			all = append(all, conv...)
		}
		if know, err := s.SearchKnowledge(ctx, query, limit); err == nil {
			all = append(all, know...)
		}
		sort.Slice(all, func(i, j int) bool { return all[i].Score > all[j].Score })
		if len(all) > limit {
			all = all[:limit]
		}
		return all, nil
	case "conversations":
		return s.SearchConversations(ctx, query, limit)
	case "knowledge":
		return s.SearchKnowledge(ctx, query, limit)
	default:
		return nil, fmt.Errorf("unknown filter: %s (use: all, conversations, knowledge)", filter)
	}
}

// FormatResults renders search results into the human-readable block the
// search_memory tool returns to the model.
func FormatResults(results []Result) string {
	if len(results) == 0 {
		return "No memories found."
	}

	var knowledgeResults, convResults []Result
	for _, r := range results {
		if r.Source == "knowledge" {
			knowledgeResults = append(knowledgeResults, r)
		} else {
			convResults = append(convResults, r)
		}
	}

	var sb strings.Builder
	if len(knowledgeResults) > 0 {
		sb.WriteString("## Knowledge\n")
		for _, r := range knowledgeResults {
			cat := ""
			if r.Category != "" {
				cat = fmt.Sprintf(" (%s)", r.Category)
			}
			sb.WriteString(fmt.Sprintf("- %s %s%s\n", formatProvenance(r), r.Content, cat))
		}
	}
	if len(convResults) > 0 {
		if len(knowledgeResults) > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("## Conversations\n")
		for _, r := range convResults {
			ch := ""
			if r.Channel != "" {
				ch = fmt.Sprintf(", %s", r.Channel)
			}
			preview := r.Content
			if runes := []rune(preview); len(runes) > 200 {
				preview = string(runes[:200]) + "..."
			}
			sb.WriteString(fmt.Sprintf("- [%s%s] %s\n", formatDate(r.Timestamp), ch, preview))
		}
	}
	return sb.String()
}

func formatProvenance(r Result) string {
	var parts []string
	date := r.SourceDate
	if date == "" {
		date = r.Timestamp
	}
	parts = append(parts, formatDate(date))
	switch {
	case r.SourcePerson != "" && r.SourceType != "":
		parts = append(parts, fmt.Sprintf("%s via %s", r.SourcePerson, r.SourceType))
	case r.SourcePerson != "":
		parts = append(parts, r.SourcePerson)
	case r.SourceName != "":
		parts = append(parts, r.SourceName)
	case r.SourceType != "":
		parts = append(parts, r.SourceType)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func formatDate(ts string) string {
	if ts == "" {
		return "unknown"
	}
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return ts
	}
	return t.Format("2006-01-02")
}
