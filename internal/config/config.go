// Package config holds the environment-driven knobs consumed by the core
// runtime. Loading application config files or CLI flags is a Gateway and
// cmd/ concern; this package only defines and binds the core's own tunables
// via struct tags.
package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// Core holds every environment/config knob the five core subsystems consume.
type Core struct {
	HistoryMaxMessages   int           `env:"FEATHERBOT_HISTORY_MAX_MESSAGES" envDefault:"50"`
	MaxToolIterations    int           `env:"FEATHERBOT_MAX_TOOL_ITERATIONS" envDefault:"12"`
	SubagentTimeout      time.Duration `env:"FEATHERBOT_SUBAGENT_TIMEOUT" envDefault:"300s"`
	SubagentRetentionCap int           `env:"FEATHERBOT_SUBAGENT_RETENTION_CAP" envDefault:"50"`
	MemoryIdleDuration   time.Duration `env:"FEATHERBOT_MEMORY_IDLE_DURATION" envDefault:"300s"`
	ToolResultEvictBytes int           `env:"FEATHERBOT_TOOL_RESULT_EVICT_BYTES" envDefault:"8192"`
	ToolScratchDir       string        `env:"FEATHERBOT_TOOL_SCRATCH_DIR" envDefault:".featherbot/scratch"`
	Workspace            string        `env:"FEATHERBOT_WORKSPACE" envDefault:"."`
	CronStorePath        string        `env:"FEATHERBOT_CRON_STORE" envDefault:".featherbot/cron.json"`

	// Identity is the persona FeatherBot presents in its system prompt.
	IdentityName    string `env:"FEATHERBOT_IDENTITY_NAME" envDefault:"FeatherBot"`
	IdentityTagline string `env:"FEATHERBOT_IDENTITY_TAGLINE" envDefault:"a persistent, multi-channel conversational agent"`

	// Provider credentials. A Claude key, an OpenAI key, or both may be set;
	// Gateway composes whichever are present into a FallbackProvider.
	ClaudeAPIKey  string `env:"FEATHERBOT_CLAUDE_API_KEY"`
	ClaudeModel   string `env:"FEATHERBOT_CLAUDE_MODEL" envDefault:"claude-sonnet-4-5-20250929"`
	OpenAIAPIKey  string `env:"FEATHERBOT_OPENAI_API_KEY"`
	OpenAIModel   string `env:"FEATHERBOT_OPENAI_MODEL" envDefault:"gpt-4.1"`

	// TerminalChatID partitions the local terminal adapter's session.
	TerminalChatID string `env:"FEATHERBOT_TERMINAL_CHAT_ID" envDefault:"local"`

	// RestrictToWorkspace confines the file tools (read/write/edit/list) to
	// paths inside Workspace.
	RestrictToWorkspace bool `env:"FEATHERBOT_RESTRICT_TO_WORKSPACE" envDefault:"true"`

	// MemoryEnabled toggles the chromem-go semantic memory layer (requires
	// an OpenAI-compatible embedding key); when false, search_memory/
	// feed_memory are not registered and only the idle markdown extractor
	// runs.
	MemoryEnabled        bool   `env:"FEATHERBOT_MEMORY_ENABLED" envDefault:"false"`
	MemoryEmbeddingModel string `env:"FEATHERBOT_MEMORY_EMBEDDING_MODEL" envDefault:"text-embedding-3-small"`
}

// Load binds Core from the process environment, applying envDefault tags
// for anything unset.
func Load() (*Core, error) {
	cfg := &Core{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
