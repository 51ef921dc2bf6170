package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/featherbot/featherbot/internal/logging"
)

const maxReadFileSize = 10 * 1024 * 1024 // 10 MB

// WorkspacePolicy resolves and validates paths tools operate on. When
// RestrictToWorkspace is set, every resolved absolute path must lie within
// the workspace directory, or the tool returns a textual error and
// performs no I/O.
type WorkspacePolicy struct {
	Root                string
	RestrictToWorkspace bool
}

func (p WorkspacePolicy) resolve(path string) (string, error) {
	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(p.Root, abs)
	}
	abs = filepath.Clean(abs)

	if p.RestrictToWorkspace {
		root := filepath.Clean(p.Root)
		if abs != root && !strings.HasPrefix(abs, root+string(filepath.Separator)) {
			return "", fmt.Errorf("path %q escapes workspace %q", path, root)
		}
	}
	return abs, nil
}

// ReadFileTool reads a file's contents, subject to WorkspacePolicy.
type ReadFileTool struct{ policy WorkspacePolicy }

func NewReadFileTool(policy WorkspacePolicy) *ReadFileTool { return &ReadFileTool{policy} }

func (t *ReadFileTool) Name() string        { return "read_file" }
func (t *ReadFileTool) Description() string { return "Read the contents of a file at the given path." }
func (t *ReadFileTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{"type": "string", "description": "Path to the file to read"},
		},
		"required": []string{"path"},
	}
}

func (t *ReadFileTool) Execute(ctx context.Context, args map[string]interface{}) *ToolResult {
	path, _ := args["path"].(string)
	if path == "" {
		return ErrorResult("path is required")
	}
	abs, err := t.policy.resolve(path)
	if err != nil {
		return ErrorResult(err.Error())
	}
	info, err := os.Stat(abs)
	if err != nil {
		return ErrorResult(err.Error())
	}
	if info.Size() > maxReadFileSize {
		return ErrorResult(fmt.Sprintf("file too large: %d bytes (max %d)", info.Size(), maxReadFileSize))
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return ErrorResult(err.Error())
	}
	return &ToolResult{ForLLM: string(data)}
}

// WriteFileTool writes (overwrites) a file in place with os.WriteFile,
// creating parent directories as needed. The write is not atomic.
type WriteFileTool struct{ policy WorkspacePolicy }

func NewWriteFileTool(policy WorkspacePolicy) *WriteFileTool { return &WriteFileTool{policy} }

func (t *WriteFileTool) Name() string        { return "write_file" }
func (t *WriteFileTool) Description() string { return "Write content to a file, creating or overwriting it." }
func (t *WriteFileTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path":    map[string]interface{}{"type": "string", "description": "Path to the file to write"},
			"content": map[string]interface{}{"type": "string", "description": "Content to write"},
		},
		"required": []string{"path", "content"},
	}
}

func (t *WriteFileTool) Execute(ctx context.Context, args map[string]interface{}) *ToolResult {
	path, _ := args["path"].(string)
	content, _ := args["content"].(string)
	if path == "" {
		return ErrorResult("path is required")
	}
	abs, err := t.policy.resolve(path)
	if err != nil {
		return ErrorResult(err.Error())
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		return ErrorResult(err.Error())
	}
	if err := os.WriteFile(abs, []byte(content), 0644); err != nil {
		return ErrorResult(err.Error())
	}
	logging.Component("tools").Info("file written", "operation", "write_file", "path", abs, "bytes", len(content))
	return &ToolResult{ForLLM: fmt.Sprintf("Wrote %d bytes to %s", len(content), path)}
}

// EditFileTool performs a literal find/replace within a file.
type EditFileTool struct{ policy WorkspacePolicy }

func NewEditFileTool(policy WorkspacePolicy) *EditFileTool { return &EditFileTool{policy} }

func (t *EditFileTool) Name() string        { return "edit_file" }
func (t *EditFileTool) Description() string { return "Replace the first occurrence of a string within a file." }
func (t *EditFileTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path":    map[string]interface{}{"type": "string"},
			"old_str": map[string]interface{}{"type": "string", "description": "Exact text to find"},
			"new_str": map[string]interface{}{"type": "string", "description": "Replacement text"},
		},
		"required": []string{"path", "old_str", "new_str"},
	}
}

func (t *EditFileTool) Execute(ctx context.Context, args map[string]interface{}) *ToolResult {
	path, _ := args["path"].(string)
	oldStr, _ := args["old_str"].(string)
	newStr, _ := args["new_str"].(string)
	if path == "" || oldStr == "" {
		return ErrorResult("path and old_str are required")
	}
	abs, err := t.policy.resolve(path)
	if err != nil {
		return ErrorResult(err.Error())
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return ErrorResult(err.Error())
	}
	content := string(data)
	if !strings.Contains(content, oldStr) {
		return ErrorResult(fmt.Sprintf("old_str not found in %s", path))
	}
	updated := strings.Replace(content, oldStr, newStr, 1)
	if err := os.WriteFile(abs, []byte(updated), 0644); err != nil {
		return ErrorResult(err.Error())
	}
	return &ToolResult{ForLLM: fmt.Sprintf("Edited %s", path)}
}

// ListDirTool lists directory entries.
type ListDirTool struct{ policy WorkspacePolicy }

func NewListDirTool(policy WorkspacePolicy) *ListDirTool { return &ListDirTool{policy} }

func (t *ListDirTool) Name() string        { return "list_dir" }
func (t *ListDirTool) Description() string { return "List the contents of a directory." }
func (t *ListDirTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{"type": "string", "description": "Directory to list"},
		},
		"required": []string{"path"},
	}
}

func (t *ListDirTool) Execute(ctx context.Context, args map[string]interface{}) *ToolResult {
	path, _ := args["path"].(string)
	if path == "" {
		path = "."
	}
	abs, err := t.policy.resolve(path)
	if err != nil {
		return ErrorResult(err.Error())
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return ErrorResult(err.Error())
	}
	var sb strings.Builder
	for _, e := range entries {
		if e.IsDir() {
			sb.WriteString(e.Name() + "/\n")
		} else {
			sb.WriteString(e.Name() + "\n")
		}
	}
	return &ToolResult{ForLLM: sb.String()}
}
