package ingest

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/buger/jsonparser"
)

// Tool type taxonomy inferred from tool names.
const (
	ToolTypeFileRead      = "file_read"
	ToolTypeFileWrite     = "file_write"
	ToolTypeFileEdit      = "file_edit"
	ToolTypeFileMultiEdit = "file_multi_edit"
	ToolTypeFileGlob      = "file_glob"
	ToolTypeFileGrep      = "file_grep"
	ToolTypeFileList      = "file_list"
	ToolTypeShell         = "shell"
	ToolTypeNotebookRead  = "notebook_read"
	ToolTypeNotebookEdit  = "notebook_edit"
	ToolTypeWebFetch      = "web_fetch"
	ToolTypeWebSearch     = "web_search"
	ToolTypeAgent         = "agent"
	ToolTypeTodoRead      = "todo_read"
	ToolTypeTodoWrite     = "todo_write"
	ToolTypeMCP           = "mcp"
	ToolTypeUnknown       = "unknown"
)

// File actions.
const (
	FileActionSearch = "search"
	FileActionList   = "list"
	FileActionRead   = "read"
	FileActionCreate = "create"
	FileActionEdit   = "edit"
	FileActionDelete = "delete"
)

func inferToolType(name string) string {
	if strings.HasPrefix(name, "mcp__") {
		return ToolTypeMCP
	}
	switch name {
	case "Read":
		return ToolTypeFileRead
	case "Write":
		return ToolTypeFileWrite
	case "Edit":
		return ToolTypeFileEdit
	case "MultiEdit":
		return ToolTypeFileMultiEdit
	case "Glob":
		return ToolTypeFileGlob
	case "Grep":
		return ToolTypeFileGrep
	case "LS", "List":
		return ToolTypeFileList
	case "Bash":
		return ToolTypeShell
	case "NotebookRead":
		return ToolTypeNotebookRead
	case "NotebookEdit":
		return ToolTypeNotebookEdit
	case "WebFetch":
		return ToolTypeWebFetch
	case "WebSearch":
		return ToolTypeWebSearch
	case "Task", "Agent":
		return ToolTypeAgent
	case "TodoRead":
		return ToolTypeTodoRead
	case "TodoWrite":
		return ToolTypeTodoWrite
	default:
		return ToolTypeUnknown
	}
}

func isFileTool(toolType string) bool {
	return strings.HasPrefix(toolType, "file_") ||
		toolType == ToolTypeNotebookRead ||
		toolType == ToolTypeNotebookEdit
}

func inferFileAction(toolType string) string {
	switch toolType {
	case ToolTypeFileGlob, ToolTypeFileGrep:
		return FileActionSearch
	case ToolTypeFileList:
		return FileActionList
	case ToolTypeFileWrite:
		return FileActionCreate
	case ToolTypeFileEdit, ToolTypeFileMultiEdit, ToolTypeNotebookEdit:
		return FileActionEdit
	default:
		return FileActionRead
	}
}

var pathKeys = []string{"file_path", "path", "notebook_path"}

// Matches a path-bearing key in a partial JSON document up to either the
// closing quote or the end of the fragment.
var partialPathPattern = regexp.MustCompile(`"(?:file_path|path|notebook_path)"\s*:\s*"((?:[^"\\]|\\.)*)`)

// extractFilePath pulls a file path out of a tool's arguments payload. The
// payload may be an incomplete streaming fragment, so a full parse is tried
// first and a pattern match second. Never fails: an unextractable payload
// yields "".
func extractFilePath(args string) string {
	if args == "" {
		return ""
	}
	data := []byte(args)
	for _, key := range pathKeys {
		if v, err := jsonparser.GetString(data, key); err == nil && v != "" {
			return v
		}
	}
	m := partialPathPattern.FindStringSubmatch(args)
	if len(m) == 2 && m[1] != "" {
		return unescapeFragment(m[1])
	}
	return ""
}

func unescapeFragment(s string) string {
	if !strings.ContainsRune(s, '\\') {
		return s
	}
	if unquoted, err := strconv.Unquote(`"` + s + `"`); err == nil {
		return unquoted
	}
	return s
}
