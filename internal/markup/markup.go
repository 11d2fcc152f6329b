// Package markup implements the tagged-block vocabulary tools emit to the
// rendering surface. Incremental emissions are non-authoritative previews
// shown while tool arguments stream in; the final emission on input
// completion is authoritative and is the only one persisted.
package markup

import "strings"

// Sink receives markup blocks produced by tool executors.
// Implementations must be safe for concurrent use: a step may run several
// wrapped executors at once.
type Sink interface {
	// EmitIncremental delivers a preview block. May be called many times
	// per tool call with progressively more complete content.
	EmitIncremental(block string)

	// EmitFinal delivers the authoritative block for a tool call.
	EmitFinal(block string)
}

// escapeAttr escapes a string for use inside a double-quoted attribute.
func escapeAttr(s string) string {
	r := strings.NewReplacer("&", "&amp;", `"`, "&quot;", "<", "&lt;", ">", "&gt;")
	return r.Replace(s)
}

func block(tag string, attrs [][2]string, body string) string {
	var b strings.Builder
	b.WriteString("<")
	b.WriteString(tag)
	for _, a := range attrs {
		b.WriteString(" ")
		b.WriteString(a[0])
		b.WriteString(`="`)
		b.WriteString(escapeAttr(a[1]))
		b.WriteString(`"`)
	}
	b.WriteString(">")
	b.WriteString(body)
	b.WriteString("</")
	b.WriteString(tag)
	b.WriteString(">")
	return b.String()
}

// Write renders a file-write block with the new file content as body.
func Write(path, content string) string {
	return block("dyad-write", [][2]string{{"path", path}}, content)
}

// Delete renders a file-delete block.
func Delete(path string) string {
	return block("dyad-delete", [][2]string{{"path", path}}, "")
}

// Rename renders a file-rename block.
func Rename(from, to string) string {
	return block("dyad-rename", [][2]string{{"from", from}, {"to", to}}, "")
}

// Copy renders a file-copy block.
func Copy(from, to string) string {
	return block("dyad-copy", [][2]string{{"from", from}, {"to", to}}, "")
}

// SearchReplace renders a search-replace block; body carries the diff.
func SearchReplace(path, diff string) string {
	return block("dyad-search-replace", [][2]string{{"path", path}}, diff)
}

// ListFiles renders a directory-listing block.
func ListFiles(path, listing string) string {
	return block("dyad-list-files", [][2]string{{"path", path}}, listing)
}

// Read renders a file-read block.
func Read(path string) string {
	return block("dyad-read", [][2]string{{"path", path}}, "")
}

// AddDependency renders a dependency-install block.
func AddDependency(packages string) string {
	return block("dyad-add-dependency", [][2]string{{"packages", packages}}, "")
}

// DatabaseSchema renders a database-schema block with SQL as body.
func DatabaseSchema(sql string) string {
	return block("dyad-database-schema", nil, sql)
}

// ChatSummary renders a chat-summary block.
func ChatSummary(summary string) string {
	return block("dyad-chat-summary", nil, summary)
}

// ToolCall renders an external (MCP) tool invocation block.
func ToolCall(server, tool, args string) string {
	return block("dyad-tool-call", [][2]string{{"server", server}, {"tool", tool}}, args)
}

// ToolResult renders an external (MCP) tool result block.
func ToolResult(server, tool, result string) string {
	return block("dyad-tool-result", [][2]string{{"server", server}, {"tool", tool}}, result)
}
