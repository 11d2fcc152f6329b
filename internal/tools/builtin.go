package tools

// NewBuiltinRegistry assembles the built-in tool catalog. Registration
// failures here are configuration bugs and fail fast at process start.
func NewBuiltinRegistry() (*Registry, error) {
	r := NewRegistry()
	for _, def := range []*Definition{
		writeFileTool(),
		deleteFileTool(),
		renameFileTool(),
		copyFileTool(),
		readFileTool(),
		listFilesTool(),
		searchReplaceTool(),
		addDependencyTool(),
		executeSQLTool(),
		setChatSummaryTool(),
		updateTodoListTool(),
		finalizeTool(),
	} {
		if err := r.Register(def); err != nil {
			return nil, err
		}
	}
	return r, nil
}
