package tools

// RegisterBuiltins registers all seven tools from §4.4 into reg.
func RegisterBuiltins(reg *Registry) error {
	builtins := []Tool{
		KBSearchTool{},
		KBReadTool{},
		AskUserTool{},
		CiteTool{},
		SummarizeFactsTool{},
		CheckSafetyTool{},
		SuggestEscalationTool{},
	}
	for _, t := range builtins {
		if err := reg.Register(t); err != nil {
			return err
		}
	}
	return nil
}
