package pipeline

// FooterStage appends a fixed footer to every reply. Empty footer disables
// the stage's effect without removing it from the chain.
func FooterStage(footer string) Stage {
	return func(c *Context, next func() error) error {
		if footer != "" && c.Reply != "" {
			c.Reply += "\n\n" + footer
		}
		return next()
	}
}
