package cmd

import (
	"fmt"
	"os"

	"blog/core"
	"blog/lint"
)

// Check renders the whole site without serving it and reports content
// problems: broken internal links, missing assets, invalid or duplicate
// front matter and malformed HTML. Exits non-zero if any error was found.
func Check(ctx *core.Context) {
	checker := lint.NewChecker(ctx)
	findings := checker.Run()

	if len(findings) == 0 {
		fmt.Println("No problems found")
		return
	}

	lint.Report(os.Stdout, findings)

	if lint.HasErrors(findings) {
		os.Exit(1)
	}
}
