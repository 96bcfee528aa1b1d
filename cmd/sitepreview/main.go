package main

import (
	"github.com/JakeFAU/sitepreview/cmd"
)

// main defers all execution to the cobra command tree.
func main() {
	cmd.Execute()
}
