package templates

import (
	"embed"
	"io/fs"
)

// scaffold embeds the files `oompa init` writes into a fresh project:
//   - swarm/swarm.yaml (starter config)
//   - swarm/prompts/*.md (default worker prompt files)
//
//go:embed swarm
var scaffold embed.FS

// ScaffoldFS returns the embedded scaffold rooted at the swarm directory,
// so paths inside it are relative to the project root.
func ScaffoldFS() fs.FS {
	sub, err := fs.Sub(scaffold, "swarm")
	if err != nil {
		panic(err)
	}
	return sub
}
