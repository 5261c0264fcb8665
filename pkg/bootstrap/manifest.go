package bootstrap

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Manifest lists the cargo tools the project depends on (TOOLS.yml).
type Manifest struct {
	Tools map[string]Tool `yaml:"tools"`
}

// LoadManifest reads a TOOLS.yml file. Map keys double as the executable
// name unless the entry overrides it.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "could not open %s", path)
	}

	var manifest Manifest
	err = yaml.Unmarshal(data, &manifest)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to parse %s", path)
	}

	for name, tool := range manifest.Tools {
		if tool.Name == "" {
			tool.Name = name
			manifest.Tools[name] = tool
		}

		if tool.Crate == "" {
			return nil, eris.Errorf("tool %s in %s has no crate", name, path)
		}
	}

	return &manifest, nil
}

// Names returns the tool names in stable order.
func (m *Manifest) Names() []string {
	names := make([]string, 0, len(m.Tools))
	for name := range m.Tools {
		names = append(names, name)
	}

	sort.Strings(names)
	return names
}

// InstallMissing installs every manifest tool that doesn't resolve on PATH.
// With force set, tools are reinstalled even when they're already available.
// The first failed install aborts the loop.
func (r *Runner) InstallMissing(ctx context.Context, manifest *Manifest, force bool) error {
	for _, name := range manifest.Names() {
		tool := manifest.Tools[name]

		if !force && r.ToolAvailable(tool.Command()) {
			fmt.Fprintf(r.Out, "%s already installed\n", tool.Command())
			continue
		}

		fmt.Fprintf(r.Out, "installing %s\n", tool.Command())
		err := r.Install(ctx, tool)
		if err != nil {
			return err
		}
	}

	return nil
}
