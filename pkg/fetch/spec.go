// Package fetch downloads, verifies and unpacks the prebuilt toolchain
// archives listed in DEPS.yml (binaryen and friends). A stamp file records
// which archives are already present so unchanged deps are skipped.
package fetch

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// DepSpec describes a single downloadable dependency.
type DepSpec struct {
	// Condition lists vars that must be set for this dep to apply ("if").
	Condition string `yaml:"if,omitempty"`
	// Rejections lists vars that must NOT be set ("ifNot").
	Rejections string   `yaml:"ifNot,omitempty"`
	URL        string   `yaml:"url"`
	Dest       string   `yaml:"dest"`
	Sha256     string   `yaml:"sha256"`
	Strip      int      `yaml:"strip,omitempty"`
	MarkExec   []string `yaml:"markExec,omitempty"`
}

// Config is the parsed DEPS.yml.
type Config struct {
	Vars map[string]string  `yaml:"vars"`
	Deps map[string]DepSpec `yaml:"deps"`
}

// LoadConfig parses the given DEPS.yml and also returns the raw file
// contents which the --update flow needs for checksum rewriting.
func LoadConfig(path string) (Config, string, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, "", eris.Wrapf(err, "could not open %s", path)
	}

	err = yaml.Unmarshal(data, &cfg)
	if err != nil {
		return cfg, "", eris.Wrapf(err, "failed to parse %s", path)
	}

	return cfg, string(data), nil
}

// DepNames returns the dependency names in stable order.
func (c Config) DepNames() []string {
	names := make([]string, 0, len(c.Deps))
	for name := range c.Deps {
		names = append(names, name)
	}

	sort.Strings(names)
	return names
}

// DefaultVars returns the implicit condition vars: the current OS and
// architecture plus "ci" on CI runners.
func DefaultVars() map[string]string {
	vars := map[string]string{
		runtime.GOOS:   "true",
		runtime.GOARCH: "true",
	}

	if os.Getenv("CI") == "true" {
		vars["ci"] = "true"
	}

	return vars
}

var varPattern = regexp.MustCompile(`\{([A-Z0-9_]+)\}`)

// Eval substitutes {VAR} placeholders in the URL and evaluates the if/ifNot
// conditions against the passed vars. It returns false if the dep doesn't
// apply to this environment. The URL is templated either way since --update
// has to process skipped deps, too.
func (d *DepSpec) Eval(vars map[string]string) bool {
	d.URL = varPattern.ReplaceAllStringFunc(d.URL, func(name string) string {
		return vars[name[1:len(name)-1]]
	})

	for _, condition := range strings.Split(d.Condition, ",") {
		condition = strings.TrimSpace(condition)
		if condition == "" {
			continue
		}

		if vars[condition] == "" {
			return false
		}
	}

	for _, condition := range strings.Split(d.Rejections, ",") {
		condition = strings.TrimSpace(condition)
		if condition == "" {
			continue
		}

		if vars[condition] != "" {
			return false
		}
	}

	return true
}

// StampToken identifies the exact archive contents a dep resolves to.
func (d DepSpec) StampToken() string {
	return d.URL + "#" + d.Sha256
}

func stampPath(root string) string {
	return filepath.Join(root, "DEPS.stamps")
}

// LoadStamps reads the stamp file. A missing file yields an empty map.
func LoadStamps(root string) (map[string]string, error) {
	stamps := map[string]string{}

	data, err := os.ReadFile(stampPath(root))
	if err != nil {
		if eris.Is(err, os.ErrNotExist) {
			return stamps, nil
		}
		return nil, eris.Wrapf(err, "failed to read %s", stampPath(root))
	}

	err = json.Unmarshal(data, &stamps)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to parse %s", stampPath(root))
	}

	return stamps, nil
}

func SaveStamps(root string, stamps map[string]string) error {
	data, err := json.Marshal(stamps)
	if err != nil {
		return eris.Wrap(err, "failed to encode stamps")
	}

	err = os.WriteFile(stampPath(root), data, 0660)
	if err != nil {
		return eris.Wrapf(err, "failed to write %s", stampPath(root))
	}

	return nil
}

// UpdateChecksum replaces a dep's recorded checksum in the raw DEPS.yml
// text, preserving everything else byte for byte.
func UpdateChecksum(cfgText, name, oldSum, newSum string) (string, error) {
	pos := strings.Index(cfgText, name+":\n")
	if pos == -1 {
		return "", eris.Errorf("failed to find the section for %s", name)
	}

	if oldSum == "" {
		insert := pos + len(name) + 2
		return cfgText[:insert] + "    sha256: " + newSum + "\n" + cfgText[insert:], nil
	}

	subPos := strings.Index(cfgText[pos:], "sha256: "+oldSum)
	if subPos == -1 {
		return "", eris.Errorf("failed to find the checksum entry for %s", name)
	}

	start := pos + subPos + len("sha256: ")
	return cfgText[:start] + newSum + cfgText[start+len(oldSum):], nil
}
