package classifier

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/iamwavecut/ngguard/resources"
)

const defaultRulesPath = "wordlists/default.yml"

// Rules is the static configuration a Classifier is compiled from.
type Rules struct {
	Strict        []string `yaml:"strict"`
	Relaxed       []string `yaml:"relaxed"`
	SpamDomains   []string `yaml:"spam_domains"`
	TrustedDomain string   `yaml:"trusted_domain"`
}

func ParseRules(data []byte) (Rules, error) {
	var rules Rules
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return Rules{}, errors.Wrap(err, "parse word list")
	}
	return rules, nil
}

// LoadDefaultRules reads the word list bundled with the binary.
func LoadDefaultRules() (Rules, error) {
	data, err := resources.FS.ReadFile(defaultRulesPath)
	if err != nil {
		return Rules{}, errors.Wrap(err, "read embedded word list")
	}
	return ParseRules(data)
}

// LoadRules reads the word list at path, or the bundled one when path is empty.
func LoadRules(path string) (Rules, error) {
	if path == "" {
		return LoadDefaultRules()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, errors.Wrapf(err, "read word list %s", path)
	}
	return ParseRules(data)
}
