package hook

import (
	"fmt"
	"net/url"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads hook config from a file.
//
// An empty filename means "no hooks".
func Load(filename string) (Config, error) {
	if filename == "" {
		return Config{}, nil
	}
	content, err := os.ReadFile(filename)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type Config struct {
	// Job hooks are called before a claimed job is handled and after it is finished.
	Job WebHook `yaml:"job-hooks,omitempty"`
}

type WebHook struct {
	Before []*url.URL
	After  []*url.URL
}

func (wh *WebHook) UnmarshalYAML(node *yaml.Node) error {
	raw := struct {
		Before []string `yaml:"before"`
		After  []string `yaml:"after"`
	}{}
	if err := node.Decode(&raw); err != nil {
		return err
	}

	before, err := parseURLs(raw.Before)
	if err != nil {
		return fmt.Errorf("before: %w", err)
	}
	after, err := parseURLs(raw.After)
	if err != nil {
		return fmt.Errorf("after: %w", err)
	}
	wh.Before = before
	wh.After = after
	return nil
}

func parseURLs(raw []string) ([]*url.URL, error) {
	urls := make([]*url.URL, 0, len(raw))
	for _, u := range raw {
		parsed, err := url.Parse(u)
		if err != nil {
			return nil, err
		}
		if parsed.Scheme != "http" && parsed.Scheme != "https" {
			return nil, fmt.Errorf("%s: hook url should be http or https", u)
		}
		urls = append(urls, parsed)
	}
	return urls, nil
}
