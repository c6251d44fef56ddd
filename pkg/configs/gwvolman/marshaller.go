package gwvolman

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Environment variables overriding the config file.
type overrides struct {
	GirderApiUrl      string `env:"GIRDER_API_URL"`
	HostDir           string `env:"HOSTDIR"`
	Domain            string `env:"DOMAIN"`
	TraefikEntrypoint string `env:"TRAEFIK_ENTRYPOINT"`
	RegistryUser      string `env:"REGISTRY_USER"`
	RegistryPassword  string `env:"REGISTRY_PASS"`
	DataONEUrl        string `env:"DATAONE_URL"`
	NodeName          string `env:"NODE_NAME"`
	Database          string `env:"GWVOLMAN_DATABASE"`
}

func (o overrides) apply(c *ConfigMarshall) {
	set := func(dest *string, v string) {
		if v != "" {
			*dest = v
		}
	}
	if c.Girder == nil {
		c.Girder = &GirderConfigMarshall{}
	}
	if c.Registry == nil {
		c.Registry = &RegistryConfigMarshall{}
	}
	if c.DataONE == nil {
		c.DataONE = &DataONEConfigMarshall{}
	}
	set(&c.Girder.ApiUrl, o.GirderApiUrl)
	set(&c.HostDir, o.HostDir)
	set(&c.Domain, o.Domain)
	set(&c.TraefikEntrypoint, o.TraefikEntrypoint)
	set(&c.Registry.User, o.RegistryUser)
	set(&c.Registry.Password, o.RegistryPassword)
	set(&c.DataONE.Url, o.DataONEUrl)
	set(&c.Database, o.Database)
	if o.NodeName != "" && c.Cluster != nil {
		c.Cluster.NodeName = o.NodeName
	}
}

// load gwvolman config from a file, then override it with environment variables.
//
// args:
//   - filepath: filepath refers a config file.
//
// returns *Config, error:
//
//	When loading success, returns `(*Config, nil)`.
//	Otherwise, returns `(nil, error)`.
func LoadConfig(filepath string) (*Config, error) {
	content, err := os.ReadFile(filepath)
	if err != nil {
		return nil, err
	}
	return Unmarshal(content, nil)
}

// parse config.
//
// args:
//   - conf: yaml content.
//   - environ: environment variables to override conf. If nil, os.Environ is used.
func Unmarshal(conf []byte, environ map[string]string) (out *Config, err error) {
	var _out *ConfigMarshall
	if err := yaml.Unmarshal(conf, &_out); err != nil {
		return nil, err
	}
	if _out == nil {
		_out = &ConfigMarshall{}
	}

	var o overrides
	if err := env.ParseWithOptions(&o, env.Options{Environment: environ}); err != nil {
		return nil, err
	}
	o.apply(_out)

	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = fmt.Errorf("misconfiguration: %v", r)
		}
	}()
	return TrySeal(_out), nil
}
