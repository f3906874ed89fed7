package api

// Config holds API server configuration
type Config struct {
	// Enabled controls whether the API server is started
	Enabled bool `yaml:"enabled" default:"true"`

	// Addr is the listen address for the API server
	Addr string `yaml:"addr" default:":8080"`
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Addr == "" {
		c.Addr = ":8080"
	}

	return nil
}
