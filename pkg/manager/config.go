package manager

import "time"

// Config holds cache manager configuration
type Config struct {
	// CancelWait bounds how long Delete and Stop wait for a namespace's
	// refresh task to confirm termination
	CancelWait time.Duration `yaml:"cancel_wait" default:"30s"`
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.CancelWait <= 0 {
		c.CancelWait = 30 * time.Second
	}

	return nil
}
