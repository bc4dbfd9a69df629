package mongodb

import "github.com/go-viper/mapstructure/v2"

// Config points the tracking store at a dedicated MongoDB database. The
// colocated default skips it and uses NewFromDatabase instead.
type Config struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

func (c *Config) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"uri":      c.URI,
		"database": c.Database,
	}
}

func decodeConfig(m map[string]interface{}) (Config, error) {
	var c Config
	err := mapstructure.Decode(m, &c)
	return c, err
}
