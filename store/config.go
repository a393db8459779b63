package store

// Config holds configuration for the Store.
type Config struct {
	// TableName is the single table holding every entity type.
	// Default: "blog"
	TableName string

	// GSI1Name is the index serving the api-key and posts-by-creation
	// access patterns.
	// Default: "GSI1"
	GSI1Name string

	// GSI2Name is the index serving the post-slug access pattern, grouping
	// a post with its comments under one partition.
	// Default: "GSI2"
	GSI2Name string
}

// DefaultConfig returns the table layout the CDK stack provisions.
func DefaultConfig() Config {
	return Config{
		TableName: "blog",
		GSI1Name:  "GSI1",
		GSI2Name:  "GSI2",
	}
}

// validate ensures config values are within acceptable bounds.
func (c *Config) validate() {
	if c.TableName == "" {
		c.TableName = "blog"
	}
	if c.GSI1Name == "" {
		c.GSI1Name = "GSI1"
	}
	if c.GSI2Name == "" {
		c.GSI2Name = "GSI2"
	}
}
