// Package s3 provides an object store backed by an S3-compatible bucket.
package s3

import (
	"fmt"
	"strings"
)

// Config contains configuration for the S3 object store.
type Config struct {
	Endpoint     string `hcl:"endpoint,optional"`       // Custom endpoint (MinIO, localstack)
	Region       string `hcl:"region,optional"`         // AWS region (default: us-east-1)
	Bucket       string `hcl:"bucket"`                  // Bucket holding the objects
	Prefix       string `hcl:"prefix,optional"`         // Key prefix (e.g., "genomes/")
	AccessKey    string `hcl:"access_key,optional"`     // Static access key ID
	SecretKey    string `hcl:"secret_key,optional"`     // Static secret access key
	UsePathStyle bool   `hcl:"use_path_style,optional"` // Path-style addressing

	// Extension appended to the reference path to form the object key.
	Extension string `hcl:"extension,optional"` // default: .json

	RequestTimeoutSeconds int `hcl:"request_timeout_seconds,optional"` // default: 30
}

// Validate validates the S3 configuration.
func (c *Config) Validate() error {
	if c.Bucket == "" {
		return fmt.Errorf("bucket is required")
	}
	if (c.AccessKey == "") != (c.SecretKey == "") {
		return fmt.Errorf("access_key and secret_key must be set together")
	}
	return nil
}

// SetDefaults sets default values for optional fields.
func (c *Config) SetDefaults() {
	if c.Region == "" {
		c.Region = "us-east-1"
	}
	if c.Extension == "" {
		c.Extension = ".json"
	}
	if !strings.HasPrefix(c.Extension, ".") {
		c.Extension = "." + c.Extension
	}
	if c.RequestTimeoutSeconds == 0 {
		c.RequestTimeoutSeconds = 30
	}
	if c.Prefix != "" && !strings.HasSuffix(c.Prefix, "/") {
		c.Prefix += "/"
	}
}
