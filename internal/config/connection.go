package config

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
)

// Connection is a parsed storage connection string of the form
// "Region=eu-west-1;Endpoint=http://localhost:9000;PathStyle=true".
// An empty string selects the AWS default credential chain.
type Connection struct {
	Region          string
	Endpoint        string
	Profile         string
	PathStyle       bool
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// ParseConnection parses s. Keys are case-insensitive; unknown keys are
// rejected.
func ParseConnection(s string) (Connection, error) {
	var conn Connection
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			return Connection{}, fmt.Errorf("config: connection string: malformed pair %q", part)
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)
		switch key {
		case "region":
			conn.Region = value
		case "endpoint":
			u, err := url.Parse(value)
			if err != nil || u.Scheme == "" || u.Host == "" {
				return Connection{}, fmt.Errorf("config: connection string: invalid endpoint %q", value)
			}
			conn.Endpoint = value
		case "profile":
			conn.Profile = value
		case "pathstyle":
			b, err := strconv.ParseBool(value)
			if err != nil {
				return Connection{}, fmt.Errorf("config: connection string: PathStyle: %w", err)
			}
			conn.PathStyle = b
		case "accesskeyid":
			conn.AccessKeyID = value
		case "secretaccesskey":
			conn.SecretAccessKey = value
		case "sessiontoken":
			conn.SessionToken = value
		default:
			return Connection{}, fmt.Errorf("config: connection string: unknown key %q", key)
		}
	}
	if (conn.AccessKeyID == "") != (conn.SecretAccessKey == "") {
		return Connection{}, errors.New("config: connection string: AccessKeyId and SecretAccessKey must be set together")
	}
	if conn.SessionToken != "" && conn.AccessKeyID == "" {
		return Connection{}, errors.New("config: connection string: SessionToken requires AccessKeyId")
	}
	return conn, nil
}

// String renders the connection with secrets masked, for logging.
func (c Connection) String() string {
	var parts []string
	add := func(k, v string) {
		if v != "" {
			parts = append(parts, k+"="+v)
		}
	}
	add("Region", c.Region)
	add("Endpoint", c.Endpoint)
	add("Profile", c.Profile)
	if c.PathStyle {
		add("PathStyle", "true")
	}
	if c.AccessKeyID != "" {
		add("AccessKeyId", c.AccessKeyID)
		add("SecretAccessKey", "****")
	}
	return strings.Join(parts, ";")
}

// AWSConfig loads the SDK configuration for c on top of the default chain.
func (c Connection) AWSConfig(ctx context.Context) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if c.Region != "" {
		opts = append(opts, awsconfig.WithRegion(c.Region))
	}
	if c.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(c.Profile))
	}
	if c.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.AccessKeyID, c.SecretAccessKey, c.SessionToken),
		))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("config: load AWS config: %w", err)
	}
	return cfg, nil
}
