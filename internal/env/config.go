package env

import (
	"context"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Address         string        `env:"LDAPWS_ADDRESS" yaml:"address"`
	BindDN          string        `env:"LDAPWS_BIND_DN" yaml:"bindDN"`
	Password        string        `env:"LDAPWS_PASSWORD" yaml:"password"`
	VerifyMessageID bool          `env:"LDAPWS_VERIFY_MESSAGE_ID,default=true" yaml:"verifyMessageID"`
	DialTimeout     time.Duration `env:"LDAPWS_DIAL_TIMEOUT,default=10s" yaml:"dialTimeout"`
	Subprotocols    []string      `env:"LDAPWS_WS_SUBPROTOCOLS" yaml:"subprotocols"`
	LogLevel        string        `env:"LDAPWS_LOG_LEVEL,default=info" yaml:"logLevel"`
	Trace           bool          `env:"LDAPWS_TRACE" yaml:"trace"`

	Domain          string `env:"LDAPWS_DOMAIN" yaml:"domain"`
	KDCAddress      string `env:"LDAPWS_KDC_ADDRESS" yaml:"kdcAddress"`
	KDCProxyAddress string `env:"LDAPWS_KDC_PROXY_ADDRESS" yaml:"kdcProxyAddress"`

	DebugHTTP bool `env:"LDAPWS_DEBUG_HTTP" yaml:"debugHTTP"`
}

// Profile is a connection profile file. Pointer fields distinguish "not set"
// from false.
type Profile struct {
	Address         string        `yaml:"address"`
	BindDN          string        `yaml:"bindDN"`
	Password        string        `yaml:"password"`
	VerifyMessageID *bool         `yaml:"verifyMessageID"`
	DialTimeout     time.Duration `yaml:"dialTimeout"`
	Subprotocols    []string      `yaml:"subprotocols"`
	LogLevel        string        `yaml:"logLevel"`
	Trace           *bool         `yaml:"trace"`

	Domain          string `yaml:"domain"`
	KDCAddress      string `yaml:"kdcAddress"`
	KDCProxyAddress string `yaml:"kdcProxyAddress"`
}

// LoadConfig reads .env.local (if present) and the environment, then
// overlays the profile at profilePath when one is given. Anything set in the
// profile wins over the environment.
func LoadConfig(ctx context.Context, profilePath string) (*Config, error) {
	config := Config{}

	if err := godotenv.Load(".env.local"); err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	}

	if err := envconfig.Process(ctx, &config); err != nil {
		return nil, err
	}

	if profilePath == "" {
		return &config, nil
	}

	profile, err := LoadProfile(profilePath)
	if err != nil {
		return nil, err
	}

	config.Merge(profile)

	return &config, nil
}

func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	profile := Profile{}
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, err
	}

	return &profile, nil
}

// Merge overwrites config fields with every field set in profile.
func (c *Config) Merge(profile *Profile) {
	if profile == nil {
		return
	}

	if profile.Address != "" {
		c.Address = profile.Address
	}
	if profile.BindDN != "" {
		c.BindDN = profile.BindDN
	}
	if profile.Password != "" {
		c.Password = profile.Password
	}
	if profile.VerifyMessageID != nil {
		c.VerifyMessageID = *profile.VerifyMessageID
	}
	if profile.DialTimeout > 0 {
		c.DialTimeout = profile.DialTimeout
	}
	if len(profile.Subprotocols) > 0 {
		c.Subprotocols = profile.Subprotocols
	}
	if profile.LogLevel != "" {
		c.LogLevel = profile.LogLevel
	}
	if profile.Trace != nil {
		c.Trace = *profile.Trace
	}
	if profile.Domain != "" {
		c.Domain = profile.Domain
	}
	if profile.KDCAddress != "" {
		c.KDCAddress = profile.KDCAddress
	}
	if profile.KDCProxyAddress != "" {
		c.KDCProxyAddress = profile.KDCProxyAddress
	}
}
