package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every key when reading the environment, e.g. TLQ_HOST.
const EnvPrefix = "TLQ"

// Load builds a Config from Default(), then the file at path (if path is not empty),
// then TLQ_* environment variables. The file format follows the extension
// (yaml, json, toml, ...). Keys:
//
//	host, port, timeout_ms, max_retries, retry_delay_ms,
//	rate_limit, rate_burst, registry_endpoints, service_name, balancer, log_level
func Load(path string) (Config, error) {
	v := viper.New()
	def := Default()
	v.SetDefault("host", def.Host)
	v.SetDefault("port", def.Port)
	v.SetDefault("timeout_ms", def.Timeout.Milliseconds())
	v.SetDefault("max_retries", def.MaxRetries)
	v.SetDefault("retry_delay_ms", def.RetryDelay.Milliseconds())
	v.SetDefault("rate_limit", def.RateLimit)
	v.SetDefault("rate_burst", def.RateBurst)
	v.SetDefault("registry_endpoints", def.RegistryEndpoints)
	v.SetDefault("service_name", def.ServiceName)
	v.SetDefault("balancer", def.Balancer)
	v.SetDefault("log_level", def.LogLevel)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	port := v.GetInt("port")
	if port < 0 || port > 65535 {
		return Config{}, fmt.Errorf("config: port %d out of range", port)
	}

	return Config{
		Host:              v.GetString("host"),
		Port:              uint16(port),
		Timeout:           time.Duration(v.GetInt64("timeout_ms")) * time.Millisecond,
		MaxRetries:        v.GetUint32("max_retries"),
		RetryDelay:        time.Duration(v.GetInt64("retry_delay_ms")) * time.Millisecond,
		RateLimit:         v.GetFloat64("rate_limit"),
		RateBurst:         v.GetInt("rate_burst"),
		RegistryEndpoints: v.GetStringSlice("registry_endpoints"),
		ServiceName:       v.GetString("service_name"),
		Balancer:          v.GetString("balancer"),
		LogLevel:          v.GetString("log_level"),
	}, nil
}
