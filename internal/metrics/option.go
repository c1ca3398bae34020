package metrics

// Provider identifies a metric exporter backend.
type Provider string

const (
	PrometheusProvider Provider = "prometheus"
	OtelCollector      Provider = "customOtelCollector"
)

// Config holds meter provider configuration.
type Config struct {
	ServiceName string
	Provider    []ProviderCfg
}

// ProviderCfg configures a single exporter.
type ProviderCfg struct {
	Provider Provider
	Endpoint string
	Headers  map[string]string
	Insecure bool
}

// OptionFn mutates Config.
type OptionFn func(config Config) Config

// WithProviderConfig appends an exporter config.
func WithProviderConfig(provider ProviderCfg) OptionFn {
	return func(config Config) Config {
		config.Provider = append(config.Provider, provider)
		return config
	}
}

// WithServiceName sets the service resource attribute.
func WithServiceName(name string) OptionFn {
	return func(config Config) Config {
		config.ServiceName = name
		return config
	}
}

// PromServerConfig configures the Prometheus exposition endpoint.
type PromServerConfig struct {
	port string
}

// PromOptionFn mutates PromServerConfig.
type PromOptionFn func(PromServerConfig) PromServerConfig

// WithPort sets the exposition port.
func WithPort(port string) PromOptionFn {
	return func(cfg PromServerConfig) PromServerConfig {
		cfg.port = port
		return cfg
	}
}
