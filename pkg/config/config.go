package config

import "time"

type Config struct {
	App           AppConfig           `mapstructure:"app"`
	HTTP          HTTPConfig          `mapstructure:"http"`
	OCPI          OCPIConfig          `mapstructure:"ocpi"`
	CommandLog    CommandLogConfig    `mapstructure:"command_log"`
	Redis         RedisConfig         `mapstructure:"redis"`
	NATS          NATSConfig          `mapstructure:"nats"`
	OpenTelemetry OpenTelemetryConfig `mapstructure:"opentelemetry"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Parties       []PartyConfig       `mapstructure:"parties"`
	PreShared     []PreSharedToken    `mapstructure:"pre_shared_tokens"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type HTTPConfig struct {
	Port           int           `mapstructure:"port"`
	ExternalURL    string        `mapstructure:"external_url"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
}

type OCPIConfig struct {
	// AllowDowngrades lets PUT/PATCH with an older last_updated replace
	// newer state. Counterparties can carry a per-party override.
	AllowDowngrades bool `mapstructure:"allow_downgrades"`
	// KeepRemovedEVSEs keeps EVSEs that transition to REMOVED in the
	// location instead of dropping them from the map.
	KeepRemovedEVSEs bool          `mapstructure:"keep_removed_evses"`
	ClientTimeout    time.Duration `mapstructure:"client_timeout"`
}

type CommandLogConfig struct {
	Directory string `mapstructure:"directory"`
}

type RedisConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
}

type NATSConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
}

type OpenTelemetryConfig struct {
	Enabled     bool         `mapstructure:"enabled"`
	ServiceName string       `mapstructure:"service_name"`
	Jaeger      JaegerConfig `mapstructure:"jaeger"`
}

type JaegerConfig struct {
	Endpoint string `mapstructure:"endpoint"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// PartyConfig declares a platform-local party the node keeps entity data for.
type PartyConfig struct {
	CountryCode     string `mapstructure:"country_code"`
	PartyID         string `mapstructure:"party_id"`
	Role            string `mapstructure:"role"`
	Name            string `mapstructure:"name"`
	Website         string `mapstructure:"website"`
	AllowDowngrades bool   `mapstructure:"allow_downgrades"`
}

// PreSharedToken is a registration token handed out out-of-band. The named
// counterparty can use it to start the credentials handshake.
type PreSharedToken struct {
	Token       string `mapstructure:"token"`
	CountryCode string `mapstructure:"country_code"`
	PartyID     string `mapstructure:"party_id"`
	Role        string `mapstructure:"role"`
	Name        string `mapstructure:"name"`
}
