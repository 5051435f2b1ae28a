package env

import (
	"fmt"

	"github.com/caarlos0/env"
)

// BrokerConfig holds every environment-driven setting the broker reads
// at startup. Nothing here is ever re-read once the process has started;
// config loading and protocol behavior are kept strictly separate.
type BrokerConfig struct {
	Port             string `env:"PORT" envDefault:"8889"`
	LogLevel         string `env:"LOG_LEVEL" envDefault:"info"`
	FanoutBufferSize int    `env:"FANOUT_BUFFER_SIZE" envDefault:"1024"`
	DashboardAddr    string `env:"DASHBOARD_ADDR"`
}

func (cnf BrokerConfig) info() (string, error) {
	return fmt.Sprintf("port: %s log_level: %s fanout_buffer_size: %d", cnf.Port, cnf.LogLevel, cnf.FanoutBufferSize), nil
}

// ReadBrokerConfig parses BrokerConfig from the process environment,
// applying the defaults above for anything unset.
func ReadBrokerConfig() (*BrokerConfig, error) {
	cfg := &BrokerConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// String renders the config for startup logging.
func (cnf BrokerConfig) String() string {
	info, _ := cnf.info()
	return info
}
