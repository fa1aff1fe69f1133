package config

import (
	"fmt"
	"strings"
	"time"

	"hdlc-toolkit/arq"
	"hdlc-toolkit/checksum"
	"hdlc-toolkit/link"
	"hdlc-toolkit/netem"

	"github.com/BurntSushi/toml"
)

const defaultMetricsNamespace = "hdlc"

type Config struct {
	Link    link.Config
	Netem   netem.Config
	Metrics MetricsConfig
}

type MetricsConfig struct {
	// Address of the HTTP listener serving /metrics. Empty disables it.
	Listen    string
	Namespace string
}

func Default() Config {
	return Config{
		Link:    link.DefaultConfig(),
		Netem:   netem.DefaultConfig(),
		Metrics: MetricsConfig{Namespace: defaultMetricsNamespace},
	}
}

// config.toml key mapping, one table per component.
type fileConfig struct {
	Link    linkSection    `toml:"link"`
	Netem   netemSection   `toml:"netem"`
	Metrics metricsSection `toml:"metrics"`
}

type linkSection struct {
	Checksum     string `toml:"checksum"`
	Window       int    `toml:"window"`
	Retries      int    `toml:"retries"`
	RetryTimeout string `toml:"retry_timeout"`
	KeepAlive    string `toml:"keep_alive"`
	MTU          int    `toml:"mtu"`
	RxBufferSize int    `toml:"rx_buffer_size"`
	AckPolicy    string `toml:"ack_policy"`
	Address      int    `toml:"address"`
	PollInterval string `toml:"poll_interval"`
	RecvBacklog  int    `toml:"recv_backlog"`
	CloseTimeout string `toml:"close_timeout"`
}

type netemSection struct {
	ReadLossNth       int   `toml:"read_loss_nth"`
	ReadDuplicateNth  int   `toml:"read_duplicate_nth"`
	WriteFragmentSize int   `toml:"write_fragment_size"`
	WriteLossNth      int   `toml:"write_loss_nth"`
	WriteLossAt       []int `toml:"write_loss_at"`
	WriteDuplicateNth int   `toml:"write_duplicate_nth"`
	WriteReorderNth   int   `toml:"write_reorder_nth"`
	WriteCorruptNth   int   `toml:"write_corrupt_nth"`
}

type metricsSection struct {
	Listen    string `toml:"listen"`
	Namespace string `toml:"namespace"`
}

// Load decodes the TOML file at path over Default. Keys missing from the
// file keep their default values.
func Load(path string) (Config, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	cfg, err := apply(Default(), meta, raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

// Decode is Load for configuration held in memory.
func Decode(data string) (Config, error) {
	var raw fileConfig
	meta, err := toml.Decode(data, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg, err := apply(Default(), meta, raw)
	if err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

func apply(cfg Config, meta toml.MetaData, raw fileConfig) (Config, error) {
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("unknown key %q", undecoded[0].String())
	}
	if err := applyLink(&cfg.Link, meta, raw.Link); err != nil {
		return Config{}, err
	}
	applyNetem(&cfg.Netem, meta, raw.Netem)

	if meta.IsDefined("metrics", "listen") {
		cfg.Metrics.Listen = strings.TrimSpace(raw.Metrics.Listen)
	}
	if meta.IsDefined("metrics", "namespace") {
		cfg.Metrics.Namespace = strings.TrimSpace(raw.Metrics.Namespace)
	}

	if err := cfg.Link.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyLink(cfg *link.Config, meta toml.MetaData, raw linkSection) error {
	defined := func(key string) bool {
		return meta.IsDefined("link", key)
	}
	var err error
	if defined("checksum") {
		if cfg.Checksum, err = checksum.ParseMode(strings.TrimSpace(raw.Checksum)); err != nil {
			return err
		}
	}
	if defined("window") {
		cfg.Window = raw.Window
	}
	if defined("retries") {
		cfg.Retries = raw.Retries
	}
	if defined("retry_timeout") {
		if cfg.RetryTimeout, err = parseDuration("retry_timeout", raw.RetryTimeout); err != nil {
			return err
		}
	}
	if defined("keep_alive") {
		if cfg.KeepAlive, err = parseDuration("keep_alive", raw.KeepAlive); err != nil {
			return err
		}
	}
	if defined("mtu") {
		cfg.MTU = raw.MTU
	}
	if defined("rx_buffer_size") {
		if raw.RxBufferSize <= 0 {
			return fmt.Errorf("rx_buffer_size must be positive")
		}
		cfg.RxBuffer = make([]byte, raw.RxBufferSize)
	}
	if defined("ack_policy") {
		if cfg.AckPolicy, err = arq.ParseAckPolicy(strings.TrimSpace(raw.AckPolicy)); err != nil {
			return err
		}
	}
	if defined("address") {
		if raw.Address < 0 || raw.Address > 0x3F {
			return fmt.Errorf("address %d not in [0, 63]", raw.Address)
		}
		cfg.Address = uint8(raw.Address)
	}
	if defined("poll_interval") {
		if cfg.PollInterval, err = parseDuration("poll_interval", raw.PollInterval); err != nil {
			return err
		}
	}
	if defined("recv_backlog") {
		cfg.RecvBacklog = raw.RecvBacklog
	}
	if defined("close_timeout") {
		if cfg.CloseTimeout, err = parseDuration("close_timeout", raw.CloseTimeout); err != nil {
			return err
		}
	}
	return nil
}

func applyNetem(cfg *netem.Config, meta toml.MetaData, raw netemSection) {
	defined := func(key string) bool {
		return meta.IsDefined("netem", key)
	}
	if defined("read_loss_nth") {
		cfg.ReadLossNth = raw.ReadLossNth
	}
	if defined("read_duplicate_nth") {
		cfg.ReadDuplicateNth = raw.ReadDuplicateNth
	}
	if defined("write_fragment_size") {
		cfg.WriteFragmentSize = raw.WriteFragmentSize
	}
	if defined("write_loss_nth") {
		cfg.WriteLossNth = raw.WriteLossNth
	}
	if defined("write_loss_at") {
		cfg.WriteLossAt = append([]int(nil), raw.WriteLossAt...)
	}
	if defined("write_duplicate_nth") {
		cfg.WriteDuplicateNth = raw.WriteDuplicateNth
	}
	if defined("write_reorder_nth") {
		cfg.WriteReorderNth = raw.WriteReorderNth
	}
	if defined("write_corrupt_nth") {
		cfg.WriteCorruptNth = raw.WriteCorruptNth
	}
}

func parseDuration(key, s string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
