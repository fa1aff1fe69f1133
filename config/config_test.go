package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"hdlc-toolkit/arq"
	"hdlc-toolkit/checksum"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.Nil(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaultsAndOverrides(t *testing.T) {
	require := require.New(t)
	path := writeConfig(t, `
[link]
checksum = "crc32"
window = 7
retry_timeout = "50ms"
keep_alive = "0s"
mtu = 512
ack_policy = "immediate"
address = 5
poll_interval = "2ms"

[netem]
write_loss_nth = 3
write_loss_at = [1, 4]

[metrics]
listen = " 127.0.0.1:9100 "
`)
	cfg, err := Load(path)
	require.Nil(err)

	def := Default()
	require.Equal(checksum.CRC32, cfg.Link.Checksum)
	require.Equal(7, cfg.Link.Window)
	require.Equal(def.Link.Retries, cfg.Link.Retries)
	require.Equal(50*time.Millisecond, cfg.Link.RetryTimeout)
	require.Equal(time.Duration(0), cfg.Link.KeepAlive)
	require.Equal(512, cfg.Link.MTU)
	require.Equal(arq.AckImmediate, cfg.Link.AckPolicy)
	require.Equal(uint8(5), cfg.Link.Address)
	require.Equal(2*time.Millisecond, cfg.Link.PollInterval)
	require.Equal(def.Link.RecvBacklog, cfg.Link.RecvBacklog)

	require.Equal(3, cfg.Netem.WriteLossNth)
	require.Equal([]int{1, 4}, cfg.Netem.WriteLossAt)
	require.Equal(0, cfg.Netem.ReadLossNth)

	require.Equal("127.0.0.1:9100", cfg.Metrics.Listen)
	require.Equal(defaultMetricsNamespace, cfg.Metrics.Namespace)
}

func TestLoadEmpty(t *testing.T) {
	require := require.New(t)
	cfg, err := Load(writeConfig(t, ""))
	require.Nil(err)
	def := Default()
	require.Equal(def.Link.Checksum, cfg.Link.Checksum)
	require.Equal(def.Link.Window, cfg.Link.Window)
	require.Equal(def.Link.RetryTimeout, cfg.Link.RetryTimeout)
	require.Equal(def.Metrics, cfg.Metrics)
}

func TestLoadRxBuffer(t *testing.T) {
	require := require.New(t)
	cfg, err := Decode(`
[link]
mtu = 16
rx_buffer_size = 64
`)
	require.Nil(err)
	require.Len(cfg.Link.RxBuffer, 64)

	_, err = Decode(`
[link]
mtu = 128
rx_buffer_size = 64
`)
	require.ErrorIs(err, arq.ErrInvalidConfig)
}

func TestLoadErrors(t *testing.T) {
	tests := map[string]string{
		"syntax":        "[link\n",
		"unknown key":   "[link]\nwindows = 3\n",
		"checksum":      "[link]\nchecksum = \"md5\"\n",
		"duration":      "[link]\nretry_timeout = \"soon\"\n",
		"ack policy":    "[link]\nack_policy = \"never\"\n",
		"address":       "[link]\naddress = 300\n",
		"window":        "[link]\nwindow = 8\n",
		"rx buffer":     "[link]\nrx_buffer_size = 0\n",
		"wrong type":    "[link]\nmtu = \"large\"\n",
		"metrics table": "metrics = 1\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, content))
			require.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}
