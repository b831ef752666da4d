package main

import (
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/arzzra/voip_client/pkg/rtp"
)

// AddressConfig IP адрес и RTP порт
type AddressConfig struct {
	IP   string `yaml:"ip"`
	Port int    `yaml:"port"`
}

func (a AddressConfig) String() string {
	if a.IP == "" {
		return ""
	}
	return net.JoinHostPort(a.IP, strconv.Itoa(a.Port))
}

// AppConfig конфигурация приложения
type AppConfig struct {
	Local       AddressConfig `yaml:"local"`
	Remote      AddressConfig `yaml:"remote"`
	Encoder     string        `yaml:"encoder"`
	Decoders    []string      `yaml:"decoders"`
	DSCP        int           `yaml:"dscp"`
	MetricsAddr string        `yaml:"metrics_addr"`
	AudioDevice bool          `yaml:"audio_device"`
	LogLevel    string        `yaml:"log_level"`
	AutoStart   bool          `yaml:"auto_start"` // запустить сессию сразу после старта
}

func defaultAppConfig() AppConfig {
	return AppConfig{
		Local:    AddressConfig{Port: 10000},
		Remote:   AddressConfig{IP: "127.0.0.1", Port: 20000},
		Encoder:  "PCMU",
		Decoders: []string{"PCMU", "PCMA", "G722"},
		DSCP:     rtp.DSCPExpeditedForwarding,
		LogLevel: "info",
	}
}

// loadAppConfig читает YAML поверх значений по умолчанию
func loadAppConfig(path string) (AppConfig, error) {
	config := defaultAppConfig()
	if path == "" {
		return config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return config, fmt.Errorf("ошибка чтения конфигурации: %w", err)
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return config, fmt.Errorf("ошибка разбора конфигурации %s: %w", path, err)
	}
	return config, nil
}

// Validate проверяет конфигурацию
func (c AppConfig) Validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("неверный уровень логирования: %w", err)
	}
	for name, addr := range map[string]AddressConfig{"local": c.Local, "remote": c.Remote} {
		if addr.IP != "" && net.ParseIP(addr.IP) == nil {
			return fmt.Errorf("%s: некорректный IP адрес %q", name, addr.IP)
		}
		if addr.Port < 0 || addr.Port > 65534 {
			return fmt.Errorf("%s: порт %d вне диапазона", name, addr.Port)
		}
	}
	if c.DSCP < 0 || c.DSCP > 63 {
		return fmt.Errorf("DSCP %d вне диапазона 0..63", c.DSCP)
	}
	return nil
}

// parseAddress разбирает строку host:port
func parseAddress(s string) (AddressConfig, error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return AddressConfig{}, fmt.Errorf("ожидается ip:port: %w", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return AddressConfig{}, fmt.Errorf("некорректный порт %q", portStr)
	}
	return AddressConfig{IP: host, Port: port}, nil
}
