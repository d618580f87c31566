package config

import (
	"fmt"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Watch reloads path whenever it changes on disk and hands the decoded
// config to onChange. Decode or validation failures go to onError and the
// previous config stays in effect.
func Watch(path string, onChange func(*Config), onError func(error)) error {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		handleChange(v, e, onChange, onError)
	})
	v.WatchConfig()
	return nil
}

func handleChange(v *viper.Viper, e fsnotify.Event, onChange func(*Config), onError func(error)) {
	if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
		return
	}
	cfg, err := decode(v)
	if err != nil {
		if onError != nil {
			onError(fmt.Errorf("reload %s: %w", e.Name, err))
		}
		return
	}
	if onChange != nil {
		onChange(cfg)
	}
}

// Dump renders the effective config, defaults included, as YAML.
func Dump(cfg *Config) ([]byte, error) {
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return out, nil
}
