package config

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"matchfeed.com/pkg/logger"
)

// Load reads config/{service}.yaml (or ./{service}.yaml) into out.
// defaults are applied first so a missing key still unmarshals.
func Load(service string, out interface{}, defaults map[string]interface{}) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigName(service)
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(".") // 兜底

	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	// 环境变量覆盖，例如：
	//   EXCHANGE_HTTP_ADDR 覆盖 http.addr
	//   EXCHANGE_FEED_BROKER 覆盖 feed.broker
	v.SetEnvPrefix(strings.ToUpper(service))
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || len(defaults) == 0 {
			return nil, err
		}
		log.Printf("[%s] no config file, running on defaults", service)
	} else {
		log.Printf("[%s] config loaded from %s", service, v.ConfigFileUsed())
	}

	if err := v.Unmarshal(out); err != nil {
		return nil, err
	}
	return v, nil
}

// Watch 监听文件变更，每次都 unmarshal 到一个新的 T 再回调，
// 调用方拿到的是一份独立的快照，不和正在使用的配置共享内存。
func Watch[T any](v *viper.Viper, service string, onChange func(T)) {
	var mu sync.Mutex
	v.OnConfigChange(func(e fsnotify.Event) {
		mu.Lock()
		defer mu.Unlock()

		ctx := context.Background()
		logger.Info(ctx, "config file changed", zap.String("service", service), zap.String("file", e.Name))
		var next T
		if err := v.Unmarshal(&next); err != nil {
			logger.Error(ctx, "reload config error", zap.String("service", service), zap.Error(err))
			return
		}
		onChange(next)
		logger.Info(ctx, "config reloaded OK", zap.String("service", service))
	})
	v.WatchConfig()
}
