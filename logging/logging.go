// Package logging builds the zap logger shared by the binaries.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/warp/enrollment-engine/config"
)

// New returns a production logger in production and a development logger
// otherwise. An unparsable level falls back to info.
func New(cfg *config.Config) (*zap.Logger, error) {
	return zapConfig(cfg).Build()
}

// NewFile is like New but writes JSON lines to path instead of stderr, so
// an interactive terminal is not interleaved with log output.
func NewFile(cfg *config.Config, path string) (*zap.Logger, error) {
	zapCfg := zapConfig(cfg)
	zapCfg.Encoding = "json"
	zapCfg.OutputPaths = []string{path}
	zapCfg.ErrorOutputPaths = []string{path}
	return zapCfg.Build()
}

func zapConfig(cfg *config.Config) zap.Config {
	var zapCfg zap.Config
	if cfg.Env == config.EnvProduction {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}

	switch cfg.Log.Format {
	case "json":
		zapCfg.Encoding = "json"
	default:
		zapCfg.Encoding = "console"
	}

	if cfg.Log.Level != "" {
		if err := zapCfg.Level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
			zapCfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
		}
	}

	zapCfg.EncoderConfig.TimeKey = "timestamp"
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return zapCfg
}
