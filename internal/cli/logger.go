package cli

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// newLogger returns a JSON debug logger on stderr when verbose, otherwise a
// no-op logger.
func newLogger(globals *Globals) *zap.Logger {
	if globals == nil || !globals.Verbose || globals.Stderr == nil {
		return zap.NewNop()
	}
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encCfg),
		zapcore.Lock(zapcore.AddSync(globals.Stderr)),
		zap.DebugLevel,
	)
	return zap.New(core).With(zap.String("component", "wfsum"))
}
