package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	Log *zap.Logger
)

func init() {
	// 默认 Nop，库代码和单元测试不调用 Init 也能打日志
	Log = zap.NewNop()
}

// New 按运行环境构建 Logger，每条日志带 service 字段，区分 multisig-server 和 multisig-cli
// test 环境返回 Nop，避免单测输出签名流程日志
func New(env, service string) (*zap.Logger, error) {
	if env == "test" {
		return zap.NewNop(), nil
	}

	var config zap.Config
	if env == "production" {
		config = zap.NewProductionConfig()
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	config.InitialFields = map[string]interface{}{"service": service}

	return config.Build(zap.AddCallerSkip(1))
}

// Init 初始化全局 Logger，进程入口调用一次
func Init(env, service string) {
	l, err := New(env, service)
	if err != nil {
		panic(err)
	}
	Log = l
	zap.ReplaceGlobals(Log)
}

// Named 返回带组件名的子 Logger，例如 logger.Named("ledger")
// 返回值不经过包装函数，需要去掉 New 里加的 CallerSkip
func Named(component string) *zap.Logger {
	return Log.WithOptions(zap.AddCallerSkip(-1)).Named(component)
}

// Sync flushes any buffered log entries
func Sync() {
	_ = Log.Sync()
}

func Info(msg string, fields ...zap.Field) {
	Log.Info(msg, fields...)
}

func Warn(msg string, fields ...zap.Field) {
	Log.Warn(msg, fields...)
}

func Error(msg string, fields ...zap.Field) {
	Log.Error(msg, fields...)
}

func Fatal(msg string, fields ...zap.Field) {
	Log.Fatal(msg, fields...)
}

func Debug(msg string, fields ...zap.Field) {
	Log.Debug(msg, fields...)
}
