package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	// Logger 全局日志实例
	Logger *logrus.Logger
	// currentLogFile 当前日志文件路径
	currentLogFile string
	// savedConfig 保存的日志配置（用于周期切换）
	savedConfig Config
	// currentCycleTs 当前周期时间戳（市场周期，0 表示未设置）
	currentCycleTs int64
	// logMu 日志文件切换锁
	logMu sync.Mutex
)

// Config 日志配置
type Config struct {
	Level      string // 日志级别: debug, info, warn, error
	OutputFile string // 日志文件路径（为空则只输出到控制台）
	MaxSize    int    // 单文件最大大小（MB）
	MaxBackups int    // 保留的旧日志文件数量
	MaxAge     int    // 保留旧日志文件的天数
	Compress   bool   // 是否压缩旧日志文件
	LogByCycle bool   // 是否按市场周期命名日志文件
}

// cycleLogFileName 按市场周期生成日志文件名：btc-updown-15m-{ts}.log
func cycleLogFileName(basePath string, cycleTs int64) string {
	dir := filepath.Dir(basePath)
	ext := filepath.Ext(basePath)
	name := fmt.Sprintf("btc-updown-15m-%d%s", cycleTs, ext)
	if dir == "." || dir == "" {
		return name
	}
	return filepath.Join(dir, name)
}

func newFormatter() *logrus.TextFormatter {
	return &logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "06-01-02 15:04:05",
		ForceColors:     true,
	}
}

func buildOutput(cfg Config, logFilePath string) (io.Writer, error) {
	writers := []io.Writer{os.Stdout}
	if logFilePath != "" {
		if err := os.MkdirAll(filepath.Dir(logFilePath), 0o755); err != nil {
			return nil, err
		}
		writers = append(writers, &lumberjack.Logger{
			Filename:   logFilePath,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		})
	}
	return io.MultiWriter(writers...), nil
}

func apply(cfg Config, logFilePath string) error {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}

	out, err := buildOutput(cfg, logFilePath)
	if err != nil {
		return err
	}

	lg := logrus.New()
	lg.SetLevel(level)
	lg.SetFormatter(newFormatter())
	lg.SetOutput(out)

	// 同步设置全局 logrus，让各处 logrus.WithField() 创建的 entry 也写入文件
	logrus.SetOutput(out)
	logrus.SetLevel(level)
	logrus.SetFormatter(newFormatter())

	Logger = lg
	currentLogFile = logFilePath
	return nil
}

// Init 初始化日志系统
func Init(cfg Config) error {
	logMu.Lock()
	defer logMu.Unlock()

	savedConfig = cfg
	logFilePath := cfg.OutputFile
	if cfg.LogByCycle && cfg.OutputFile != "" && currentCycleTs > 0 {
		logFilePath = cycleLogFileName(cfg.OutputFile, currentCycleTs)
	}
	return apply(cfg, logFilePath)
}

// InitDefault 使用默认配置初始化日志系统
func InitDefault() error {
	return Init(Config{
		Level:      "info",
		OutputFile: "logs/combined.log",
		MaxSize:    100,
		MaxBackups: 3,
		MaxAge:     7,
		Compress:   true,
		LogByCycle: true,
	})
}

// SetCycleTimestamp 设置当前市场周期时间戳并切换日志文件。
// 周期控制器在每个 15 分钟窗口开始时调用。
func SetCycleTimestamp(ts int64) {
	logMu.Lock()
	defer logMu.Unlock()

	if ts == currentCycleTs {
		return
	}
	currentCycleTs = ts

	if !savedConfig.LogByCycle || savedConfig.OutputFile == "" {
		return
	}
	newPath := cycleLogFileName(savedConfig.OutputFile, ts)
	if newPath == currentLogFile {
		return
	}
	old := currentLogFile
	if err := apply(savedConfig, newPath); err != nil {
		// 切换失败时继续写旧文件，不中断交易
		fmt.Printf("[日志切换] 失败: %v\n", err)
		return
	}
	if old != "" && Logger != nil {
		Logger.Infof("日志文件已切换到新周期: %s -> %s", old, newPath)
	}
}

// GetCurrentLogFile 获取当前日志文件路径
func GetCurrentLogFile() string {
	logMu.Lock()
	defer logMu.Unlock()
	return currentLogFile
}

// Debugf 记录格式化的 DEBUG 级别日志
func Debugf(format string, args ...interface{}) {
	if Logger != nil {
		Logger.Debugf(format, args...)
	}
}

// Infof 记录格式化的 INFO 级别日志
func Infof(format string, args ...interface{}) {
	if Logger != nil {
		Logger.Infof(format, args...)
	}
}

// Warnf 记录格式化的 WARN 级别日志
func Warnf(format string, args ...interface{}) {
	if Logger != nil {
		Logger.Warnf(format, args...)
	}
}

// Errorf 记录格式化的 ERROR 级别日志
func Errorf(format string, args ...interface{}) {
	if Logger != nil {
		Logger.Errorf(format, args...)
	}
}

// WithField 添加字段到日志上下文
func WithField(key string, value interface{}) *logrus.Entry {
	if Logger != nil {
		return Logger.WithField(key, value)
	}
	return logrus.NewEntry(logrus.New())
}

// WithFields 添加多个字段到日志上下文
func WithFields(fields logrus.Fields) *logrus.Entry {
	if Logger != nil {
		return Logger.WithFields(fields)
	}
	return logrus.NewEntry(logrus.New())
}
