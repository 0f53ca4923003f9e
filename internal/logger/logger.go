package logger

import (
	"os"

	log "github.com/sirupsen/logrus"
)

// Init configures the global logrus logger.
// It is safe to call multiple times; later calls overwrite previous settings.
func Init() {
	InitWithLevel(os.Getenv("LOG_LEVEL"))
}

// InitWithLevel 与 Init 相同，但日志级别由调用方给出（为空时使用 info）
func InitWithLevel(levelStr string) {
	log.SetOutput(os.Stdout)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	if levelStr == "" {
		levelStr = "info"
	}
	if lvl, err := log.ParseLevel(levelStr); err == nil {
		log.SetLevel(lvl)
	} else {
		log.SetLevel(log.InfoLevel)
	}
}

// L returns the global logger for convenience.
func L() *log.Logger { return log.StandardLogger() }

// WithMessage 返回带有频道与消息 ID 字段的日志条目（转发链路使用）
func WithMessage(channelID, messageID string) *log.Entry {
	return log.StandardLogger().WithFields(log.Fields{
		"channel_id": channelID,
		"message_id": messageID,
	})
}
