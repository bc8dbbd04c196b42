package logger

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

var InfoLogger, FatalLogger *zap.Logger

var (
	serviceName = "default"
	initOnce    sync.Once
)

func SetServiceName(newName string) string {
	oldName := serviceName
	serviceName = newName

	return oldName
}

// ensure: если логгеры не собрали явно — поднимаем продакшн-конфиг сами.
func ensure() {
	initOnce.Do(func() {
		if InfoLogger == nil {
			l, err := zap.NewProduction()
			if err != nil {
				l = zap.NewNop()
			}
			InfoLogger = l
		}
		if FatalLogger == nil {
			FatalLogger = InfoLogger
		}
	})
}

func Info(format string, args ...interface{}) {
	ensure()

	msg := fmt.Sprintf(format, args...)
	InfoLogger.With(
		zap.String("service", serviceName),
	).Info(msg)
}

func Error(format string, args ...interface{}) {
	ensure()

	msg := fmt.Sprintf(format, args...)
	InfoLogger.With(
		zap.String("service", serviceName),
	).Error(msg)
}

func Fatal(format string, args ...interface{}) {
	ensure()

	msg := fmt.Sprintf(format, args...)
	FatalLogger.With(
		zap.String("service", serviceName),
	).Fatal(msg)
}
