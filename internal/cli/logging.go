package cli

import (
	"github.com/sirupsen/logrus"

	"quiz-attempt-service/internal/config"
)

func newLogger(cfg config.Config) *logrus.Logger {
	log := logrus.New()
	if cfg.Log.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	return log
}
