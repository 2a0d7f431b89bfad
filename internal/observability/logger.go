package observability

import (
	"go.uber.org/zap"
)

// NewLogger builds the service logger and installs it as the zap global.
func NewLogger(environment string) (*zap.SugaredLogger, error) {
	var logger *zap.Logger
	var err error
	if environment == "production" {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	return logger.Sugar(), nil
}
