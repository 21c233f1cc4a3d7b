package main

import (
	"go.uber.org/zap"

	"github.com/Ikey168/IKOS-sub006/pkg/config"
	"github.com/Ikey168/IKOS-sub006/pkg/stack"
)

// loadStack reads the configuration at configPath and brings up a
// Stack from it, logging through a production zap logger (spec §9's
// ambient logging expectation; every other package already defaults to
// zap.NewNop when handed a nil logger, so tests never need this path).
func loadStack(configPath string) (*stack.Stack, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	log, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}
	return stack.New(cfg, log)
}
