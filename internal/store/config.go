package store

import (
	"fmt"

	"github.com/go-git/go-billy/v5"
	"github.com/sirupsen/logrus"

	"fdstore/internal/common"
)

// Config configures a Store.
type Config struct {
	// DirPath is the directory holding the backing files, one per short path.
	// Created if missing. Required unless Filesystem is set.
	DirPath string

	// MaxOpenFiles is the file-descriptor budget: the maximum number of
	// backing files the store holds open at once. Must be >= 1.
	MaxOpenFiles int

	// Logger receives scheduler and worker logs. Optional; silent if nil.
	Logger *logrus.Logger

	// Filesystem overrides the backing filesystem. Optional; defaults to the
	// OS filesystem rooted at DirPath. When set, DirPath is not touched and
	// no directory lock is taken.
	Filesystem billy.Filesystem
}

func (cfg *Config) validate() error {
	if cfg.DirPath == "" && cfg.Filesystem == nil {
		return fmt.Errorf("%w: dir path is required", common.ErrInvalidConfig)
	}
	if cfg.MaxOpenFiles < 1 {
		return fmt.Errorf("%w: max open files must be >= 1, got %d",
			common.ErrInvalidConfig, cfg.MaxOpenFiles)
	}
	return nil
}
