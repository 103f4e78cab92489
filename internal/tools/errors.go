package tools

import (
	"errors"
)

var (
	ErrToolNotFound          = errors.New("tool not found")
	ErrToolAlreadyRegistered = errors.New("tool already registered")
	ErrMissingRequiredArg    = errors.New("missing required argument")
	ErrInvalidArgType        = errors.New("invalid argument type")
	ErrInvalidTool           = errors.New("invalid tool")
	ErrPathEscape            = errors.New("path escapes the workspace root")
	ErrNoEnv                 = errors.New("tool requires a namespace environment")
)
