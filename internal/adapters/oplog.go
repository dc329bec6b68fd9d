package adapters

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"

	"storagectl/internal/types"
)

// OperationLogPath is the JSON-lines log every run of op appends to.
func OperationLogPath(logDir string, op types.Operation) string {
	return filepath.Join(logDir, string(op)+".log")
}

// OpenOperationLog opens the operation's log for appending. Not being
// able to create it is an environment failure that ends the run.
func OpenOperationLog(logDir string, op types.Operation) (*os.File, error) {
	if strings.TrimSpace(logDir) == "" {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("log directory is empty")
	}
	if err := os.MkdirAll(logDir, 0o750); err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("cannot create log directory " + logDir).
			WithCause(err)
	}
	file, err := os.OpenFile(OperationLogPath(logDir, op), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("cannot open operation log").
			WithCause(err)
	}
	return file, nil
}
