package core

import (
	"context"
	"fmt"
	"strings"

	assert "github.com/ZanzyTHEbar/assert-lib"
	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"

	"storagectl/internal/ports"
	"storagectl/internal/types"
)

// Gate blocks destructive operations until the operator types the exact
// confirmation literal.
type Gate struct {
	Prompter ports.PrompterPort
}

func NewGate(prompter ports.PrompterPort) Gate {
	return Gate{Prompter: prompter}
}

// ConfirmationLiteral is the text an operator must type to approve op.
func ConfirmationLiteral(op types.Operation) string {
	switch op {
	case types.OperationInstall:
		return "OVERWRITE"
	default:
		return strings.ToUpper(string(op))
	}
}

// Confirm returns true when the operation may proceed. Any answer other
// than the literal, including a failed read, is a cancellation and not
// an error.
func (g Gate) Confirm(ctx context.Context, op types.Operation, opts types.Options, summary string) (bool, error) {
	if !op.Destructive(opts) || opts.SkipConfirm {
		return true, nil
	}
	if g.Prompter == nil {
		return false, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("confirmation required: rerun with --yes")
	}
	literal := ConfirmationLiteral(op)
	assert.NotEmpty(ctx, literal, "confirmation literal must be set")
	message := fmt.Sprintf("%s\nType %s to continue: ", strings.TrimSpace(summary), literal)
	answer, err := g.Prompter.Prompt(ctx, message)
	if err != nil {
		log.Ctx(ctx).Debug().Err(err).Msg("confirmation prompt failed")
		return false, nil
	}
	answer = strings.TrimSuffix(answer, "\n")
	answer = strings.TrimSuffix(answer, "\r")
	if answer != literal {
		log.Ctx(ctx).Info().Str("operation", string(op)).Msg("confirmation not given")
		return false, nil
	}
	return true, nil
}
