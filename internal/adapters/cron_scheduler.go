package adapters

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"

	"storagectl/internal/ports"
	"storagectl/internal/types"
)

// CronScheduler edits a user's crontab through the crontab binary.
type CronScheduler struct {
	Runner ports.CommandRunnerPort
	User   string
}

func NewCronScheduler(runner ports.CommandRunnerPort, user string) CronScheduler {
	return CronScheduler{Runner: runner, User: user}
}

// UpsertEntry replaces any line running command with a single entry at
// schedule. An identical existing entry leaves the crontab untouched.
func (s CronScheduler) UpsertEntry(ctx context.Context, schedule string, command string) error {
	schedule = strings.TrimSpace(schedule)
	command = strings.TrimSpace(command)
	if len(strings.Fields(schedule)) != 5 {
		return errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg(fmt.Sprintf("invalid cron schedule %q", schedule))
	}
	if command == "" {
		return errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("cron command is empty")
	}
	lines, err := s.read(ctx)
	if err != nil {
		return err
	}
	entry := schedule + " " + command
	var kept []string
	found := false
	for _, line := range lines {
		if strings.Contains(line, command) {
			if line == entry && !found {
				kept = append(kept, line)
				found = true
			}
			continue
		}
		kept = append(kept, line)
	}
	if found && len(kept) == len(lines) {
		return nil
	}
	if !found {
		kept = append(kept, entry)
	}
	return s.write(ctx, kept)
}

// RemoveEntriesMatching drops every line matching pattern and returns how
// many were removed.
func (s CronScheduler) RemoveEntriesMatching(ctx context.Context, pattern string) (int, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return 0, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("invalid cron pattern").
			WithCause(err)
	}
	lines, err := s.read(ctx)
	if err != nil {
		return 0, err
	}
	var kept []string
	removed := 0
	for _, line := range lines {
		if !strings.HasPrefix(strings.TrimSpace(line), "#") && re.MatchString(line) {
			removed++
			continue
		}
		kept = append(kept, line)
	}
	if removed == 0 {
		return 0, nil
	}
	return removed, s.write(ctx, kept)
}

func (s CronScheduler) read(ctx context.Context) ([]string, error) {
	result, err := s.Runner.Run(ctx, "crontab", s.args("-l"), types.RunOptions{})
	if err != nil {
		return nil, err
	}
	if !result.Success() {
		if strings.Contains(strings.ToLower(result.Stderr), "no crontab") {
			return nil, nil
		}
		return nil, commandError(result)
	}
	var lines []string
	for _, line := range strings.Split(result.Stdout, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines, nil
}

func (s CronScheduler) write(ctx context.Context, lines []string) error {
	content := strings.Join(lines, "\n")
	if content != "" {
		content += "\n"
	}
	_, err := runChecked(ctx, s.Runner, types.RunOptions{Stdin: content}, "crontab", s.args("-")...)
	return err
}

func (s CronScheduler) args(arg string) []string {
	if strings.TrimSpace(s.User) == "" {
		return []string{arg}
	}
	return []string{"-u", s.User, arg}
}

var _ ports.SchedulerPort = CronScheduler{}
