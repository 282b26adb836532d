// Package action performs the local side effect bound to an expression: a key press
// injected by an operator-supplied command such as xdotool.
package action

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/onnwee/livecue/telemetry"
)

// KeyPlaceholder is replaced with the action key in command templates.
const KeyPlaceholder = "{key}"

// DefaultTimeout bounds one command invocation.
const DefaultTimeout = 2 * time.Second

// Executor fires an action. Failures are logged by the executor, never returned.
type Executor interface {
	Trigger(ctx context.Context, actionKey string)
}

// KeyCommand runs Argv with KeyPlaceholder substituted. No shell is involved: the key
// always lands in its own argv element.
type KeyCommand struct {
	Argv    []string
	Timeout time.Duration
}

// NewKeyCommand parses a whitespace-separated template like "xdotool key {key}".
func NewKeyCommand(template string, timeout time.Duration) (*KeyCommand, error) {
	argv := strings.Fields(template)
	if len(argv) == 0 {
		return nil, errors.New("action command empty")
	}
	if !strings.Contains(template, KeyPlaceholder) {
		return nil, fmt.Errorf("action command %q has no %s placeholder", template, KeyPlaceholder)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &KeyCommand{Argv: argv, Timeout: timeout}, nil
}

// Args returns the argv for actionKey.
func (k *KeyCommand) Args(actionKey string) []string {
	out := make([]string, len(k.Argv))
	for i, a := range k.Argv {
		out[i] = strings.ReplaceAll(a, KeyPlaceholder, actionKey)
	}
	return out
}

// Run executes the command for actionKey and returns its error.
func (k *KeyCommand) Run(ctx context.Context, actionKey string) error {
	ctx, cancel := context.WithTimeout(ctx, k.Timeout)
	defer cancel()
	args := k.Args(actionKey)
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("%s: %w: %s", args[0], err, msg)
		}
		return fmt.Errorf("%s: %w", args[0], err)
	}
	return nil
}

// Trigger implements Executor.
func (k *KeyCommand) Trigger(ctx context.Context, actionKey string) {
	log := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "action"), slog.String("key", actionKey))
	var err error
	telemetry.TimeFunc(telemetry.ActionDuration, func() { err = k.Run(ctx, actionKey) })
	if err != nil {
		telemetry.IncActionFailure(actionKey)
		log.Error("action command failed", slog.Any("err", err))
		return
	}
	log.Debug("action command ok")
}

// LogOnly records triggers without side effects (ACTION_DRY_RUN).
type LogOnly struct{}

// Trigger implements Executor.
func (LogOnly) Trigger(ctx context.Context, actionKey string) {
	telemetry.LoggerWithCorr(ctx).Info("dry-run action", slog.String("component", "action"), slog.String("key", actionKey))
}
