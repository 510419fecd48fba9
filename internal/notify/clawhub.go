package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vrtxceo/glove/internal/extension"
)

// Envelope is the JSON document an extension process receives on stdin.
type Envelope struct {
	Event   string            `json:"event"`
	Subject string            `json:"subject"`
	Message string            `json:"message"`
	Payload map[string]string `json:"payload"`
}

type manifest struct {
	Notify struct {
		Command string   `json:"command"`
		Args    []string `json:"args"`
	} `json:"notify"`
}

func (n *Notifier) sendClawhub(ctx context.Context, subject, message string, payload map[string]string, opts *Options) error {
	ids := n.enabledExtensionIDs(opts)
	if len(ids) == 0 {
		return fmt.Errorf("GLOVE_CLAWHUB_EXTENSIONS is empty")
	}
	root, err := filepath.Abs(n.settings.ClawhubExtensionsDir)
	if err != nil {
		return fmt.Errorf("resolve extensions dir: %w", err)
	}
	if _, err := os.Stat(root); err != nil {
		return fmt.Errorf("clawhub extensions dir missing: %s", root)
	}

	envelope := Envelope{
		Event:   "notify",
		Subject: subject,
		Message: message,
		Payload: payload,
	}
	var failed []string
	for _, id := range ids {
		if err := n.invokeExtension(ctx, root, id, envelope); err != nil {
			failed = append(failed, fmt.Sprintf("%s: %v", id, err))
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("clawhub extension failures: %s", strings.Join(failed, "; "))
	}
	return nil
}

// TestExtension sends a synthetic notify_test envelope through one extension.
func (n *Notifier) TestExtension(ctx context.Context, extensionID string) error {
	root, err := filepath.Abs(n.settings.ClawhubExtensionsDir)
	if err != nil {
		return fmt.Errorf("resolve extensions dir: %w", err)
	}
	envelope := Envelope{
		Event:   "notify_test",
		Subject: "Glove Extension Test",
		Message: "Test from Glove admin UI",
		Payload: map[string]string{"source": "admin_test"},
	}
	return n.invokeExtension(ctx, root, extensionID, envelope)
}

// invokeExtension runs the extension's notify command as a subprocess: no
// shell, envelope on stdin, working directory pinned to the manifest
// directory, wall-clock bounded.
func (n *Notifier) invokeExtension(ctx context.Context, root, extensionID string, envelope Envelope) error {
	manifestPath := filepath.Join(root, extensionID, extension.ManifestName)
	raw, err := os.ReadFile(manifestPath)
	if err != nil {
		return fmt.Errorf("missing manifest %s", manifestPath)
	}
	var m manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return fmt.Errorf("parse manifest %s: %w", manifestPath, err)
	}
	command := strings.TrimSpace(m.Notify.Command)
	if command == "" {
		return fmt.Errorf("notify.command missing")
	}

	input, err := json.Marshal(envelope)
	if err != nil {
		return err
	}

	timeout := time.Duration(n.settings.ClawhubTimeoutSeconds) * time.Second
	if timeout < time.Second {
		timeout = time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, command, m.Notify.Args...)
	cmd.Dir = filepath.Dir(manifestPath)
	cmd.Stdin = bytes.NewReader(input)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("timed out after %s", timeout)
		}
		exitCode := -1
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
		return fmt.Errorf("exit=%d stderr=%s", exitCode, strings.TrimSpace(stderr.String()))
	}

	n.logger.Debug("Extension invoked",
		zap.String("extension_id", extensionID),
		zap.String("event", envelope.Event),
	)
	return nil
}

// discoverExtensions lists immediate subdirectories of root containing a
// manifest.
func discoverExtensions(root string) []string {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil
	}
	var ids []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		manifestPath := filepath.Join(root, entry.Name(), extension.ManifestName)
		if _, err := os.Stat(manifestPath); err == nil {
			ids = append(ids, entry.Name())
		}
	}
	return ids
}
