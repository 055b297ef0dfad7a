// Package ci detects the CI host a run executes on and implements the host
// specific side channels: step outputs for produced variables and job
// summaries for the build report.
package ci

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Host identifies where the build runs.
type Host int

const (
	Local Host = iota
	GitHubActions
	AzureDevOps
)

// String returns the host name.
func (h Host) String() string {
	switch h {
	case GitHubActions:
		return "github"
	case AzureDevOps:
		return "devops"
	default:
		return "local"
	}
}

// IsCI reports whether h is a CI host.
func (h Host) IsCI() bool {
	return h != Local
}

// Detect inspects the environment through lookupEnv.
func Detect(lookupEnv func(string) (string, bool)) Host {
	if v, _ := lookupEnv("GITHUB_ACTIONS"); strings.EqualFold(v, "true") {
		return GitHubActions
	}
	if v, _ := lookupEnv("TF_BUILD"); strings.EqualFold(v, "true") {
		return AzureDevOps
	}
	return Local
}

// Environment writes host specific side-channel output.
type Environment struct {
	Host      Host
	lookupEnv func(string) (string, bool)
	stdout    io.Writer
}

// NewEnvironment creates an Environment. stdout receives DevOps logging
// commands.
func NewEnvironment(host Host, lookupEnv func(string) (string, bool), stdout io.Writer) *Environment {
	if lookupEnv == nil {
		lookupEnv = os.LookupEnv
	}
	if stdout == nil {
		stdout = os.Stdout
	}
	return &Environment{Host: host, lookupEnv: lookupEnv, stdout: stdout}
}

// PublishVariable exposes a produced variable to later jobs.
//
// GitHub Actions: appended to the $GITHUB_OUTPUT file.
// Azure DevOps: a task.setvariable logging command with isOutput=true.
// Local runs: no-op.
func (e *Environment) PublishVariable(name, value string) error {
	switch e.Host {
	case GitHubActions:
		path, ok := e.lookupEnv("GITHUB_OUTPUT")
		if !ok || path == "" {
			return fmt.Errorf("GITHUB_OUTPUT is not set")
		}
		return appendFile(path, githubOutputLine(name, value))
	case AzureDevOps:
		_, err := fmt.Fprintf(e.stdout, "##vso[task.setvariable variable=%s;isOutput=true]%s\n", name, escapeDevOps(value))
		return err
	}
	return nil
}

// WriteSummary publishes a markdown build summary to the job page.
//
// GitHub Actions: appended to $GITHUB_STEP_SUMMARY.
// Azure DevOps: written under $AGENT_TEMPDIRECTORY and attached with a
// task.uploadsummary logging command.
// Local runs: no-op.
func (e *Environment) WriteSummary(markdown string) error {
	switch e.Host {
	case GitHubActions:
		path, ok := e.lookupEnv("GITHUB_STEP_SUMMARY")
		if !ok || path == "" {
			return nil
		}
		return appendFile(path, markdown)
	case AzureDevOps:
		dir, ok := e.lookupEnv("AGENT_TEMPDIRECTORY")
		if !ok || dir == "" {
			dir = os.TempDir()
		}
		path := filepath.Join(dir, "atom-summary.md")
		if err := os.WriteFile(path, []byte(markdown), 0644); err != nil {
			return fmt.Errorf("failed to write summary: %w", err)
		}
		_, err := fmt.Fprintf(e.stdout, "##vso[task.uploadsummary]%s\n", path)
		return err
	}
	return nil
}

func githubOutputLine(name, value string) string {
	if !strings.ContainsAny(value, "\r\n") {
		return name + "=" + value + "\n"
	}
	delim := "ATOM_EOF_" + uuid.NewString()
	return name + "<<" + delim + "\n" + value + "\n" + delim + "\n"
}

func escapeDevOps(v string) string {
	return strings.NewReplacer("%", "%AZP25", "\r", "%0D", "\n", "%0A").Replace(v)
}

func appendFile(path, content string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	if _, err := f.WriteString(content); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}
