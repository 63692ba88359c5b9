package config

import "os"

// DeploymentMode represents the context Jetty is running in.
type DeploymentMode string

const (
	// ModeDevelopment: running from a git clone, .env-driven.
	ModeDevelopment DeploymentMode = "development"
	// ModePackaged: a released binary (interactive prompts are allowed).
	ModePackaged DeploymentMode = "packaged"
	// ModeCI: a CI/CD pipeline; no interactive prompts, all credentials from env.
	ModeCI DeploymentMode = "ci"
)

// DetectMode infers the deployment context from the environment.
func DetectMode() DeploymentMode {
	if mode := os.Getenv("JETTY_MODE"); mode != "" {
		switch mode {
		case "development", "dev":
			return ModeDevelopment
		case "packaged", "pkg":
			return ModePackaged
		case "ci":
			return ModeCI
		}
	}

	if isCI() {
		return ModeCI
	}
	if _, err := os.Stat("go.mod"); err == nil {
		return ModeDevelopment
	}
	return ModePackaged
}

func isCI() bool {
	for _, v := range []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "CIRCLECI", "BUILDKITE"} {
		if os.Getenv(v) != "" {
			return true
		}
	}
	return false
}

// AllowsInteractivePrompts reports whether m permits prompting the user for input.
func (m DeploymentMode) AllowsInteractivePrompts() bool {
	return m == ModePackaged || m == ModeDevelopment
}

// String returns the mode's string form.
func (m DeploymentMode) String() string {
	return string(m)
}
