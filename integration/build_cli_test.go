package integration_test

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

func buildCLI(t *testing.T) string {
	t.Helper()

	workingDirectory, workingDirectoryErr := os.Getwd()
	if workingDirectoryErr != nil {
		t.Fatalf("failed to get working directory: %v", workingDirectoryErr)
	}

	repositoryRoot := filepath.Dir(workingDirectory)
	temporaryBinaryPath := filepath.Join(t.TempDir(), "stannp")

	buildCommand := exec.Command("go", "build", "-o", temporaryBinaryPath, "./cmd/stannp")
	buildCommand.Dir = repositoryRoot

	commandOutput, buildErr := buildCommand.CombinedOutput()
	if buildErr != nil {
		t.Fatalf("go build failed: %v\n%s", buildErr, string(commandOutput))
	}

	if _, binaryStatErr := os.Stat(temporaryBinaryPath); binaryStatErr != nil {
		t.Fatalf("expected binary at %s: %v", temporaryBinaryPath, binaryStatErr)
	}
	return temporaryBinaryPath
}

func TestBuildCLIFromRepositoryRoot(t *testing.T) {
	buildCLI(t)
}

func TestCLIExitsWithoutAPIKey(t *testing.T) {
	binaryPath := buildCLI(t)

	runCommand := exec.Command(binaryPath,
		"--env_file", filepath.Join(t.TempDir(), "absent.env"),
		"send",
		"--recipient_file", "recipient.json",
		"--letter_params_file", "letter.json",
	)
	runCommand.Env = []string{"PATH=" + os.Getenv("PATH")}

	commandOutput, runErr := runCommand.CombinedOutput()
	exitErr, ok := runErr.(*exec.ExitError)
	if !ok {
		t.Fatalf("expected exit error, got %v\n%s", runErr, string(commandOutput))
	}
	if exitErr.ExitCode() != 1 {
		t.Fatalf("expected exit code 1, got %d", exitErr.ExitCode())
	}
	if !strings.Contains(string(commandOutput), "STANNP_API_KEY") {
		t.Fatalf("expected missing key message, got %q", string(commandOutput))
	}
}
