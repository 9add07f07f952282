package investigation

import (
	"fmt"
	"regexp"
	"strings"
)

var repositoryPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+/[A-Za-z0-9_.-]+$`)

// IsRepositoryName reports whether name has the owner/name shape.
func IsRepositoryName(name string) bool {
	return repositoryPattern.MatchString(name)
}

// ParseRepository trims and validates an owner/name identifier.
func ParseRepository(repo string) (string, error) {
	trimmed := strings.TrimSpace(repo)
	if trimmed == "" {
		return "", ErrRepositoryRequired
	}
	if !IsRepositoryName(trimmed) {
		return "", fmt.Errorf("%w: %q", ErrInvalidRepository, repo)
	}
	return trimmed, nil
}

// SplitRepository returns the owner and name parts of a validated repository.
func SplitRepository(repo string) (string, string, error) {
	trimmed, err := ParseRepository(repo)
	if err != nil {
		return "", "", err
	}
	owner, name, _ := strings.Cut(trimmed, "/")
	return owner, name, nil
}

// ValidateTarget checks a (repository, issue) pair before it reaches the queue.
func ValidateTarget(repo string, issue int) (string, error) {
	trimmed, err := ParseRepository(repo)
	if err != nil {
		return "", err
	}
	if issue <= 0 {
		return "", fmt.Errorf("%w: %d", ErrInvalidIssueNumber, issue)
	}
	return trimmed, nil
}

// IssueKey formats a (repository, issue) pair for logs and notices.
func IssueKey(repo string, issue int) string {
	return fmt.Sprintf("%s#%d", repo, issue)
}
