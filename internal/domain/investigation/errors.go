package investigation

import "errors"

var (
	ErrRepositoryRequired = errors.New("repository is required")
	ErrInvalidRepository  = errors.New("repository must look like owner/name")
	ErrInvalidIssueNumber = errors.New("issue number must be a positive integer")

	ErrCorruptDocument   = errors.New("state document is corrupt")
	ErrInvalidLegacyItem = errors.New("legacy ledger entry is not an issue number")
)
