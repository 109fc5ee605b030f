package client

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/osslab-pku/github-scraper/internal/types"
)

// Route paths served by the API.
const (
	PathIssues     = "/github/issues"
	PathPulls      = "/github/pulls"
	PathIssue      = "/github/issue"
	PathPull       = "/github/pull"
	PathDependents = "/github/dependents"
)

// SplitRepo parses "owner/name".
func SplitRepo(s string) (owner, name string, err error) {
	owner, name, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return "", "", fmt.Errorf("%w: repository %q is not owner/name", types.ErrInvalidURL, s)
	}
	return owner, name, nil
}

// SplitThread parses "owner/name#number".
func SplitThread(s string) (owner, name string, number int, err error) {
	repo, num, ok := strings.Cut(strings.TrimSpace(s), "#")
	if !ok {
		return "", "", 0, fmt.Errorf("%w: thread %q is not owner/name#number", types.ErrInvalidURL, s)
	}
	number, err = strconv.Atoi(num)
	if err != nil || number < 1 {
		return "", "", 0, fmt.Errorf("%w: thread %q has no valid number", types.ErrInvalidURL, s)
	}
	owner, name, err = SplitRepo(repo)
	return owner, name, number, err
}

// ListQueries builds one issue or pull list query per repository.
func ListQueries(repos []string, query string) ([]Params, error) {
	out := make([]Params, 0, len(repos))
	for _, r := range repos {
		owner, name, err := SplitRepo(r)
		if err != nil {
			return nil, err
		}
		p := Params{"owner": owner, "name": name, "fromPage": "1"}
		if query != "" {
			p["query"] = query
		}
		out = append(out, p)
	}
	return out, nil
}

// ThreadQueries builds one timeline query per "owner/name#number".
func ThreadQueries(threads []string) ([]Params, error) {
	out := make([]Params, 0, len(threads))
	for _, t := range threads {
		owner, name, number, err := SplitThread(t)
		if err != nil {
			return nil, err
		}
		out = append(out, Params{"owner": owner, "name": name, "id": strconv.Itoa(number)})
	}
	return out, nil
}

// DependentsQueries builds one dependents query per repository.
func DependentsQueries(repos []string, depType, packageID string) ([]Params, error) {
	out := make([]Params, 0, len(repos))
	for _, r := range repos {
		owner, name, err := SplitRepo(r)
		if err != nil {
			return nil, err
		}
		p := Params{"owner": owner, "name": name}
		if depType != "" {
			p["type"] = depType
		}
		if packageID != "" {
			p["package_id"] = packageID
		}
		out = append(out, p)
	}
	return out, nil
}
