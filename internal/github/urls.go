package github

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/osslab-pku/github-scraper/internal/types"
)

// URLs builds page addresses against a web and an API root.
type URLs struct {
	Base string
	API  string
}

func (u URLs) repo(owner, name string) (string, error) {
	if owner == "" || name == "" || strings.Contains(owner, "/") || strings.Contains(name, "/") {
		return "", fmt.Errorf("%w: bad repository %q/%q", types.ErrInvalidURL, owner, name)
	}
	return strings.TrimRight(u.Base, "/") + "/" + url.PathEscape(owner) + "/" + url.PathEscape(name), nil
}

// IssueList returns the issue list filtered by query, starting at page.
func (u URLs) IssueList(owner, name, query string, page int) (string, error) {
	return u.list(owner, name, "issues", query, page)
}

// PullList returns the pull request list filtered by query, starting at page.
func (u URLs) PullList(owner, name, query string, page int) (string, error) {
	return u.list(owner, name, "pulls", query, page)
}

func (u URLs) list(owner, name, path, query string, page int) (string, error) {
	repo, err := u.repo(owner, name)
	if err != nil {
		return "", err
	}
	q := url.Values{}
	if page > 1 {
		q.Set("page", strconv.Itoa(page))
	}
	if query != "" {
		q.Set("q", query)
	}
	if len(q) == 0 {
		return repo + "/" + path, nil
	}
	return repo + "/" + path + "?" + q.Encode(), nil
}

// Issue returns the timeline page of issue number.
func (u URLs) Issue(owner, name string, number int) (string, error) {
	return u.thread(owner, name, "issues", number)
}

// Pull returns the timeline page of pull request number.
func (u URLs) Pull(owner, name string, number int) (string, error) {
	return u.thread(owner, name, "pull", number)
}

func (u URLs) thread(owner, name, path string, number int) (string, error) {
	if number < 1 {
		return "", fmt.Errorf("%w: bad number %d", types.ErrInvalidURL, number)
	}
	repo, err := u.repo(owner, name)
	if err != nil {
		return "", err
	}
	return repo + "/" + path + "/" + strconv.Itoa(number), nil
}

// Dependents returns the dependents page. depType is REPOSITORY or
// PACKAGE; an empty packageID selects the default package.
func (u URLs) Dependents(owner, name, depType, packageID string) (string, error) {
	repo, err := u.repo(owner, name)
	if err != nil {
		return "", err
	}
	q := url.Values{}
	if depType != "" {
		q.Set("dependent_type", strings.ToUpper(depType))
	}
	if packageID != "" {
		q.Set("package_id", packageID)
	}
	if len(q) == 0 {
		return repo + "/network/dependents", nil
	}
	return repo + "/network/dependents?" + q.Encode(), nil
}

// Repos returns the JSON repository listing of a user or organization.
func (u URLs) Repos(namespace string) (string, error) {
	if namespace == "" || strings.Contains(namespace, "/") {
		return "", fmt.Errorf("%w: bad namespace %q", types.ErrInvalidURL, namespace)
	}
	return strings.TrimRight(u.API, "/") + "/users/" + url.PathEscape(namespace) + "/repos", nil
}
