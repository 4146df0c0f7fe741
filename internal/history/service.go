// Package history keeps an audit trail of saved responses: every successful
// save commits the canonical JSON of the response to a per-response git
// repository, so past versions of an inspection stay reviewable.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

const snapshotFile = "response.json"

// Snapshot is the committed form of one saved response.
type Snapshot struct {
	ResponseID     string         `json:"responseId"`
	TemplateID     string         `json:"templateId"`
	Title          string         `json:"title"`
	CompanyID      string         `json:"companyId"`
	Notes          string         `json:"notes"`
	InspectionType string         `json:"inspectionType"`
	Items          []SnapshotItem `json:"items"`
	Team           []SnapshotTeam `json:"team"`
}

type SnapshotItem struct {
	ItemID      string `json:"itemId"`
	Answer      string `json:"answer"`
	Explanation string `json:"explanation,omitempty"`
	ImageURL    string `json:"imageUrl,omitempty"`
}

type SnapshotTeam struct {
	Role         string `json:"role"`
	Organization string `json:"organization"`
	FullName     string `json:"fullName"`
}

// Version describes one commit in a response's history.
type Version struct {
	Hash      string    `json:"hash"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
}

// Service manages one git repository per response under baseDir.
type Service struct {
	baseDir string
	lockMu  sync.Mutex
	locks   map[string]*sync.Mutex
}

func New(baseDir string) *Service {
	return &Service{
		baseDir: baseDir,
		locks:   make(map[string]*sync.Mutex),
	}
}

// Record commits a snapshot, initializing the repository on the first save.
func (s *Service) Record(snapshot Snapshot, author string) (Version, error) {
	lock := s.responseLock(snapshot.ResponseID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.openOrInit(snapshot.ResponseID)
	if err != nil {
		return Version{}, err
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return Version{}, fmt.Errorf("open worktree: %w", err)
	}

	payload, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return Version{}, fmt.Errorf("marshal snapshot: %w", err)
	}
	repoRoot := worktree.Filesystem.Root()
	if err := os.WriteFile(filepath.Join(repoRoot, snapshotFile), append(payload, '\n'), 0o644); err != nil {
		return Version{}, fmt.Errorf("write snapshot: %w", err)
	}
	if _, err := worktree.Add(snapshotFile); err != nil {
		return Version{}, fmt.Errorf("git add snapshot: %w", err)
	}

	message := fmt.Sprintf("Save %q", snapshot.Title)
	hash, err := worktree.Commit(message, &git.CommitOptions{
		AllowEmptyCommits: true,
		Author: &object.Signature{
			Name:  author,
			Email: fmt.Sprintf("%s@local.sitecheck.dev", sanitizeEmail(author)),
			When:  time.Now(),
		},
	})
	if err != nil {
		return Version{}, fmt.Errorf("commit snapshot: %w", err)
	}

	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return Version{}, fmt.Errorf("read commit object: %w", err)
	}
	return toVersion(commitObj), nil
}

// History lists versions newest first, up to limit (0 = all).
func (s *Service) History(responseID string, limit int) ([]Version, error) {
	lock := s.responseLock(responseID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(responseID))
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return []Version{}, nil
		}
		return nil, fmt.Errorf("open repo: %w", err)
	}

	head, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("resolve head: %w", err)
	}
	iter, err := repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	versions := make([]Version, 0, limit)
	count := 0
	err = iter.ForEach(func(commitObj *object.Commit) error {
		versions = append(versions, toVersion(commitObj))
		count++
		if limit > 0 && count >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return versions, nil
}

// SnapshotAt reads the snapshot committed at a specific version.
func (s *Service) SnapshotAt(responseID, hash string) (Snapshot, error) {
	lock := s.responseLock(responseID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(responseID))
	if err != nil {
		return Snapshot{}, fmt.Errorf("open repo: %w", err)
	}

	resolved, err := resolveHash(repo, hash)
	if err != nil {
		return Snapshot{}, err
	}
	commitObj, err := repo.CommitObject(resolved)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read commit %s: %w", hash, err)
	}

	file, err := commitObj.File(snapshotFile)
	if err != nil {
		return Snapshot{}, fmt.Errorf("load snapshot from commit: %w", err)
	}
	reader, err := file.Reader()
	if err != nil {
		return Snapshot{}, fmt.Errorf("open snapshot reader: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read snapshot bytes: %w", err)
	}
	var snapshot Snapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snapshot, nil
}

func (s *Service) openOrInit(responseID string) (*git.Repository, error) {
	path := s.repoPath(responseID)
	repo, err := git.PlainOpen(path)
	if err == nil {
		return repo, nil
	}
	if !errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("open repo: %w", err)
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create repo dir: %w", err)
	}
	repo, err = git.PlainInit(path, false)
	if err != nil {
		return nil, fmt.Errorf("init repo: %w", err)
	}
	return repo, nil
}

func (s *Service) repoPath(responseID string) string {
	return filepath.Join(s.baseDir, responseID)
}

func (s *Service) responseLock(responseID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[responseID]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	s.locks[responseID] = lock
	return lock
}

func toVersion(commitObj *object.Commit) Version {
	return Version{
		Hash:      commitObj.Hash.String()[:7],
		Message:   commitObj.Message,
		Author:    commitObj.Author.Name,
		CreatedAt: commitObj.Author.When,
	}
}

func sanitizeEmail(input string) string {
	runes := make([]rune, 0, len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			runes = append(runes, r)
			continue
		}
		if r == ' ' || r == '-' || r == '_' {
			runes = append(runes, '.')
		}
	}
	if len(runes) == 0 {
		return "user"
	}
	return string(runes)
}

func resolveHash(repo *git.Repository, hash string) (plumbing.Hash, error) {
	if len(hash) == 40 {
		return plumbing.NewHash(hash), nil
	}
	resolved, err := repo.ResolveRevision(plumbing.Revision(hash))
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("resolve hash %s: %w", hash, err)
	}
	return *resolved, nil
}
