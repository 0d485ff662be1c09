package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const mimeTypeFolder = "application/vnd.google-apps.folder"

// DriveSource finds pages by file name inside a shared Google Drive folder.
// Each masechta may live in a subfolder named after it; files are looked up
// there first and then in the root folder.
type DriveSource struct {
	svc    *drive.Service
	rootID string

	mu      sync.Mutex
	folders map[string]string // masechta -> parent folder id
}

// DriveOptions configures a DriveSource.
type DriveOptions struct {
	// CredentialsFile is a service account JSON key with read access to RootFolderID.
	CredentialsFile string
	RootFolderID    string
	// ClientOptions are appended after the credentials option.
	ClientOptions []option.ClientOption
}

// NewDriveSource builds a Drive v3 client with a read-only scope.
func NewDriveSource(ctx context.Context, opts DriveOptions) (*DriveSource, error) {
	if opts.RootFolderID == "" {
		return nil, errors.New("drive: root folder id is required")
	}
	var copts []option.ClientOption
	if opts.CredentialsFile != "" {
		copts = append(copts, option.WithCredentialsFile(opts.CredentialsFile), option.WithScopes(drive.DriveReadonlyScope))
	}
	copts = append(copts, opts.ClientOptions...)
	svc, err := drive.NewService(ctx, copts...)
	if err != nil {
		return nil, fmt.Errorf("drive: create service: %w", err)
	}
	log.Info().Str("root_folder", opts.RootFolderID).Msg("google drive source ready")
	return &DriveSource{svc: svc, rootID: opts.RootFolderID, folders: make(map[string]string)}, nil
}

func (s *DriveSource) Name() string { return "drive" }

func (s *DriveSource) Download(ctx context.Context, req Request, dst Sink) error {
	parent, err := s.parentFolder(ctx, req.Corpus.Name)
	if err != nil {
		return err
	}

	id, err := s.findFile(ctx, req.Filename, parent)
	if err != nil {
		return err
	}
	if id == "" && parent != s.rootID {
		if id, err = s.findFile(ctx, req.Filename, s.rootID); err != nil {
			return err
		}
	}
	if id == "" {
		return fmt.Errorf("drive: %s: %w", req.Filename, ErrNotFound)
	}

	resp, err := s.svc.Files.Get(id).SupportsAllDrives(true).Context(ctx).Download()
	if err != nil {
		return classifyDriveError(fmt.Errorf("drive: download %s: %w", req.Filename, err))
	}
	defer resp.Body.Close()

	n, err := io.Copy(dst, resp.Body)
	if err != nil {
		return fmt.Errorf("drive: read %s: %w", req.Filename, err)
	}
	log.Debug().Str("file", req.Filename).Str("file_id", id).Int64("bytes", n).Msg("downloaded page from drive")
	return nil
}

// Ping checks that the root folder is visible to the service account.
func (s *DriveSource) Ping(ctx context.Context) error {
	_, err := s.svc.Files.Get(s.rootID).SupportsAllDrives(true).Fields("id").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("drive root folder %s: %w", s.rootID, err)
	}
	return nil
}

// parentFolder resolves and caches the masechta subfolder, falling back to the root.
func (s *DriveSource) parentFolder(ctx context.Context, masechta string) (string, error) {
	s.mu.Lock()
	id, ok := s.folders[masechta]
	s.mu.Unlock()
	if ok {
		return id, nil
	}

	q := fmt.Sprintf("name = '%s' and '%s' in parents and mimeType = '%s' and trashed = false",
		escapeQuery(masechta), escapeQuery(s.rootID), mimeTypeFolder)
	res, err := s.list(ctx, q)
	if err != nil {
		return "", err
	}
	id = s.rootID
	if len(res) > 0 {
		id = res[0].Id
	}

	s.mu.Lock()
	s.folders[masechta] = id
	s.mu.Unlock()
	log.Debug().Str("masechta", masechta).Str("folder_id", id).Msg("resolved drive folder")
	return id, nil
}

func (s *DriveSource) findFile(ctx context.Context, name, parent string) (string, error) {
	q := fmt.Sprintf("name = '%s' and '%s' in parents and trashed = false", escapeQuery(name), escapeQuery(parent))
	res, err := s.list(ctx, q)
	if err != nil {
		return "", err
	}
	if len(res) == 0 {
		return "", nil
	}
	return res[0].Id, nil
}

func (s *DriveSource) list(ctx context.Context, q string) ([]*drive.File, error) {
	res, err := s.svc.Files.List().
		Q(q).
		Corpora("allDrives").
		IncludeItemsFromAllDrives(true).
		SupportsAllDrives(true).
		Spaces("drive").
		Fields("files(id, name)").
		Context(ctx).
		Do()
	if err != nil {
		return nil, classifyDriveError(fmt.Errorf("drive: list: %w", err))
	}
	return res.Files, nil
}

// classifyDriveError maps googleapi errors onto the storage error contract.
func classifyDriveError(err error) error {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return err
	}
	switch {
	case gerr.Code == http.StatusNotFound:
		return fmt.Errorf("%v: %w", err, ErrNotFound)
	case gerr.Code == http.StatusTooManyRequests || gerr.Code == http.StatusServiceUnavailable:
		return Throttled(err)
	case gerr.Code >= 500:
		return err
	case gerr.Code == http.StatusForbidden && isDriveRateLimit(gerr):
		return Throttled(err)
	case gerr.Code >= 400:
		return Permanent(err)
	}
	return err
}

func isDriveRateLimit(gerr *googleapi.Error) bool {
	for _, item := range gerr.Errors {
		if item.Reason == "rateLimitExceeded" || item.Reason == "userRateLimitExceeded" {
			return true
		}
	}
	return false
}

func escapeQuery(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}
