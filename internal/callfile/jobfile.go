package callfile

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"
)

// DefaultSpoolDir is the telephony server's well-known outgoing spool path.
const DefaultSpoolDir = "/var/spool/asterisk/outgoing"

// JobFile composes an Endpoint and an Action into a call file and delivers
// it into the telephony server's spool directory. Construct one with New,
// adjust the exported fields as needed, then call Spool or SpoolAt. After a
// successful delivery the spool directory owns the file; the server may
// move, consume or delete it at any time.
type JobFile struct {
	Endpoint Endpoint
	Action   Action

	// Archive asks the telephony server to keep an execution log.
	Archive bool

	// Filename defaults to "<uuid>.call". Tests may pin it for determinism.
	Filename string

	// TempDir is the private staging directory. It must already exist;
	// Stage never creates it. Defaults to os.TempDir().
	TempDir string

	// SpoolDir is where the delivered file lands. Defaults to DefaultSpoolDir.
	SpoolDir string

	// User, when set, names the OS account the delivered file is chowned to
	// so the telephony server is permitted to process it.
	User string

	// Users resolves User and performs the chown. Defaults to SystemUsers.
	Users UserDirectory
}

// New returns a JobFile with generated filename and default directories.
func New(endpoint Endpoint, action Action) *JobFile {
	return &JobFile{
		Endpoint: endpoint,
		Action:   action,
		Filename: uuid.NewString() + ".call",
		TempDir:  os.TempDir(),
		SpoolDir: DefaultSpoolDir,
		Users:    SystemUsers{},
	}
}

// Contents renders the call file lines in their fixed order: endpoint
// fields, action lines, then "Archive: yes" when requested. Given identical
// inputs the result is byte-for-byte identical across calls.
func (j *JobFile) Contents() []string {
	lines := j.Endpoint.Render()
	if j.Action != nil {
		lines = append(lines, j.Action.Render()...)
	}
	if j.Archive {
		lines = append(lines, "Archive: yes")
	}
	return lines
}

// String returns the full rendered call file, one key per line.
func (j *JobFile) String() string {
	return strings.Join(j.Contents(), "\n") + "\n"
}

// Validate checks the endpoint, the action and the spool directory. It is
// side-effect free and safe to call repeatedly; Stage and Spool re-run it
// immediately before touching the filesystem because the spool directory or
// the attributes may have changed since construction.
//
// An existing but unwritable spool directory is reported as
// ErrNoSpoolPermission rather than ErrValidation so callers can branch on
// the failure kind; IsValid treats both as invalid.
func (j *JobFile) Validate() error {
	if j.Action == nil {
		return fmt.Errorf("%w: action is required", ErrValidation)
	}
	if err := j.Endpoint.Validate(); err != nil {
		return err
	}
	if err := j.Action.Validate(); err != nil {
		return err
	}

	info, err := os.Stat(j.SpoolDir)
	if err != nil {
		return fmt.Errorf("%w: spool directory %q: %v", ErrValidation, j.SpoolDir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: spool directory %q is not a directory", ErrValidation, j.SpoolDir)
	}
	if err := unix.Access(j.SpoolDir, unix.W_OK); err != nil {
		return fmt.Errorf("%w: %s", ErrNoSpoolPermission, j.SpoolDir)
	}

	return nil
}

// IsValid reports whether the job file can be delivered right now.
func (j *JobFile) IsValid() bool {
	return j.Validate() == nil
}

// Stage validates the job file and writes its contents into
// TempDir/Filename, returning the staged path. The file is created, written
// and closed in one pass; nothing ever appears under the final spool name
// until Spool renames it there.
func (j *JobFile) Stage() (string, error) {
	if err := j.Validate(); err != nil {
		return "", err
	}
	path := filepath.Join(j.TempDir, j.Filename)
	if err := j.writeFile(path); err != nil {
		return "", err
	}
	return path, nil
}

// Spool delivers the call file immediately.
func (j *JobFile) Spool() error {
	return j.spool(time.Time{}, false)
}

// SpoolAt delivers the call file with its modification time set to t. The
// telephony server treats a future mtime as "do not dial before this time".
func (j *JobFile) SpoolAt(t time.Time) error {
	if t.IsZero() || t.Unix() < 0 {
		return fmt.Errorf("%w: %v", ErrInvalidTime, t)
	}
	return j.spool(t, true)
}

// spool is the delivery state machine: validate, stage, set timestamps,
// set ownership, then move into the spool directory. There are no retries;
// a failure before the final rename leaves at most a stray temp file and
// never a partially visible file in the spool directory.
func (j *JobFile) spool(t time.Time, deferred bool) error {
	staged, err := j.Stage()
	if err != nil {
		return err
	}
	if err := j.prepare(staged, t, deferred); err != nil {
		return err
	}

	dest := filepath.Join(j.SpoolDir, j.Filename)
	err = os.Rename(staged, dest)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%w: %s", ErrNoSpoolPermission, j.SpoolDir)
	case errors.Is(err, syscall.EXDEV):
		return j.spoolAcrossFilesystems(staged, dest, t, deferred)
	default:
		return fmt.Errorf("move call file into spool: %w", err)
	}
}

// spoolAcrossFilesystems handles a temp directory on a different filesystem
// than the spool directory. A plain copy under the final name would expose a
// partial file to the polling server, so the contents are rewritten into a
// dot-prefixed temp file inside the spool directory and renamed from there.
// The original staged file is removed on success.
func (j *JobFile) spoolAcrossFilesystems(staged, dest string, t time.Time, deferred bool) error {
	tmp := filepath.Join(j.SpoolDir, "."+j.Filename+".tmp")
	if err := j.writeFile(tmp); err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return fmt.Errorf("%w: %s", ErrNoSpoolPermission, j.SpoolDir)
		}
		return err
	}
	if err := j.prepare(tmp, t, deferred); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		if errors.Is(err, fs.ErrPermission) {
			return fmt.Errorf("%w: %s", ErrNoSpoolPermission, j.SpoolDir)
		}
		return fmt.Errorf("move call file within spool: %w", err)
	}
	os.Remove(staged)
	return nil
}

// prepare applies the deferred timestamp and the run-as ownership to a
// staged file, in that order, so the final rename carries both along.
func (j *JobFile) prepare(path string, t time.Time, deferred bool) error {
	if deferred {
		if err := os.Chtimes(path, t, t); err != nil {
			return fmt.Errorf("set spool time on %s: %w", path, err)
		}
	}
	if j.User != "" {
		users := j.Users
		if users == nil {
			users = SystemUsers{}
		}
		acct, err := users.Lookup(j.User)
		if err != nil {
			return err
		}
		if err := users.Chown(path, acct); err != nil {
			return err
		}
	}
	return nil
}

// writeFile creates path and writes the rendered contents in a single
// create-write-close sequence.
func (j *JobFile) writeFile(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create call file %s: %w", path, err)
	}
	if _, err := f.WriteString(j.String()); err != nil {
		f.Close()
		return fmt.Errorf("write call file %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close call file %s: %w", path, err)
	}
	return nil
}
