package samp

import (
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// ScratchDir is the local directory holding exchanged FITS files.
type ScratchDir struct {
	root string
}

// DefaultScratchPath returns $HOME/tempo/samptables.
func DefaultScratchPath(getenv func(string) string) (string, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	home := getenv("HOME")
	if home == "" {
		var err error
		if home, err = os.UserHomeDir(); err != nil {
			return "", errors.Wrap(err, "locate home directory")
		}
	}
	return filepath.Join(home, "tempo", "samptables"), nil
}

// NewScratchDir returns a ScratchDir rooted at root. Nothing is created until Reset.
func NewScratchDir(root string) (*ScratchDir, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("empty scratch directory path")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.Wrap(err, "scratch directory")
	}
	return &ScratchDir{root: abs}, nil
}

func (d *ScratchDir) Root() string { return d.root }

// Reset creates the directory if needed and removes everything inside it.
func (d *ScratchDir) Reset() error {
	if err := os.MkdirAll(d.root, 0o755); err != nil {
		return errors.Wrap(err, "create scratch directory")
	}
	entries, err := os.ReadDir(d.root)
	if err != nil {
		return errors.Wrap(err, "list scratch directory")
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(d.root, e.Name())); err != nil {
			return errors.Wrapf(err, "remove %s", e.Name())
		}
	}
	return nil
}

// TableFileName appends .fits unless name already ends with it.
func TableFileName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("empty table name")
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", errors.Errorf("invalid table name %q", name)
	}
	if !strings.HasSuffix(name, ".fits") {
		name += ".fits"
	}
	return name, nil
}

// Path returns the file path for table name.
func (d *ScratchDir) Path(name string) (string, error) {
	file, err := TableFileName(name)
	if err != nil {
		return "", err
	}
	return filepath.Join(d.root, file), nil
}

// URL returns the file:// URL for table name.
func (d *ScratchDir) URL(name string) (string, error) {
	p, err := d.Path(name)
	if err != nil {
		return "", err
	}
	return FileURL(p), nil
}

// FileURL turns an absolute path into a file:// URL.
func FileURL(path string) string {
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(path)}
	return u.String()
}

// Exists reports whether table name has a file in the directory.
func (d *ScratchDir) Exists(name string) bool {
	p, err := d.Path(name)
	if err != nil {
		return false
	}
	st, err := os.Stat(p)
	return err == nil && st.Mode().IsRegular()
}

// Files lists the FITS files in the directory, sorted.
func (d *ScratchDir) Files() ([]string, error) {
	entries, err := os.ReadDir(d.root)
	if err != nil {
		return nil, errors.Wrap(err, "list scratch directory")
	}
	var out []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasSuffix(e.Name(), ".fits") {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}
