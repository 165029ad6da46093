package samp

import (
	"bufio"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// Lockfile keys of the SAMP Standard Profile.
const (
	LockSecret         = "samp.secret"
	LockXMLRPCURL      = "samp.hub.xmlrpc.url"
	LockProfileVersion = "samp.profile.version"

	// ProfileVersion is the Standard Profile version written by Hub.
	ProfileVersion = "1.3"

	lockurlPrefix = "std-lockurl:"
)

// LockInfo is the content of a hub lockfile.
type LockInfo struct {
	Secret         string
	XMLRPCURL      string
	ProfileVersion string
	// Extra holds any other key=value entries, such as hub.label.
	Extra map[string]string
}

// DefaultLockfilePath returns $HOME/.samp.
func DefaultLockfilePath(getenv func(string) string) (string, error) {
	home := strings.TrimSpace(getenv("HOME"))
	if home == "" {
		h, err := os.UserHomeDir()
		if err != nil {
			return "", errors.Wrap(err, "locate home directory")
		}
		home = h
	}
	return filepath.Join(home, ".samp"), nil
}

// LockfilePath resolves where the running hub advertises itself: SAMP_HUB when
// it names a std-lockurl, otherwise $HOME/.samp.
func LockfilePath(getenv func(string) string) (string, error) {
	hubEnv := strings.TrimSpace(getenv("SAMP_HUB"))
	if hubEnv == "" {
		return DefaultLockfilePath(getenv)
	}
	if !strings.HasPrefix(hubEnv, lockurlPrefix) {
		return "", fmt.Errorf("unsupported SAMP_HUB value %q", hubEnv)
	}
	u, err := url.Parse(strings.TrimPrefix(hubEnv, lockurlPrefix))
	if err != nil {
		return "", errors.Wrap(err, "parse SAMP_HUB lock URL")
	}
	if u.Scheme != "file" {
		return "", fmt.Errorf("unsupported lock URL scheme %q", u.Scheme)
	}
	return u.Path, nil
}

// DiscoverHub locates and reads the lockfile of the running hub. It returns
// ErrNoHub when no lockfile exists.
func DiscoverHub(getenv func(string) string) (LockInfo, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	path, err := LockfilePath(getenv)
	if err != nil {
		return LockInfo{}, err
	}
	return ReadLockfile(path)
}

// ReadLockfile reads and validates the lockfile at path.
func ReadLockfile(path string) (LockInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return LockInfo{}, errors.Wrapf(ErrNoHub, "no lockfile at %s", path)
		}
		return LockInfo{}, errors.Wrap(err, "open lockfile")
	}
	defer f.Close()

	info, err := ParseLockfile(f)
	if err != nil {
		return LockInfo{}, errors.Wrapf(err, "lockfile %s", path)
	}
	return info, nil
}

// ParseLockfile parses key=value lines. Blank lines and lines starting with '#'
// are ignored.
func ParseLockfile(r io.Reader) (LockInfo, error) {
	info := LockInfo{Extra: map[string]string{}}

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		switch key {
		case LockSecret:
			info.Secret = value
		case LockXMLRPCURL:
			info.XMLRPCURL = value
		case LockProfileVersion:
			info.ProfileVersion = value
		default:
			info.Extra[key] = value
		}
	}
	if err := sc.Err(); err != nil {
		return LockInfo{}, err
	}

	if info.Secret == "" {
		return LockInfo{}, fmt.Errorf("missing %s", LockSecret)
	}
	if info.XMLRPCURL == "" {
		return LockInfo{}, fmt.Errorf("missing %s", LockXMLRPCURL)
	}
	return info, nil
}

// WriteLockfile writes info to path, readable only by the owner.
func WriteLockfile(path string, info LockInfo) error {
	var b strings.Builder
	b.WriteString("# SAMP Standard Profile lockfile\n")
	fmt.Fprintf(&b, "%s=%s\n", LockSecret, info.Secret)
	fmt.Fprintf(&b, "%s=%s\n", LockXMLRPCURL, info.XMLRPCURL)
	version := info.ProfileVersion
	if version == "" {
		version = ProfileVersion
	}
	fmt.Fprintf(&b, "%s=%s\n", LockProfileVersion, version)

	keys := make([]string, 0, len(info.Extra))
	for k := range info.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%s\n", k, info.Extra[k])
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "create lockfile directory")
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o600); err != nil {
		return errors.Wrap(err, "write lockfile")
	}
	// WriteFile keeps the mode of an existing file.
	return os.Chmod(path, 0o600)
}
