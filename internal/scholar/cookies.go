// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package scholar

import (
	"encoding/json"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// cookieRecord matches the browser-export JSON format (one object per
// cookie with name/value/domain/path and a unix expiry).
type cookieRecord struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	Secure   bool    `json:"secure"`
	HTTPOnly bool    `json:"httpOnly"`
}

// DefaultCookiePath returns the per-user location of the persisted cookie
// file.
func DefaultCookiePath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", eris.Wrap(err, "scholar: resolving config directory")
	}
	return filepath.Join(dir, "scholar-pipeline", "cookies.json"), nil
}

// LoadCookies reads a browser-export cookie file into jar and returns how
// many cookies were applied. A missing file is not an error.
func LoadCookies(jar http.CookieJar, path string) (int, error) {
	records, err := readCookieFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	byDomain := make(map[string][]*http.Cookie)
	for _, r := range records {
		if r.Name == "" || r.Domain == "" {
			continue
		}
		c := &http.Cookie{
			Name:     r.Name,
			Value:    r.Value,
			Domain:   r.Domain,
			Path:     r.Path,
			Secure:   r.Secure,
			HttpOnly: r.HTTPOnly,
		}
		if r.Expires > 0 {
			c.Expires = time.Unix(int64(r.Expires), 0)
		}
		host := strings.TrimPrefix(r.Domain, ".")
		byDomain[host] = append(byDomain[host], c)
	}

	n := 0
	for host, cookies := range byDomain {
		jar.SetCookies(&url.URL{Scheme: "https", Host: host}, cookies)
		n += len(cookies)
	}
	return n, nil
}

// ImportCookies validates an exported cookie file and copies it to the
// default cookie path.
func ImportCookies(srcPath string) (string, int, error) {
	records, err := readCookieFile(srcPath)
	if err != nil {
		return "", 0, err
	}
	if len(records) == 0 {
		return "", 0, eris.Errorf("scholar: %s contains no cookies", srcPath)
	}

	dst, err := DefaultCookiePath()
	if err != nil {
		return "", 0, err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", 0, eris.Wrap(err, "scholar: creating cookie directory")
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return "", 0, eris.Wrap(err, "scholar: encoding cookies")
	}
	if err := os.WriteFile(dst, data, 0o600); err != nil {
		return "", 0, eris.Wrap(err, "scholar: writing cookie file")
	}
	return dst, len(records), nil
}

// ClearCookies removes the persisted cookie file. A missing file is not an
// error.
func ClearCookies() error {
	path, err := DefaultCookiePath()
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return eris.Wrap(err, "scholar: removing cookie file")
	}
	return nil
}

func readCookieFile(path string) ([]cookieRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var records []cookieRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, eris.Wrapf(err, "scholar: parsing cookie file %s", path)
	}
	return records, nil
}
