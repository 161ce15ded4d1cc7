// Package envfile provisions and parses the environment file the pipeline
// services read their settings from.
package envfile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"regexp"
	"sort"

	"github.com/joho/godotenv"
)

// ErrMalformed is wrapped by every parse failure.
var ErrMalformed = errors.New("malformed environment file")

var keyPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// File is an environment file that is created from a template on first use.
type File struct {
	Path     string
	Template string
}

// Ensure copies Template to Path when Path does not exist. An existing file
// is never opened for writing, so operator edits survive every run. It
// reports whether the file was created.
func (f File) Ensure() (bool, error) {
	_, err := os.Stat(f.Path)
	switch {
	case err == nil:
		return false, nil
	case !errors.Is(err, fs.ErrNotExist):
		return false, fmt.Errorf("stat %s: %w", f.Path, err)
	}

	if err := copyFile(f.Template, f.Path); err != nil {
		return false, err
	}
	return true, nil
}

// Paths returns the file and template paths as configured.
func (f File) Paths() (string, string) { return f.Path, f.Template }

// Load parses the file at Path.
func (f File) Load() (Env, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return Env{}, fmt.Errorf("reading %s: %w", f.Path, err)
	}
	env, err := Parse(data)
	if err != nil {
		return Env{}, fmt.Errorf("%s: %w", f.Path, err)
	}
	return env, nil
}

// copyFile writes src to dst, failing if dst appeared in the meantime.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening template %s: %w", src, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("stat template %s: %w", src, err)
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("creating %s: %w", dst, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return fmt.Errorf("copying %s to %s: %w", src, dst, err)
	}
	return out.Close()
}

// Env is an immutable, ordered set of key/value pairs.
type Env struct {
	keys   []string
	values map[string]string
}

// Parse reads dotenv-formatted data. Comments, blank lines, quoting and an
// optional "export " prefix are accepted; anything else is an error wrapping
// ErrMalformed.
func Parse(data []byte) (Env, error) {
	parsed, err := godotenv.Parse(bytes.NewReader(data))
	if err != nil {
		return Env{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	keys := make([]string, 0, len(parsed))
	for k := range parsed {
		if !keyPattern.MatchString(k) {
			return Env{}, fmt.Errorf("%w: invalid variable name %q", ErrMalformed, k)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return Env{keys: keys, values: parsed}, nil
}

// FromMap builds an Env from m. The map is copied.
func FromMap(m map[string]string) Env {
	values := make(map[string]string, len(m))
	keys := make([]string, 0, len(m))
	for k, v := range m {
		values[k] = v
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return Env{keys: keys, values: values}
}

// Lookup returns the value for key.
func (e Env) Lookup(key string) (string, bool) {
	v, ok := e.values[key]
	return v, ok
}

// Len is the number of variables.
func (e Env) Len() int { return len(e.keys) }

// Keys returns the variable names in sorted order.
func (e Env) Keys() []string {
	return append([]string(nil), e.keys...)
}

// Environ returns the pairs as KEY=VALUE strings suitable for exec.Cmd.Env.
func (e Env) Environ() []string {
	out := make([]string, 0, len(e.keys))
	for _, k := range e.keys {
		out = append(out, k+"="+e.values[k])
	}
	return out
}
