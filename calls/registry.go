package calls

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/tomyedwab/sqlcustom/coerce"
	"gopkg.in/ini.v1"
)

// LatestVersion is the newest call file format this package understands.
const LatestVersion = 1

const (
	defaultSection = "Default"

	keyStripChars     = "Strip Chars"
	keyStripCharsMode = "Strip Chars Mode"
	keyVersion        = "Version"
	keyOutput         = "OUTPUT"
	keyPrepared       = "Prepared Statement"
	keyReturnInsertID = "Return InsertID"
)

// Registry holds the calls loaded from one call file. It is read-only once
// Load returns and safe for concurrent use.
type Registry struct {
	path     string
	version  int
	calls    map[string]*Definition
	problems []*ConfigError
}

// Load reads the call file at path. A missing file or a path that is not a
// regular file fails with ErrNotFound or ErrNotAFile; malformed INI syntax also
// fails. Every other problem is logged and collected on the returned Registry,
// whose OK method reports whether the file was clean.
func Load(path string, logger *slog.Logger) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}

	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	} else if err != nil {
		return nil, fmt.Errorf("failed to stat call file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s", ErrNotAFile, path)
	}

	f, err := ini.LoadSources(ini.LoadOptions{
		IgnoreInlineComment:     true,
		PreserveSurroundedQuote: true,
		IgnoreContinuation:      true,
	}, path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse call file %s: %w", path, err)
	}

	r := &Registry{
		path:    path,
		version: LatestVersion,
		calls:   make(map[string]*Definition),
	}
	fallback := r.loadDefault(f)
	for _, sec := range f.Sections() {
		switch sec.Name() {
		case defaultSection:
			continue
		case ini.DefaultSection:
			for _, key := range sec.KeyStrings() {
				r.report("", key, "setting outside of any section")
			}
			continue
		}
		def := r.loadCall(sec, fallback)
		r.calls[def.Name] = def
	}

	for _, p := range r.problems {
		logger.Warn("Call file problem", "path", path, "error", p.Error())
	}
	logger.Info("Loaded call file", "path", path, "calls", len(r.calls), "problems", len(r.problems))
	return r, nil
}

func (r *Registry) report(section, key, msg string) {
	r.problems = append(r.problems, &ConfigError{Section: section, Key: key, Msg: msg})
}

func (r *Registry) loadDefault(f *ini.File) coerce.Pipeline {
	var fallback coerce.Pipeline
	sec, err := f.GetSection(defaultSection)
	if err != nil {
		r.report(defaultSection, "", "section missing")
		return fallback
	}
	fallback.StripChars = value(sec, keyStripChars)
	if sec.HasKey(keyStripCharsMode) {
		mode, err := coerce.ParseStripMode(sec.Key(keyStripCharsMode).String())
		if err != nil {
			r.report(defaultSection, keyStripCharsMode, err.Error())
		}
		fallback.StripMode = mode
	}
	if sec.HasKey(keyVersion) {
		v, err := strconv.Atoi(strings.TrimSpace(sec.Key(keyVersion).String()))
		if err != nil || v < 1 || v > LatestVersion {
			r.report(defaultSection, keyVersion, fmt.Sprintf("unsupported version %q, expected 1 to %d", sec.Key(keyVersion).String(), LatestVersion))
		} else {
			r.version = v
		}
	}
	for _, key := range sec.KeyStrings() {
		switch key {
		case keyStripChars, keyStripCharsMode, keyVersion:
		default:
			r.report(defaultSection, key, "unknown setting")
		}
	}
	return fallback
}

func (r *Registry) loadCall(sec *ini.Section, fallback coerce.Pipeline) *Definition {
	name := sec.Name()
	def := &Definition{
		Name:       name,
		Prepared:   true,
		StripChars: fallback.StripChars,
		StripMode:  fallback.StripMode,
	}
	known := map[string]bool{}

	var lines []string
	for n := 1; ; n++ {
		first := fmt.Sprintf("SQL%d_1", n)
		if !sec.HasKey(first) {
			break
		}
		for m := 1; ; m++ {
			key := fmt.Sprintf("SQL%d_%d", n, m)
			if !sec.HasKey(key) {
				break
			}
			lines = append(lines, sec.Key(key).String())
			known[key] = true
		}
		inputs := fmt.Sprintf("SQL%d_INPUTS", n)
		known[inputs] = true
		if n > 1 {
			continue
		}
		opts, problems := parseOptionList(value(sec, inputs), false)
		for _, p := range problems {
			r.report(name, inputs, p)
		}
		def.Inputs = opts
		def.HighestInputIndex = highestIndex(opts)
	}
	def.SQL = strings.TrimSpace(strings.Join(lines, " "))
	if def.SQL == "" {
		r.report(name, "", "no SQL1_1 line")
	}

	if sec.HasKey(keyOutput) {
		opts, problems := parseOptionList(sec.Key(keyOutput).String(), true)
		for _, p := range problems {
			r.report(name, keyOutput, p)
		}
		def.Outputs = opts
	}
	known[keyOutput] = true

	if sec.HasKey(keyPrepared) {
		v, err := sec.Key(keyPrepared).Bool()
		if err != nil {
			r.report(name, keyPrepared, "expected a boolean")
		} else {
			def.Prepared = v
		}
	}
	if sec.HasKey(keyReturnInsertID) {
		v, err := sec.Key(keyReturnInsertID).Bool()
		if err != nil {
			r.report(name, keyReturnInsertID, "expected a boolean")
		} else {
			def.ReturnInsertID = v
		}
	}
	if sec.HasKey(keyStripChars) {
		def.StripChars = sec.Key(keyStripChars).String()
	}
	if sec.HasKey(keyStripCharsMode) {
		mode, err := coerce.ParseStripMode(sec.Key(keyStripCharsMode).String())
		if err != nil {
			r.report(name, keyStripCharsMode, err.Error())
		} else {
			def.StripMode = mode
		}
	}
	for _, k := range []string{keyPrepared, keyReturnInsertID, keyStripChars, keyStripCharsMode} {
		known[k] = true
	}

	for _, key := range sec.KeyStrings() {
		if !known[key] {
			r.report(name, key, "unknown setting")
		}
	}
	return def
}

// value returns the value of key without creating it when missing.
func value(sec *ini.Section, key string) string {
	k, err := sec.GetKey(key)
	if err != nil {
		return ""
	}
	return k.String()
}

// Lookup returns the call with the given name.
func (r *Registry) Lookup(name string) (*Definition, bool) {
	def, ok := r.calls[name]
	return def, ok
}

// Names returns the call names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.calls))
	for name := range r.calls {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) Len() int {
	return len(r.calls)
}

// Path returns the file the registry was loaded from.
func (r *Registry) Path() string {
	return r.path
}

// Version returns the call file format version.
func (r *Registry) Version() int {
	return r.version
}

// OK reports whether the file loaded without problems.
func (r *Registry) OK() bool {
	return len(r.problems) == 0
}

// Problems returns every problem found during Load.
func (r *Registry) Problems() []*ConfigError {
	return r.problems
}

// Err joins all problems into one error, or returns nil when OK.
func (r *Registry) Err() error {
	if r.OK() {
		return nil
	}
	errs := make([]error, len(r.problems))
	for i, p := range r.problems {
		errs[i] = p
	}
	return errors.Join(errs...)
}

// NewRegistry builds a registry from already compiled definitions.
func NewRegistry(defs ...*Definition) *Registry {
	r := &Registry{version: LatestVersion, calls: make(map[string]*Definition, len(defs))}
	for _, def := range defs {
		r.calls[def.Name] = def
	}
	return r
}
