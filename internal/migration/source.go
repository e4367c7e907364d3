package migration

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"slices"
)

// loadOptions configures discovery.
type loadOptions struct {
	wide   bool
	logger *slog.Logger
}

// LoadOption configures Load and LoadFromDir.
type LoadOption func(*loadOptions)

// WithWideVersions lifts the version bound from 32 to 64 bits.
func WithWideVersions() LoadOption {
	return func(o *loadOptions) { o.wide = true }
}

// WithLogger sets the logger used to report skipped files.
func WithLogger(logger *slog.Logger) LoadOption {
	return func(o *loadOptions) { o.logger = logger }
}

// Load discovers migrations in a filesystem, walking it recursively. Any
// source of (filename, bytes) pairs works: os.DirFS for runtime directories,
// an embed.FS for migrations compiled into the binary.
//
// Regular files named (V|U){version}__{name}.sql become migrations with the
// file contents as SQL, taken verbatim. Files with malformed names are
// skipped with a warning. Two files yielding the same kind and version fail
// loading. The result is ordered by (kind, version), versioned first.
func Load(fsys fs.FS, opts ...LoadOption) ([]Migration, error) {
	o := loadOptions{logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(&o)
	}

	parse := Unapplied
	if o.wide {
		parse = UnappliedWide
	}

	type key struct {
		kind    Kind
		version int64
	}

	seen := make(map[key]string)

	var migrations []Migration

	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() || path.Ext(p) != ".sql" {
			return nil
		}

		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return fmt.Errorf("reading migration file %s: %w", p, err)
		}

		m, err := parse(path.Base(p), string(data))
		if err != nil {
			if errors.Is(err, ErrInvalidName) {
				o.logger.Warn("skipping file not following the migration naming convention",
					"file", p)

				return nil
			}

			return fmt.Errorf("parsing migration file %s: %w", p, err)
		}

		k := key{kind: m.Kind, version: m.Version}
		if prev, dup := seen[k]; dup {
			return fmt.Errorf("%w: %s and %s both declare %s", ErrDuplicateVersion, prev, p, m)
		}

		seen[k] = p
		migrations = append(migrations, m)

		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(migrations, Compare)

	return migrations, nil
}

// LoadFromDir is Load over a directory of the host filesystem.
func LoadFromDir(dir string, opts ...LoadOption) ([]Migration, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("reading migrations directory %s: %w", dir, err)
	}

	return Load(os.DirFS(dir), opts...)
}
