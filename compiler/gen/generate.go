package gen

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/dave/jennifer/jen"
	"golang.org/x/sync/errgroup"

	"github.com/syssam/weft/compiler/load"
)

// Generator emits one metamodel package per loaded entity.
type Generator struct {
	cfg  *Config
	pkgs []*load.Package
}

// NewGenerator validates the configuration and the loaded packages. Every
// entity must map to a distinct generated package directory.
func NewGenerator(cfg *Config, pkgs ...*load.Package) (*Generator, error) {
	if cfg == nil || cfg.Target == "" {
		return nil, NewConfigError("Target", nil, "missing target directory")
	}
	claimed := make(map[string]string)
	total := 0
	for _, p := range pkgs {
		for _, e := range p.Entities {
			dir := packageName(e.Name)
			if prev, ok := claimed[dir]; ok {
				return nil, NewSchemaError(e.Name, "",
					fmt.Sprintf("generated package %q already claimed by entity %s", dir, prev))
			}
			claimed[dir] = e.Name
			total++
		}
	}
	if total == 0 {
		return nil, NewSchemaError("", "", "no entities to generate")
	}
	return &Generator{cfg: cfg, pkgs: pkgs}, nil
}

// Generate builds and writes every metamodel package. Files are written
// concurrently; the first failure cancels the remaining writes.
func (g *Generator) Generate(ctx context.Context) error {
	if err := os.MkdirAll(g.cfg.Target, 0o755); err != nil {
		return fmt.Errorf("create target directory: %w", err)
	}
	workers := g.cfg.Workers
	if workers < 1 {
		workers = runtime.GOMAXPROCS(0)
	}
	errg, ctx := errgroup.WithContext(ctx)
	errg.SetLimit(workers)
	for _, pkg := range g.pkgs {
		for _, e := range pkg.Entities {
			e := e
			errg.Go(func() error {
				select {
				case <-ctx.Done():
					return ctx.Err()
				default:
				}
				f, err := g.entityFile(e)
				if err != nil {
					return err
				}
				dir := packageName(e.Name)
				return g.writeFile(f, dir, dir+".go")
			})
		}
	}
	return errg.Wait()
}

// Generate loads nothing itself: it emits metamodels for already-loaded
// packages with the given options.
func Generate(ctx context.Context, pkgs []*load.Package, opts ...Option) error {
	cfg, err := NewConfig(opts...)
	if err != nil {
		return err
	}
	g, err := NewGenerator(cfg, pkgs...)
	if err != nil {
		return err
	}
	return g.Generate(ctx)
}

// writeFile renders a jennifer file to target/subdir/filename.
func (g *Generator) writeFile(f *jen.File, subdir, filename string) error {
	dir := g.cfg.Target
	if subdir != "" {
		dir = filepath.Join(dir, subdir)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	out, err := os.Create(filepath.Join(dir, filename))
	if err != nil {
		return err
	}
	defer out.Close()
	return f.Render(out)
}
