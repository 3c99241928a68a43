// weftgen generates metamodel packages for weft record types: typed field
// paths and column constants derived from the db tags of entity structs.
//
// Usage:
//
//	weftgen [-config weftgen.yml] [-watch]
//
// The config file names the entity packages and the output directory:
//
//	packages:
//	  - ./model
//	target: ./model/meta
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/syssam/weft/compiler/gen"
	"github.com/syssam/weft/compiler/load"
)

// fileConfig is the on-disk weftgen.yml shape.
type fileConfig struct {
	Packages   []string `yaml:"packages"`
	Target     string   `yaml:"target"`
	Header     string   `yaml:"header"`
	Workers    int      `yaml:"workers"`
	BuildFlags []string `yaml:"build_flags"`
}

func main() {
	configPath := flag.String("config", "weftgen.yml", "path to the generator config")
	watch := flag.Bool("watch", false, "regenerate when entity sources change")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	cfg, err := readConfig(*configPath)
	if err != nil {
		log.Error("read config", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, log, cfg); err != nil {
		log.Error("generate", "err", err)
		if !*watch {
			os.Exit(1)
		}
	}
	if !*watch {
		return
	}
	if err := watchLoop(ctx, log, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("watch", "err", err)
		os.Exit(1)
	}
}

func readConfig(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(cfg.Packages) == 0 {
		return nil, fmt.Errorf("%s: packages list is empty", path)
	}
	if cfg.Target == "" {
		return nil, fmt.Errorf("%s: target is empty", path)
	}
	return &cfg, nil
}

func run(ctx context.Context, log *slog.Logger, cfg *fileConfig) error {
	started := time.Now()
	pkgs, err := load.Config{BuildFlags: cfg.BuildFlags}.Load(ctx, cfg.Packages...)
	if err != nil {
		return err
	}
	opts := []gen.Option{gen.WithTarget(cfg.Target)}
	if cfg.Header != "" {
		opts = append(opts, gen.WithHeader(cfg.Header))
	}
	if cfg.Workers > 0 {
		opts = append(opts, gen.WithWorkers(cfg.Workers))
	}
	if err := gen.Generate(ctx, pkgs, opts...); err != nil {
		return err
	}
	entities := 0
	for _, p := range pkgs {
		entities += len(p.Entities)
	}
	log.Info("metamodels generated",
		"entities", entities, "target", cfg.Target, "elapsed", time.Since(started).Round(time.Millisecond))
	return nil
}

// watchLoop regenerates on every change to the entity sources, debounced
// so editor save bursts trigger one run.
func watchLoop(ctx context.Context, log *slog.Logger, cfg *fileConfig) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	target, err := filepath.Abs(cfg.Target)
	if err != nil {
		return err
	}
	var watched []string
	for _, p := range cfg.Packages {
		dir := filepath.Clean(strings.TrimSuffix(p, "/..."))
		if st, err := os.Stat(dir); err != nil || !st.IsDir() {
			log.Warn("pattern is not a local directory; not watched", "pattern", p)
			continue
		}
		if err := w.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
		watched = append(watched, dir)
	}
	if len(watched) == 0 {
		return errors.New("nothing to watch; packages are not local directories")
	}
	log.Info("watching for changes", "dirs", strings.Join(watched, ", "))

	debounce := time.NewTimer(time.Hour)
	if !debounce.Stop() {
		<-debounce.C
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Ext(ev.Name) != ".go" {
				continue
			}
			if abs, err := filepath.Abs(ev.Name); err == nil && strings.HasPrefix(abs, target+string(filepath.Separator)) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			debounce.Reset(200 * time.Millisecond)

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn("watcher error", "err", err)

		case <-debounce.C:
			if err := run(ctx, log, cfg); err != nil {
				log.Error("generate", "err", err)
			}
		}
	}
}
