// Package app wires the whole analysis pipeline: scan, build,
// post-process, emit outputs and, in watch mode, rebuild on change.
package app

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"apidoc/internal/builder"
	"apidoc/internal/config"
	"apidoc/internal/extension"
	"apidoc/internal/history"
	"apidoc/internal/introspect"
	"apidoc/internal/inventory"
	"apidoc/internal/linker"
	"apidoc/internal/model"
	"apidoc/internal/parser"
	"apidoc/internal/postprocess"
	"apidoc/internal/resolver"
	"apidoc/internal/scanner"
	"apidoc/internal/serialize"
	"apidoc/internal/shared/observability"
	"apidoc/internal/shared/util"
	"apidoc/internal/watcher"
)

type App struct {
	Config *config.Config

	System   *model.System
	Resolver *resolver.Resolver
	Linker   *linker.Linker

	registry     *extension.Registry
	privacyRules []model.PrivacyRule
	inventories  *inventory.Set
	store        *history.Store
	watcher      *watcher.Watcher

	buildMu sync.Mutex
}

func New(cfg *config.Config) (*App, error) {
	rules, err := model.CompilePrivacyRules(cfg.Privacy)
	if err != nil {
		return nil, err
	}

	reg := extension.NewRegistry()
	extension.RegisterBuiltins(reg)

	a := &App{
		Config:       cfg,
		registry:     reg,
		privacyRules: rules,
		inventories:  &inventory.Set{},
	}

	if cfg.History.Path != "" {
		store, err := history.Open(cfg.History.Path)
		if err != nil {
			return nil, fmt.Errorf("open build history: %w", err)
		}
		a.store = store
	}
	return a, nil
}

// Registry exposes the extension registrar so a driver can install
// additional visitors and post-processors before the first build.
func (a *App) Registry() *extension.Registry { return a.registry }

// LoadInventories fetches every configured external inventory once.
// Failures are warnings; a missing inventory only degrades links.
func (a *App) LoadInventories(ctx context.Context) {
	loader := inventory.NewLoader()
	for _, raw := range a.Config.Inventories {
		ref, err := inventory.ParseRef(raw)
		if err != nil {
			slog.Warn("bad inventory reference", "ref", raw, "error", err)
			observability.InventoryFetchesTotal.WithLabelValues("error").Inc()
			continue
		}
		inv, err := loader.Load(ctx, ref)
		if err != nil {
			slog.Warn("cannot load inventory", "name", ref.Name, "error", err)
			observability.InventoryFetchesTotal.WithLabelValues("error").Inc()
			continue
		}
		a.inventories.Add(inv)
		observability.InventoryFetchesTotal.WithLabelValues("ok").Inc()
		slog.Info("loaded inventory", "name", ref.Name, "entries", len(inv.Entries))
	}
}

func (a *App) warnSink(category, message string, loc model.Location) {
	observability.WarningsTotal.WithLabelValues(category).Inc()
	slog.Warn(message, "category", category, "file", loc.File, "line", loc.Line)
}

// Build runs the full pipeline and replaces the App's System. A watch
// rebuild is a fresh build; a built registry is never mutated in place.
func (a *App) Build(ctx context.Context) error {
	a.buildMu.Lock()
	defer a.buildMu.Unlock()

	started := time.Now()
	ctx, span := observability.Tracer.Start(ctx, "app.Build")
	defer span.End()

	sys := model.NewSystem(a.warnSink)
	sys.SetPrivacyRules(a.privacyRules)
	sys.Inventories = a.inventories
	sys.DefaultDocFormat = a.Config.DocFormat
	if a.Config.DocFormat == "plaintext" {
		sys.ForcePlaintext = true
	}

	scan, err := scanner.New(a.Config.ProjectBase, a.Config.Exclude.Dirs, a.Config.Exclude.Files, sys.Warn)
	if err != nil {
		return err
	}
	units := scan.Scan(a.Config.Paths)
	slog.Debug("scan finished", "units", len(units))

	p, err := parser.New()
	if err != nil {
		return err
	}
	defer p.Close()

	b, err := builder.New(sys, p, a.registry, a.Config.Branches)
	if err != nil {
		return err
	}

	intro := introspect.New(a.Config.Introspect.Python, a.Config.Introspect.Timeout)

	for _, u := range units {
		if u.IsBinary {
			a.buildBinary(ctx, sys, b, intro, u)
			continue
		}

		source, err := os.ReadFile(u.Path)
		if err != nil {
			sys.Warn("scan", "unreadable module "+u.Path+": "+err.Error(), model.Location{File: u.Path})
			continue
		}
		parseStart := time.Now()
		b.BuildModule(u, source)
		observability.ParsingDuration.Observe(time.Since(parseStart).Seconds())
		observability.ModulesBuilt.WithLabelValues("source").Inc()
	}

	res, err := resolver.New(sys)
	if err != nil {
		return err
	}

	postStart := time.Now()
	post := postprocess.New(sys, res, a.registry)
	post.Strict = a.Config.Strict
	post.Run()
	observability.BuildDuration.WithLabelValues("postprocess").Observe(time.Since(postStart).Seconds())

	lnk, err := linker.New(sys, res)
	if err != nil {
		return err
	}

	a.System = sys
	a.Resolver = res
	a.Linker = lnk
	observability.DocumentablesTotal.Set(float64(len(sys.All())))
	observability.BuildDuration.WithLabelValues("build").Observe(time.Since(started).Seconds())

	if a.Config.WarningsAsErrors && sys.WarningCount["parse"] > 0 {
		return fmt.Errorf("%d parse failures with warnings-as-errors enabled", sys.WarningCount["parse"])
	}

	if a.store != nil {
		if err := a.store.SaveSnapshot(history.Summarize(sys, time.Since(started))); err != nil {
			slog.Warn("cannot record build snapshot", "error", err)
		}
	}
	return nil
}

func (a *App) buildBinary(ctx context.Context, sys *model.System, b *builder.Builder, intro *introspect.Introspector, u scanner.Unit) {
	if !a.Config.Introspect.Enabled {
		sys.Warn("introspect", "introspection disabled, skipping "+u.Path, model.Location{File: u.Path})
		return
	}
	parent := model.NoID
	if u.ParentQName != "" {
		parent = b.EnsurePackage(u.ParentQName).ID
	}
	name := u.QName
	if i := strings.LastIndex(u.QName, "."); i >= 0 {
		name = u.QName[i+1:]
	}
	intro.Module(ctx, sys, u.Path, name, parent)
	observability.ModulesBuilt.WithLabelValues("binary").Inc()
}

// LoadPersisted re-hydrates a previously dumped System instead of
// re-parsing. Returns false when no persisted state is configured or
// present.
func (a *App) LoadPersisted() (bool, error) {
	path := a.Config.Output.State
	if path == "" {
		return false, nil
	}
	if _, err := os.Stat(path); err != nil {
		return false, nil
	}
	sys, err := serialize.LoadFile(path, a.warnSink)
	if err != nil {
		return false, err
	}
	sys.SetPrivacyRules(a.privacyRules)
	sys.Inventories = a.inventories

	res, err := resolver.New(sys)
	if err != nil {
		return false, err
	}
	lnk, err := linker.New(sys, res)
	if err != nil {
		return false, err
	}
	a.System = sys
	a.Resolver = res
	a.Linker = lnk
	return true, nil
}

// GenerateOutputs writes the configured artifacts: the JSON object
// model, this project's inventory, and the persisted System state.
func (a *App) GenerateOutputs() error {
	if a.System == nil {
		return fmt.Errorf("no system built yet")
	}
	cfg := a.Config.Output

	if cfg.Model != "" {
		var buf bytes.Buffer
		if err := serialize.Dump(&buf, a.System); err != nil {
			return err
		}
		if err := util.WriteFileWithDirs(cfg.Model, buf.Bytes(), 0o644); err != nil {
			return err
		}
	}

	if cfg.Inventory != "" {
		var buf bytes.Buffer
		if err := inventory.Encode(&buf, a.projectName(), "", a.InventoryEntries()); err != nil {
			return err
		}
		if err := util.WriteFileWithDirs(cfg.Inventory, buf.Bytes(), 0o644); err != nil {
			return err
		}
	}

	if cfg.State != "" {
		if err := serialize.DumpFile(cfg.State, a.System); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) projectName() string {
	roots := a.System.Roots()
	if len(roots) > 0 {
		return roots[0].Name
	}
	return "apidoc"
}

// InventoryEntries lists every PUBLIC and PRIVATE entity with its kind
// role and relative url; HIDDEN entities are omitted.
func (a *App) InventoryEntries() []inventory.Entry {
	var entries []inventory.Entry
	for _, d := range a.System.All() {
		if d.Privacy == model.Hidden {
			continue
		}
		entries = append(entries, inventory.Entry{
			Name:     d.QName,
			Domain:   "py",
			Role:     roleForKind(d.Kind),
			Priority: "1",
			URI:      linker.URLFor(a.System, d),
		})
	}
	return entries
}

func roleForKind(k model.Kind) string {
	switch k {
	case model.KindPackage, model.KindModule:
		return "module"
	case model.KindClass:
		return "class"
	case model.KindException:
		return "exception"
	case model.KindFunction:
		return "function"
	case model.KindMethod:
		return "method"
	case model.KindClassMethod:
		return "classmethod"
	case model.KindStaticMethod:
		return "staticmethod"
	case model.KindProperty:
		return "property"
	case model.KindTypeAlias, model.KindTypeVariable:
		return "data"
	default:
		return "attribute"
	}
}

// StartWatcher rebuilds the documentation model when sources change.
func (a *App) StartWatcher(ctx context.Context) error {
	w, err := watcher.NewWatcher(
		a.Config.Watch.Debounce,
		a.Config.Exclude.Dirs,
		a.Config.Exclude.Files,
		func(paths []string) {
			observability.WatcherEventsTotal.Add(float64(len(paths)))
			observability.RebuildsTotal.Inc()
			slog.Info("sources changed, rebuilding", "files", len(paths))
			if err := a.Build(ctx); err != nil {
				slog.Error("rebuild failed", "error", err)
				return
			}
			if err := a.GenerateOutputs(); err != nil {
				slog.Error("cannot write outputs", "error", err)
			}
		},
	)
	if err != nil {
		return err
	}
	a.watcher = w
	return w.Watch(a.Config.Paths)
}

func (a *App) Close() error {
	if a.watcher != nil {
		a.watcher.Close()
	}
	if a.store != nil {
		return a.store.Close()
	}
	return nil
}

// PrintSummary writes a one-screen build report to stdout.
func (a *App) PrintSummary() {
	if a.System == nil {
		return
	}
	snap := history.Summarize(a.System, 0)
	fmt.Printf("apidoc build summary\n")
	fmt.Printf("  packages:   %d\n", snap.PackageCount)
	fmt.Printf("  modules:    %d\n", snap.ModuleCount)
	fmt.Printf("  classes:    %d\n", snap.ClassCount)
	fmt.Printf("  callables:  %d\n", snap.FunctionCount)
	fmt.Printf("  attributes: %d\n", snap.AttributeCount)
	if snap.ParseErrorCount > 0 {
		fmt.Printf("  parse errors: %d\n", snap.ParseErrorCount)
	}
	if snap.WarningCount > 0 {
		fmt.Printf("  warnings:   %d\n", snap.WarningCount)
	}
}
