package frontend

import (
	"fmt"
	"go/parser"
	"go/token"
	"path/filepath"
	"strings"

	gopackages "golang.org/x/tools/go/packages"

	"flowcc/internal/diag"
)

// LoadConfig configures how source files are loaded before task extraction.
type LoadConfig struct {
	Sources   []string
	BuildTags []string
	// Defines are integer constants injected into every unit unless the
	// package declares a constant of the same name.
	Defines map[string]int64
	// Standalone parses each source on its own with lenient type checking
	// instead of loading the enclosing module package.
	Standalone bool
}

// Load returns one unit per requested source file.
func Load(cfg LoadConfig, reporter *diag.Reporter) ([]*Unit, error) {
	if len(cfg.Sources) == 0 {
		return nil, fmt.Errorf("no source files were provided")
	}
	if cfg.Standalone {
		fset := token.NewFileSet()
		reporter.SetFileSet(fset)
		units := make([]*Unit, 0, len(cfg.Sources))
		for _, path := range cfg.Sources {
			unit, err := ParseFile(fset, path, nil, cfg.Defines)
			if err != nil {
				return nil, err
			}
			reporter.AddSource(path, unit.Src)
			units = append(units, unit)
		}
		return units, nil
	}

	pkgs, fset, err := LoadPackages(cfg, reporter)
	if err != nil {
		return nil, err
	}
	units, err := UnitsFromPackages(pkgs, fset, cfg.Sources, cfg.Defines)
	if err != nil {
		return nil, err
	}
	for _, unit := range units {
		reporter.AddSource(unit.Path, unit.Src)
	}
	if len(units) == 0 {
		return nil, fmt.Errorf("none of the requested sources belong to the loaded package")
	}
	return units, nil
}

// LoadPackages loads the package enclosing the requested source files through
// go/packages so type information covers the DSL import. Defines are passed
// to the build as an overlay file.
func LoadPackages(cfg LoadConfig, reporter *diag.Reporter) ([]*gopackages.Package, *token.FileSet, error) {
	if len(cfg.Sources) == 0 {
		return nil, nil, fmt.Errorf("no source files were provided")
	}
	dir, err := filepath.Abs(filepath.Dir(cfg.Sources[0]))
	if err != nil {
		return nil, nil, fmt.Errorf("resolve package directory: %w", err)
	}
	overlay, err := definesOverlay(cfg.Sources, cfg.Defines)
	if err != nil {
		return nil, nil, err
	}

	fset := token.NewFileSet()
	pkgs, err := gopackages.Load(&gopackages.Config{
		Mode: gopackages.NeedName | gopackages.NeedFiles | gopackages.NeedCompiledGoFiles |
			gopackages.NeedSyntax | gopackages.NeedTypes | gopackages.NeedTypesInfo | gopackages.NeedTypesSizes,
		Fset:       fset,
		Dir:        dir,
		BuildFlags: buildTagFlag(cfg.BuildTags),
		Overlay:    overlay,
	}, ".")
	if err != nil {
		return nil, nil, fmt.Errorf("load package in %s: %w", dir, err)
	}
	reporter.SetFileSet(fset)

	failed := false
	gopackages.Visit(pkgs, nil, func(pkg *gopackages.Package) {
		for _, e := range pkg.Errors {
			reporter.Errorf("%s: %s", e.Pos, e.Msg)
			failed = true
		}
	})
	if failed {
		return nil, nil, fmt.Errorf("package loading failed")
	}
	return pkgs, fset, nil
}

// definesOverlay produces the generated constants file for the package
// directory of the first source. Names declared by any requested source are
// skipped.
func definesOverlay(sources []string, defines map[string]int64) (map[string][]byte, error) {
	if len(defines) == 0 {
		return nil, nil
	}
	declared := make(map[string]bool)
	pkgName := ""
	fset := token.NewFileSet()
	for _, path := range sources {
		file, err := parser.ParseFile(fset, path, nil, parser.SkipObjectResolution)
		if err != nil {
			return nil, err
		}
		if pkgName == "" {
			pkgName = file.Name.Name
		}
		for name := range declaredNames(file) {
			declared[name] = true
		}
	}
	src := definesSource(pkgName, defines, declared)
	if src == nil {
		return nil, nil
	}
	abs, err := filepath.Abs(sources[0])
	if err != nil {
		return nil, err
	}
	return map[string][]byte{definesFilename(abs): src}, nil
}

func buildTagFlag(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	joined := strings.Join(tags, ",")
	if joined == "" {
		return nil
	}
	return []string{"-tags=" + joined}
}
