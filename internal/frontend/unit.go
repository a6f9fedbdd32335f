package frontend

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"go/types"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	gopackages "golang.org/x/tools/go/packages"

	"flowcc/internal/consteval"
)

// FlowPath is the import path of the dataflow DSL package.
const FlowPath = "flowcc/flow"

// Unit is one source file together with everything the task-graph builder
// needs to analyse it: positions, raw bytes for rewriting, type information
// (possibly partial) and the package-level declarations it can see.
type Unit struct {
	Fset *token.FileSet
	File *ast.File
	Src  []byte
	Path string
	Info *types.Info
	// Sizes matches the target the unit was checked for.
	Sizes types.Sizes
	// FlowName is the local name the file imports FlowPath under, or "" when
	// the file does not import it.
	FlowName string

	funcs  map[string]*ast.FuncDecl
	tables map[string]*ast.CompositeLit
	scope  consteval.Scope
}

// Func returns the package-level function named name, preferring the
// declaration in the unit's own file.
func (u *Unit) Func(name string) *ast.FuncDecl {
	return u.funcs[name]
}

// FuncTable returns the composite literal assigned to a package-level variable,
// used for invocations that index into an array of tasks.
func (u *Unit) FuncTable(name string) *ast.CompositeLit {
	return u.tables[name]
}

// InFile reports whether decl was written in the unit's own file.
func (u *Unit) InFile(decl ast.Node) bool {
	return decl != nil && decl.Pos() >= u.File.FileStart && decl.End() <= u.File.FileEnd
}

// Evaluator returns a constant evaluator over the unit's type information and
// package-level constants.
func (u *Unit) Evaluator() consteval.Evaluator {
	return consteval.New(u.Info, u.scope)
}

// Offset converts a position within the unit's file to a byte offset.
func (u *Unit) Offset(pos token.Pos) int {
	return u.Fset.Position(pos).Offset
}

func newUnit(fset *token.FileSet, file *ast.File, src []byte, path string, info *types.Info, sizes types.Sizes, pkgFiles []*ast.File, defines map[string]int64) *Unit {
	u := &Unit{
		Fset:     fset,
		File:     file,
		Src:      src,
		Path:     path,
		Info:     info,
		Sizes:    sizes,
		FlowName: importName(file, FlowPath),
		funcs:    make(map[string]*ast.FuncDecl),
		tables:   make(map[string]*ast.CompositeLit),
	}
	u.scope = consteval.PackageScope(pkgFiles...)
	for name, value := range defines {
		if _, declared := u.scope[name]; !declared {
			u.scope[name] = &ast.BasicLit{Kind: token.INT, Value: strconv.FormatInt(value, 10)}
		}
	}
	for _, f := range pkgFiles {
		for _, decl := range f.Decls {
			switch d := decl.(type) {
			case *ast.FuncDecl:
				if d.Recv == nil && d.Body != nil {
					if _, seen := u.funcs[d.Name.Name]; !seen || f == file {
						u.funcs[d.Name.Name] = d
					}
				}
			case *ast.GenDecl:
				if d.Tok != token.VAR {
					continue
				}
				for _, spec := range d.Specs {
					vs := spec.(*ast.ValueSpec)
					for i, name := range vs.Names {
						if i < len(vs.Values) {
							if lit, ok := vs.Values[i].(*ast.CompositeLit); ok {
								u.tables[name.Name] = lit
							}
						}
					}
				}
			}
		}
	}
	return u
}

func importName(file *ast.File, path string) string {
	for _, spec := range file.Imports {
		p, err := strconv.Unquote(spec.Path.Value)
		if err != nil || p != path {
			continue
		}
		if spec.Name != nil {
			return spec.Name.Name
		}
		return path[strings.LastIndex(path, "/")+1:]
	}
	return ""
}

// ParseFile parses and leniently type-checks a single file that need not
// belong to a buildable package. Imports are not resolved; type errors are
// ignored so constant folding and sizes are available for everything the
// file declares itself. Defines that the file does not declare are injected
// as untyped integer constants.
func ParseFile(fset *token.FileSet, path string, src []byte, defines map[string]int64) (*Unit, error) {
	if src == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		src = data
	}
	file, err := parser.ParseFile(fset, path, src, parser.ParseComments|parser.SkipObjectResolution)
	if err != nil {
		return nil, err
	}

	files := []*ast.File{file}
	if gen := definesSource(file.Name.Name, defines, declaredNames(file)); gen != nil {
		defFile, err := parser.ParseFile(fset, definesFilename(path), gen, 0)
		if err != nil {
			return nil, fmt.Errorf("parse defines: %w", err)
		}
		files = append(files, defFile)
	}

	info := newInfo()
	sizes := types.SizesFor("gc", "amd64")
	conf := types.Config{
		Importer: fakeImporter{},
		Error:    func(error) {},
		Sizes:    sizes,
	}
	// Errors are expected: DSL imports are not resolved in this mode.
	_, _ = conf.Check(file.Name.Name, fset, files, info)

	return newUnit(fset, file, src, path, info, sizes, []*ast.File{file}, defines), nil
}

// UnitsFromPackages builds a unit for every syntax file of the loaded
// packages whose path is listed in sources (all files when sources is empty).
func UnitsFromPackages(pkgs []*gopackages.Package, fset *token.FileSet, sources []string, defines map[string]int64) ([]*Unit, error) {
	want := make(map[string]bool, len(sources))
	for _, s := range sources {
		if abs, err := filepath.Abs(s); err == nil {
			want[abs] = true
		}
	}
	var units []*Unit
	for _, pkg := range pkgs {
		sizes := pkg.TypesSizes
		if sizes == nil {
			sizes = types.SizesFor("gc", "amd64")
		}
		for i, file := range pkg.Syntax {
			if i >= len(pkg.CompiledGoFiles) {
				break
			}
			path := pkg.CompiledGoFiles[i]
			if strings.HasSuffix(path, definesFilename("")) {
				continue
			}
			if len(want) > 0 && !want[path] {
				continue
			}
			src, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("read %s: %w", path, err)
			}
			units = append(units, newUnit(fset, file, src, path, pkg.TypesInfo, sizes, pkg.Syntax, defines))
		}
	}
	sort.SliceStable(units, func(i, j int) bool { return units[i].Path < units[j].Path })
	return units, nil
}

func newInfo() *types.Info {
	return &types.Info{
		Types: make(map[ast.Expr]types.TypeAndValue),
		Defs:  make(map[*ast.Ident]types.Object),
		Uses:  make(map[*ast.Ident]types.Object),
	}
}

type fakeImporter struct{}

func (fakeImporter) Import(path string) (*types.Package, error) {
	return nil, fmt.Errorf("imports are not resolved: %s", path)
}

func declaredNames(file *ast.File) map[string]bool {
	names := make(map[string]bool)
	for _, decl := range file.Decls {
		switch d := decl.(type) {
		case *ast.GenDecl:
			for _, spec := range d.Specs {
				switch s := spec.(type) {
				case *ast.ValueSpec:
					for _, n := range s.Names {
						names[n.Name] = true
					}
				case *ast.TypeSpec:
					names[s.Name.Name] = true
				}
			}
		case *ast.FuncDecl:
			if d.Recv == nil {
				names[d.Name.Name] = true
			}
		}
	}
	return names
}

// definesSource renders the defines the package does not declare itself as a
// Go file of constants, or nil when nothing needs injecting.
func definesSource(pkgName string, defines map[string]int64, declared map[string]bool) []byte {
	names := make([]string, 0, len(defines))
	for name := range defines {
		if !declared[name] && token.IsIdentifier(name) {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return nil
	}
	sort.Strings(names)
	var b strings.Builder
	fmt.Fprintf(&b, "package %s\n\nconst (\n", pkgName)
	for _, name := range names {
		fmt.Fprintf(&b, "\t%s = %d\n", name, defines[name])
	}
	b.WriteString(")\n")
	return []byte(b.String())
}

func definesFilename(source string) string {
	const name = "zz_flowcc_defines.go"
	if source == "" {
		return name
	}
	return filepath.Join(filepath.Dir(source), name)
}
