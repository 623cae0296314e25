package authz

import (
	"go/ast"
	"go/parser"
	"go/token"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportedIdentifiersDocumented(t *testing.T) {
	paths, err := filepath.Glob("*.go")
	require.NoError(t, err)

	fset := token.NewFileSet()
	var missing []string
	for _, path := range paths {
		if strings.HasSuffix(path, "_test.go") {
			continue
		}
		file, err := parser.ParseFile(fset, path, nil, parser.ParseComments)
		require.NoError(t, err)
		for _, decl := range file.Decls {
			switch d := decl.(type) {
			case *ast.FuncDecl:
				if d.Name.IsExported() && d.Doc == nil {
					missing = append(missing, d.Name.Name)
				}
			case *ast.GenDecl:
				for _, spec := range d.Specs {
					switch s := spec.(type) {
					case *ast.TypeSpec:
						if s.Name.IsExported() && s.Doc == nil && d.Doc == nil {
							missing = append(missing, s.Name.Name)
						}
					case *ast.ValueSpec:
						// Grouped values each need their own line.
						grouped := d.Lparen.IsValid()
						for _, name := range s.Names {
							if !name.IsExported() {
								continue
							}
							if s.Doc == nil && (grouped || d.Doc == nil) {
								missing = append(missing, name.Name)
							}
						}
					}
				}
			}
		}
	}
	assert.Empty(t, missing, "exported identifiers without doc comments")
}
