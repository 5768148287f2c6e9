package outputspec

import (
	"go/ast"
	"go/importer"
	"go/parser"
	"go/token"
	"go/types"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const constraintHeader = `package use

import (
	"testweaver/internal/outputspec"
	"testweaver/internal/record"
	"testweaver/internal/result"
	"testweaver/internal/testoutput"
)

var (
	_ = record.Output{}
	_ = (*testoutput.Child)(nil)
	_ = result.Live{}
	_ = outputspec.Live{}
)

type Other struct{}

func (Other) Name() string { return "other" }
`

type checker struct {
	dir  string
	fset *token.FileSet
	imp  types.Importer
}

func newChecker(t *testing.T) *checker {
	t.Helper()
	dir, err := os.Getwd()
	require.NoError(t, err)
	fset := token.NewFileSet()
	return &checker{dir: dir, fset: fset, imp: importer.ForCompiler(fset, "source", nil)}
}

// check type-checks constraintHeader plus body as a package in this
// directory, so imports resolve through the enclosing module.
func (c *checker) check(t *testing.T, body string) error {
	t.Helper()
	f, err := parser.ParseFile(c.fset, filepath.Join(c.dir, "use.go"), constraintHeader+body, 0)
	require.NoError(t, err)
	conf := types.Config{Importer: c.imp}
	_, err = conf.Check("use", c.fset, []*ast.File{f}, nil)
	return err
}

func TestSpec_OnlyBoundPairsInstantiate(t *testing.T) {
	if testing.Short() {
		t.Skip("type-checks dependencies from source")
	}

	valid := `
var (
	_ = outputspec.ModeName[outputspec.Live, *testoutput.Child]
	_ = outputspec.ModeName[outputspec.Recorded, record.Output]
	_ result.TestResult[outputspec.Live, *testoutput.Child]
	_ result.TestResult[outputspec.Recorded, record.Output]
)
`
	c := newChecker(t)
	if err := c.check(t, valid); err != nil {
		t.Skipf("module sources not loadable here: %v", err)
	}

	rejected := map[string]string{
		"live with recorded output": `var _ result.TestResult[outputspec.Live, record.Output]`,
		"recorded with live output": `var _ = outputspec.ModeName[outputspec.Recorded, *testoutput.Child]`,
		"third mode":                `var _ = outputspec.ModeName[Other, record.Output]`,
		"third mode in result":      `var _ result.TestResult[Other, *testoutput.Child]`,
	}
	for name, body := range rejected {
		t.Run(name, func(t *testing.T) {
			err := c.check(t, body)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "does not satisfy")
		})
	}
}
