package forest

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/AntonStoeckl/metamodel-go/metamodel"
)

// ErrSyntax is returned for lines the .lp reader does not understand.
var ErrSyntax = errors.New("lp syntax error")

// Parse reads a model in the line-oriented .lp format:
//
//	# comment
//	sense max
//	var harv[1,1] obj 12.5 lb 0 ub 40
//	con area[1] <= 40 harv[1,1]:1 age[1,1]:1
//
// Variables default to lb 0 and ub +inf. Constraint terms are "<variable>:<coefficient>" and
// may only name variables declared above them.
func Parse(r io.Reader) (*Model, error) {
	model := NewModel(Maximize)
	scanner := bufio.NewScanner(r)
	lineNo := 0

	for scanner.Scan() {
		lineNo++

		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if err := parseLine(model, strings.Fields(line)); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return model, nil
}

func parseLine(model *Model, fields []string) error {
	switch fields[0] {
	case "sense":
		if len(fields) != 2 || (fields[1] != string(Maximize) && fields[1] != string(Minimize)) {
			return fmt.Errorf("%w: sense must be max or min", ErrSyntax)
		}
		model.sense = Sense(fields[1])

		return nil

	case "var":
		v, err := parseVariable(fields[1:])
		if err != nil {
			return err
		}

		return model.AddVariable(v)

	case "con":
		c, err := parseConstraint(fields[1:])
		if err != nil {
			return err
		}

		return model.AddConstraint(c)

	default:
		return fmt.Errorf("%w: unknown keyword %q", ErrSyntax, fields[0])
	}
}

func parseVariable(fields []string) (Variable, error) {
	if len(fields) == 0 || len(fields)%2 != 1 {
		return Variable{}, fmt.Errorf("%w: var needs a name followed by attribute/value pairs", ErrSyntax)
	}

	v := Variable{Name: fields[0], UB: math.Inf(1)}

	for i := 1; i < len(fields); i += 2 {
		value, err := parseNumber(fields[i+1])
		if err != nil {
			return Variable{}, err
		}

		switch fields[i] {
		case "obj":
			v.Obj = value
		case "lb":
			v.LB = value
		case "ub":
			v.UB = value
		default:
			return Variable{}, fmt.Errorf("%w: %q", ErrUnknownAttribute, fields[i])
		}
	}

	return v, nil
}

func parseConstraint(fields []string) (Constraint, error) {
	if len(fields) < 3 {
		return Constraint{}, fmt.Errorf("%w: con needs a name, a relation and a right-hand side", ErrSyntax)
	}

	sense := Sense(fields[1])
	if sense != LessEqual && sense != GreaterEqual && sense != Equal {
		return Constraint{}, fmt.Errorf("%w: relation %q", ErrSyntax, fields[1])
	}

	rhs, err := parseNumber(fields[2])
	if err != nil {
		return Constraint{}, err
	}

	c := Constraint{Name: fields[0], Sense: sense, RHS: rhs}

	for _, field := range fields[3:] {
		sep := strings.LastIndexByte(field, ':')
		if sep <= 0 {
			return Constraint{}, fmt.Errorf("%w: term %q is not <variable>:<coefficient>", ErrSyntax, field)
		}

		coeff, err := parseNumber(field[sep+1:])
		if err != nil {
			return Constraint{}, err
		}

		c.Terms = append(c.Terms, Term{Var: field[:sep], Coeff: coeff})
	}

	return c, nil
}

func parseNumber(s string) (float64, error) {
	switch s {
	case "inf", "+inf":
		return math.Inf(1), nil
	case "-inf":
		return math.Inf(-1), nil
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) {
		return 0, fmt.Errorf("%w: %q is not a number", ErrSyntax, s)
	}

	return f, nil
}

// ParseFile reads the .lp file at path.
func ParseFile(path string) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	return Parse(f)
}

// Loader returns a model loader for ".lp" sources. Relative sources are resolved against dir,
// so snapshot records only need to carry the bare file name.
func Loader(dir string) *metamodel.ExtensionLoader {
	return metamodel.NewExtensionLoader().Register(".lp", metamodel.ModelLoaderFunc(
		func(ctx context.Context, source string) (metamodel.Model, error) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			path := source
			if !filepath.IsAbs(path) {
				path = filepath.Join(dir, path)
			}

			return ParseFile(path)
		},
	))
}
