package forest

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/AntonStoeckl/metamodel-go/metamodel"
)

// RegistryName is the name the analysis operations are attached under.
const RegistryName = "analysis_functions"

// Operation names inside the analysis registry.
const (
	OpSolve               = "solve"
	OpRemoveLastPeriod    = "remove_last_period"
	OpZeroObjectiveCoeffs = "zero_objective_coeffs"
	OpSetVariablesAttr    = "set_variables_attr"
)

var (
	// ErrNotAForestModel is returned when the MetaModel wraps something other than a *Model.
	ErrNotAForestModel = errors.New("metamodel does not wrap a forest model")

	// ErrNoPeriods is returned by remove_last_period when the model has no indexed harvest variables left.
	ErrNoPeriods = errors.New("model has no harvest periods")
)

var (
	periodVariables   = []string{"harv", "age"}
	periodConstraints = []string{"harv", "age", "env"}
)

// NewAnalysisRegistry returns a fresh registry with the forest analysis operations.
func NewAnalysisRegistry() *metamodel.Registry {
	reg := metamodel.NewRegistry(RegistryName)

	for _, op := range []struct {
		name string
		fn   metamodel.OperationFunc
	}{
		{OpSolve, solve},
		{OpRemoveLastPeriod, removeLastPeriod},
		{OpZeroObjectiveCoeffs, zeroObjectiveCoeffs},
		{OpSetVariablesAttr, setVariablesAttr},
	} {
		// names are constants, registration cannot fail
		_ = reg.RegisterFunc(op.name, op.fn)
	}

	return reg
}

// Resolver resolves RegistryName to a fresh analysis registry, so it can be attached by name
// and re-attached after reconstruction.
func Resolver() *metamodel.StaticResolver {
	return metamodel.NewStaticResolver().Provide(RegistryName, func(context.Context) (*metamodel.Registry, error) {
		return NewAnalysisRegistry(), nil
	})
}

// Qualified returns "analysis_functions.<op>".
func Qualified(op string) string {
	return RegistryName + "." + op
}

func modelOf(mm *metamodel.MetaModel) (*Model, error) {
	model, ok := mm.Model().(*Model)
	if !ok {
		return nil, fmt.Errorf("%w: got %T", ErrNotAForestModel, mm.Model())
	}

	return model, nil
}

// solve optimizes the model and takes a snapshot, then counts the solve.
// The snapshot is skipped while replaying, where its record already exists.
func solve(ctx context.Context, mm *metamodel.MetaModel, _ metamodel.Args, _ metamodel.Kwargs) error {
	model, err := modelOf(mm)
	if err != nil {
		return err
	}

	mm.SetOptimal(model.Optimize() == StatusOptimal)

	if !mm.Replaying() {
		if _, err := mm.TakeSnapshot(ctx); err != nil {
			return err
		}
	}

	mm.IncrementSolveCount()

	return nil
}

// removeLastPeriod shortens the planning horizon by one period.
func removeLastPeriod(_ context.Context, mm *metamodel.MetaModel, _ metamodel.Args, _ metamodel.Kwargs) error {
	model, err := modelOf(mm)
	if err != nil {
		return err
	}

	last, ok := maxPeriod(model.VariablesOf("harv"))
	if !ok {
		return ErrNoPeriods
	}

	for _, family := range periodVariables {
		for _, v := range model.VariablesOf(family) {
			if inPeriod(v.Name, last) {
				model.RemoveVariable(v.Name)
			}
		}
	}

	for _, family := range periodConstraints {
		for _, c := range model.ConstraintsOf(family) {
			if inPeriod(c.Name, last) {
				model.RemoveConstraint(c.Name)
			}
		}
	}

	return nil
}

func zeroObjectiveCoeffs(_ context.Context, mm *metamodel.MetaModel, _ metamodel.Args, _ metamodel.Kwargs) error {
	model, err := modelOf(mm)
	if err != nil {
		return err
	}

	for _, v := range model.Variables() {
		if err := model.SetVariableAttr(v.Name, "obj", 0); err != nil {
			return err
		}
	}

	return nil
}

// setVariablesAttr takes (attr, value, family) positionally or as keyword args.
// An empty family applies the attribute to every variable.
func setVariablesAttr(_ context.Context, mm *metamodel.MetaModel, args metamodel.Args, kwargs metamodel.Kwargs) error {
	model, err := modelOf(mm)
	if err != nil {
		return err
	}

	attr, err := stringParam(args, kwargs, 0, "attr")
	if err != nil {
		return err
	}

	value, err := floatParam(args, kwargs, 1, "val")
	if err != nil {
		return err
	}

	family, err := stringParam(args, kwargs, 2, "name")
	if err != nil {
		return err
	}

	for _, v := range model.VariablesOf(family) {
		if err := model.SetVariableAttr(v.Name, attr, value); err != nil {
			return err
		}
	}

	return nil
}

func stringParam(args metamodel.Args, kwargs metamodel.Kwargs, i int, key string) (string, error) {
	if kwargs.Has(key) {
		return kwargs.String(key)
	}

	return args.String(i)
}

func floatParam(args metamodel.Args, kwargs metamodel.Kwargs, i int, key string) (float64, error) {
	if kwargs.Has(key) {
		return kwargs.Float(key)
	}

	return args.Float(i)
}

func maxPeriod(vars []Variable) (float64, bool) {
	found := false
	last := 0.0

	for _, v := range vars {
		p, ok := period(v.Name)
		if !ok {
			continue
		}

		if !found || p > last {
			last = p
		}
		found = true
	}

	return last, found
}

func inPeriod(name string, p float64) bool {
	q, ok := period(name)
	return ok && q == p
}

func period(name string) (float64, bool) {
	idx, ok := LastIndex(name)
	if !ok {
		return 0, false
	}

	p, err := strconv.ParseFloat(idx, 64)
	if err != nil {
		return 0, false
	}

	return p, true
}
