// Package fixtures provides sample machines with known defects.
package fixtures

import (
	"context"

	"github.com/anggasct/fsmtester/pkg/model"
)

// FinalState is the final state of every fixture machine
const FinalState = "Finish"

// Simple is the linear machine A -> B -> C -> Finish.
func Simple() *model.Definition {
	return model.NewDefinition("simple", "A",
		[]string{"A", "B", "C", "Finish"},
		model.NewTransition("go_to_B", "A", "B"),
		model.NewTransition("go_to_C", "B", "C"),
		model.NewTransition("end_operation", "C", "Finish"),
	)
}

// Sink has C and Sink trapped in a cycle that never reaches Finish.
func Sink() *model.Definition {
	return model.NewDefinition("sink", "A",
		[]string{"A", "B", "C", "Sink", "Finish"},
		model.NewTransition("go_to_B", "A", "B"),
		model.NewTransition("go_to_C", "B", "C"),
		model.NewTransition("end_operation", "B", "Finish"),
		model.NewTransition("go_to_Sink", "C", "Sink"),
		model.NewTransition("retry", "Sink", "Sink"),
		model.NewTransition("restart", "Sink", "C"),
	)
}

// Deadlock loops C -> D -> E -> C while is_defective holds and leaves
// through E -> F otherwise.
func Deadlock() *model.Definition {
	return model.NewDefinition("deadlock", "A",
		[]string{"A", "B", "C", "D", "E", "F", "Finish"},
		model.NewTransition("go_to_B", "A", "B"),
		model.NewTransition("go_to_C", "B", "C"),
		model.NewTransition("go_to_D", "C", "D"),
		model.NewTransition("go_to_E", "D", "E"),
		model.NewTransition("go_to_F", "E", "F").UnlessGuard("is_defective"),
		model.NewTransition("defective_op", "E", "C").When("is_defective"),
		model.NewTransition("end_operation", "F", "Finish"),
	)
}

// Trap closes C -> D -> E -> C with no way out.
func Trap() *model.Definition {
	return model.NewDefinition("trap", "A",
		[]string{"A", "B", "C", "D", "E", "Finish"},
		model.NewTransition("go_to_B", "A", "B"),
		model.NewTransition("go_to_C", "B", "C"),
		model.NewTransition("end_operation", "B", "Finish"),
		model.NewTransition("go_to_D", "C", "D"),
		model.NewTransition("go_to_E", "D", "E"),
		model.NewTransition("back_to_C", "E", "C"),
	)
}

// Nondeterministic leaves E through two unguarded transitions.
func Nondeterministic() *model.Definition {
	return model.NewDefinition("nondeterministic", "A",
		[]string{"A", "B", "C", "D", "E", "F", "Finish"},
		model.NewTransition("go_to_B", "A", "B"),
		model.NewTransition("go_to_C", "B", "C"),
		model.NewTransition("go_to_D", "C", "D"),
		model.NewTransition("go_to_E", "D", "E"),
		model.NewTransition("go_to_F", "E", "F"),
		model.NewTransition("end_operation", "E", "Finish"),
	)
}

// AssemblyLine models a pick-and-place cell. NotUsed is declared but no
// transition enters it.
func AssemblyLine() *model.Definition {
	def := &model.Definition{Name: "assembly_line", Initial: "Initial"}
	for _, name := range []string{
		"Initial", "WaitOp", "PickComponent", "InspectComponent", "DiscardComponent",
		"PlaceComponent", "AssembleProduct", "VerifyAssembly", "PackageProduct",
		"PerformCalibration", "ReturnToHome", "Finish", "NotUsed",
	} {
		s := model.State{Name: name, OnEnter: []string{"print_state"}}
		if name == "DiscardComponent" {
			s.OnEnter = append(s.OnEnter, "count_discarded_components")
		}
		def.States = append(def.States, s)
	}

	def.Transitions = []model.Transition{
		model.NewTransition("initializing", "Initial", "WaitOp"),
		model.NewTransition("receive_command", "WaitOp", "PickComponent"),
		model.NewTransition("component_picked", "PickComponent", "InspectComponent"),
		model.NewTransition("inspected_component", "InspectComponent", "PlaceComponent").UnlessGuard("is_bad_component"),
		model.NewTransition("inspected_component", "InspectComponent", "DiscardComponent").When("is_bad_component"),
		model.NewTransition("component_placed", "PlaceComponent", "AssembleProduct"),
		model.NewTransition("assembled_product", "AssembleProduct", "VerifyAssembly"),
		model.NewTransition("verified_assembly", "VerifyAssembly", "PackageProduct"),
		model.NewTransition("discarded_component", "DiscardComponent", "ReturnToHome"),
		model.NewTransition("max_defective_component", "ReturnToHome", "PerformCalibration").When("max_attempts"),
		model.NewTransition("not_max_defective_component", "ReturnToHome", "WaitOp").UnlessGuard("max_attempts"),
		model.NewTransition("packaged_product", "PackageProduct", "Finish"),
		model.NewTransition("calibration_finish", "PerformCalibration", "Finish"),
	}
	return def
}

// AssemblyCell holds the business state behind the AssemblyLine guards
type AssemblyCell struct {
	BadComponent     bool
	MaxDefective     int
	DefectiveCounted int
}

// NewAssemblyCell creates a cell that calibrates after two discarded components
func NewAssemblyCell() *AssemblyCell {
	return &AssemblyCell{MaxDefective: 2}
}

// Guards returns the real guard implementations of the cell
func (c *AssemblyCell) Guards() map[string]model.Guard {
	return map[string]model.Guard{
		"is_bad_component": func(context.Context) bool { return c.BadComponent },
		"max_attempts":     func(context.Context) bool { return c.DefectiveCounted == c.MaxDefective },
	}
}

// Actions returns the callbacks referenced by the AssemblyLine states
func (c *AssemblyCell) Actions() map[string]model.Action {
	return map[string]model.Action{
		"print_state": func(context.Context) error { return nil },
		"count_discarded_components": func(context.Context) error {
			c.DefectiveCounted++
			return nil
		},
	}
}

// DeadlockGuards returns a guard set for Deadlock that always reports a defect
func DeadlockGuards() map[string]model.Guard {
	return map[string]model.Guard{
		"is_defective": model.Always(true),
	}
}
