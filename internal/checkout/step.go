package checkout

import "fmt"

// Step is one of the coarse-grained checkout states.
type Step string

const (
	StepAddress  Step = "address"
	StepShipping Step = "shipping"
	StepPayment  Step = "payment"
	StepReview   Step = "review"
)

// stepOrder is the only legal progression. There are no cycles and no skips.
var stepOrder = []Step{StepAddress, StepShipping, StepPayment, StepReview}

func (s Step) index() int {
	for i, st := range stepOrder {
		if st == s {
			return i
		}
	}
	return -1
}

// Valid reports whether s is a known step.
func (s Step) Valid() bool { return s.index() >= 0 }

// StepState holds the current step and the append-only set of completed steps.
type StepState struct {
	current   Step
	completed map[Step]bool
	order     []Step
}

// NewStepState starts at the address step with nothing completed.
func NewStepState() *StepState {
	return &StepState{current: StepAddress, completed: make(map[Step]bool)}
}

// Current returns the step the customer is on.
func (s *StepState) Current() Step { return s.current }

// Completed returns completed steps in the order they were first completed.
func (s *StepState) Completed() []Step {
	out := make([]Step, len(s.order))
	copy(out, s.order)
	return out
}

// IsCompleted reports whether step was marked done.
func (s *StepState) IsCompleted(step Step) bool { return s.completed[step] }

// CanEnter holds iff every strictly-prior step is completed.
func (s *StepState) CanEnter(step Step) bool {
	idx := step.index()
	if idx < 0 {
		return false
	}
	for _, prior := range stepOrder[:idx] {
		if !s.completed[prior] {
			return false
		}
	}
	return true
}

// Guard returns ErrStepLocked when step cannot be entered.
func (s *StepState) Guard(step Step) error {
	if !step.Valid() {
		return fmt.Errorf("unknown step %q: %w", step, ErrStepLocked)
	}
	if !s.CanEnter(step) {
		return fmt.Errorf("%s: %w", step, ErrStepLocked)
	}
	return nil
}

// Complete marks step done (at most once) and moves the current step forward to its
// successor. The current step never moves backward; review has no successor.
func (s *StepState) Complete(step Step) error {
	if err := s.Guard(step); err != nil {
		return err
	}
	if !s.completed[step] {
		s.completed[step] = true
		s.order = append(s.order, step)
	}
	next := step.index() + 1
	if next < len(stepOrder) && next > s.current.index() {
		s.current = stepOrder[next]
	}
	return nil
}
