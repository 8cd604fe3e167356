package paperscraper

import "fmt"

// Class is one output corpus.
type Class struct {
	Name      string
	Predicate Predicate

	// Quota is the sentence count at which the class stops; <= 0 is unlimited
	Quota int
}

// ClassState is the running state of one class during a run.
type ClassState struct {
	Count  int
	Active bool
}

// Classifier evaluates documents against an ordered set of classes. It holds
// no run state: callers own the []ClassState and pass it to every call.
type Classifier struct {
	classes []Class
}

// NewClassifier creates a Classifier. Every class needs a predicate.
func NewClassifier(classes []Class) (*Classifier, error) {
	for i, c := range classes {
		if c.Predicate == nil {
			return nil, fmt.Errorf("class %d (%s): no predicate", i, c.Name)
		}
	}
	return &Classifier{classes: classes}, nil
}

// Classes returns the configured classes in index order.
func (c *Classifier) Classes() []Class {
	return c.classes
}

// NewStates returns fresh states: all classes active, nothing counted.
func (c *Classifier) NewStates() []ClassState {
	states := make([]ClassState, len(c.classes))
	for i := range states {
		states[i].Active = true
	}
	return states
}

// Classify returns, per class, the sentences of doc accepted into it.
//
// Inactive classes are skipped without evaluating their predicate. An active
// class whose predicate accepts doc takes sentences up to its remaining
// quota; when the quota is reached the class turns inactive for the rest of
// the run. A rejecting predicate leaves the class untouched.
func (c *Classifier) Classify(states []ClassState, doc *Document, rec Record) [][]string {
	accepted := make([][]string, len(c.classes))
	if len(doc.Sentences) == 0 {
		return accepted
	}
	for i, class := range c.classes {
		st := &states[i]
		if !st.Active {
			continue
		}
		if !class.Predicate.Match(doc.Sentences, doc.Institutes, rec, doc.IsMain) {
			continue
		}

		take := doc.Sentences
		if class.Quota > 0 {
			if remaining := class.Quota - st.Count; len(take) > remaining {
				take = take[:remaining]
			}
		}
		accepted[i] = take
		st.Count += len(take)
		if class.Quota > 0 && st.Count >= class.Quota {
			st.Active = false
		}
	}
	return accepted
}

// AllInactive reports whether every class has reached its quota. It is false
// when there are no classes.
func AllInactive(states []ClassState) bool {
	if len(states) == 0 {
		return false
	}
	for _, st := range states {
		if st.Active {
			return false
		}
	}
	return true
}
