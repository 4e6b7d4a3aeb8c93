package whiteboard

import (
	"time"

	"tutorhub/pkg/types"
)

// Operation is one applied, versioned mutation in the replication log.
type Operation struct {
	Action    string
	Element   *types.WhiteboardElement
	Version   uint64
	Author    string
	Timestamp time.Time
}

// Log is the per-session whiteboard replication log: a canonical element map
// plus the append-only, totally ordered operation sequence that produced it.
// Conflicts resolve last-writer-wins by server arrival order; there is no
// merge logic.
//
// Invariant: replaying ops from version 0 against an empty map reproduces
// the canonical element map exactly.
//
// Log is not safe for concurrent use. All mutation must pass through the
// owning session's serial executor.
type Log struct {
	elements map[string]*types.WhiteboardElement
	ops      []Operation
	version  uint64
}

// NewLog creates an empty replication log at version 0.
func NewLog() *Log {
	return &Log{
		elements: make(map[string]*types.WhiteboardElement),
	}
}

// Apply validates a mutation against the canonical map, assigns the next
// version, mutates the map and appends to the log. Rejected operations
// return an error and leave both map and version untouched.
func (l *Log) Apply(action string, element *types.WhiteboardElement, author string) (Operation, error) {
	switch action {
	case types.WhiteboardActionAdd:
		if element == nil || element.ID == "" {
			return Operation{}, ErrMissingElement
		}
		if _, exists := l.elements[element.ID]; exists {
			return Operation{}, ErrDuplicateElement
		}
	case types.WhiteboardActionUpdate, types.WhiteboardActionDelete:
		if element == nil || element.ID == "" {
			return Operation{}, ErrMissingElement
		}
		if _, exists := l.elements[element.ID]; !exists {
			// Covers updates referencing pre-clear IDs as well.
			return Operation{}, ErrUnknownElement
		}
	case types.WhiteboardActionClear:
		return l.Clear(author), nil
	default:
		return Operation{}, ErrInvalidAction
	}

	l.version++

	var stored *types.WhiteboardElement
	switch action {
	case types.WhiteboardActionAdd, types.WhiteboardActionUpdate:
		copied := copyElement(element)
		copied.Version = l.version
		copied.Author = author
		l.elements[copied.ID] = copied
		stored = copied
	case types.WhiteboardActionDelete:
		stored = l.elements[element.ID]
		delete(l.elements, element.ID)
	}

	op := Operation{
		Action:    action,
		Element:   copyElement(stored),
		Version:   l.version,
		Author:    author,
		Timestamp: time.Now(),
	}
	l.ops = append(l.ops, op)
	return op, nil
}

// Clear atomically empties the element map and bumps the version. Any later
// operation referencing a pre-clear ID is rejected by Apply.
func (l *Log) Clear(author string) Operation {
	l.version++
	l.elements = make(map[string]*types.WhiteboardElement)

	op := Operation{
		Action:    types.WhiteboardActionClear,
		Version:   l.version,
		Author:    author,
		Timestamp: time.Now(),
	}
	l.ops = append(l.ops, op)
	return op
}

// Snapshot returns a copy of the full element map and the current version,
// the reconstructable state handed to new joiners.
func (l *Log) Snapshot() (map[string]types.WhiteboardElement, uint64) {
	elements := make(map[string]types.WhiteboardElement, len(l.elements))
	for id, element := range l.elements {
		elements[id] = *copyElement(element)
	}
	return elements, l.version
}

// Version returns the current log version.
func (l *Log) Version() uint64 {
	return l.version
}

// Operations returns the applied operation log in order.
func (l *Log) Operations() []Operation {
	out := make([]Operation, len(l.ops))
	copy(out, l.ops)
	return out
}

// Replay rebuilds an element map by applying ops in order against an empty
// map. Used to verify the replay invariant.
func Replay(ops []Operation) map[string]types.WhiteboardElement {
	elements := make(map[string]types.WhiteboardElement)
	for _, op := range ops {
		switch op.Action {
		case types.WhiteboardActionAdd, types.WhiteboardActionUpdate:
			if op.Element != nil {
				elements[op.Element.ID] = *op.Element
			}
		case types.WhiteboardActionDelete:
			if op.Element != nil {
				delete(elements, op.Element.ID)
			}
		case types.WhiteboardActionClear:
			elements = make(map[string]types.WhiteboardElement)
		}
	}
	return elements
}

func copyElement(element *types.WhiteboardElement) *types.WhiteboardElement {
	if element == nil {
		return nil
	}
	copied := *element
	if element.Style != nil {
		copied.Style = make(map[string]string, len(element.Style))
		for k, v := range element.Style {
			copied.Style[k] = v
		}
	}
	return &copied
}
