package gesture

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// LibraryVersion is the persisted library format version this build writes
// and accepts.
const LibraryVersion = 1

var (
	// ErrUnknownGesture is returned when an operation references an
	// unregistered gesture id.
	ErrUnknownGesture = errors.New("unknown gesture id")
	// ErrDuplicateGesture is returned when registering an id twice.
	ErrDuplicateGesture = errors.New("gesture id already registered")
	// ErrTemplateIndex is returned for out-of-range template indices.
	ErrTemplateIndex = errors.New("template index out of range")
	// ErrUnsupportedVersion is returned when importing a library whose
	// format version this build does not understand.
	ErrUnsupportedVersion = errors.New("unsupported library version")
)

// Library is the registry of gesture classes the DTW classifier matches
// against. The engine is the single writer; reads from the monitor surface
// go through the lock.
type Library struct {
	mu      sync.RWMutex
	classes map[string]*GestureClass
}

// NewLibrary creates an empty library.
func NewLibrary() *Library {
	return &Library{classes: make(map[string]*GestureClass)}
}

// Register adds a new gesture class with no templates.
func (l *Library) Register(def GestureDefinition, minTemplates int) error {
	if def.ID == "" {
		return fmt.Errorf("gesture definition missing id")
	}
	if minTemplates < 1 {
		minTemplates = 1
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.classes[def.ID]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateGesture, def.ID)
	}
	l.classes[def.ID] = &GestureClass{Definition: def, MinTemplates: minTemplates}
	return nil
}

// SetClass inserts or replaces a whole class (recorder finalization, store
// load).
func (l *Library) SetClass(class *GestureClass) error {
	if class == nil || class.Definition.ID == "" {
		return fmt.Errorf("gesture class missing definition id")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.classes[class.Definition.ID] = class
	return nil
}

// AddTemplate appends a recorded exemplar to an existing class.
func (l *Library) AddTemplate(gestureID string, t *GestureTemplate) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	class, ok := l.classes[gestureID]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownGesture, gestureID)
	}
	t.GestureID = gestureID
	class.Templates = append(class.Templates, t)
	return nil
}

// RemoveTemplate deletes the template at index from a class.
func (l *Library) RemoveTemplate(gestureID string, index int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	class, ok := l.classes[gestureID]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownGesture, gestureID)
	}
	if index < 0 || index >= len(class.Templates) {
		return fmt.Errorf("%w: %d of %d", ErrTemplateIndex, index, len(class.Templates))
	}
	class.Templates = append(class.Templates[:index], class.Templates[index+1:]...)
	return nil
}

// Remove deletes a gesture class entirely.
func (l *Library) Remove(gestureID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.classes[gestureID]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownGesture, gestureID)
	}
	delete(l.classes, gestureID)
	return nil
}

// Class returns the class for an id.
func (l *Library) Class(gestureID string) (*GestureClass, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	c, ok := l.classes[gestureID]
	return c, ok
}

// Classes returns all classes sorted by id.
func (l *Library) Classes() []*GestureClass {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*GestureClass, 0, len(l.classes))
	for _, c := range l.classes {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Definition.ID < out[j].Definition.ID
	})
	return out
}

// ReadyClasses returns the classes with enough templates to match.
func (l *Library) ReadyClasses() []*GestureClass {
	all := l.Classes()
	out := all[:0]
	for _, c := range all {
		if c.IsReady() {
			out = append(out, c)
		}
	}
	return out
}

// Len returns the number of registered classes.
func (l *Library) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.classes)
}

// persistedLibrary is the on-disk JSON shape.
type persistedLibrary struct {
	Version int                      `json:"version"`
	Classes map[string]*GestureClass `json:"classes"`
}

// Export serializes the library as version-1 JSON. Derived per-template
// caches (features, magnitude series) are stripped to minimize size and
// recomputed on import.
func (l *Library) Export() ([]byte, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := persistedLibrary{Version: LibraryVersion, Classes: make(map[string]*GestureClass, len(l.classes))}
	for id, c := range l.classes {
		cp := &GestureClass{
			Definition:   c.Definition,
			MinTemplates: c.MinTemplates,
			Templates:    make([]*GestureTemplate, len(c.Templates)),
		}
		for i, t := range c.Templates {
			stripped := *t
			stripped.Features = nil
			stripped.MagnitudeSeries = nil
			cp.Templates[i] = &stripped
		}
		out.Classes[id] = cp
	}
	return json.MarshalIndent(out, "", "  ")
}

// Import replaces the library contents from version-1 JSON. An unsupported
// version fails loudly with ErrUnsupportedVersion and leaves the library
// untouched.
func (l *Library) Import(data []byte) error {
	var in persistedLibrary
	if err := json.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("parse gesture library: %w", err)
	}
	if in.Version != LibraryVersion {
		return fmt.Errorf("%w: got %d, want %d", ErrUnsupportedVersion, in.Version, LibraryVersion)
	}

	classes := make(map[string]*GestureClass, len(in.Classes))
	for id, c := range in.Classes {
		if c == nil || c.Definition.ID == "" {
			return fmt.Errorf("gesture library class %q missing definition", id)
		}
		for _, t := range c.Templates {
			t.Magnitudes() // rebuild the derived cache eagerly
		}
		classes[id] = c
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.classes = classes
	return nil
}
